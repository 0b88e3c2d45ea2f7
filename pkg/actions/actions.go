package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/rs/zerolog/log"
)

const (
	MsgNoFileSelected    = "No file selected."
	MsgUploadOK          = "Upload OK. Parsed summary:"
	MsgNotAutoActivated  = "Note: Not auto-activating contract (to avoid overwriting your active one). Use /activate (POST /contract/activate) if you want."
	MsgDidNotUnderstand  = "I didn't understand."
	MsgDraftSQL          = "Draft SQL:"
	MsgNoContractPreview = "No uploaded contract to activate."
	MsgNoActiveContract  = "No active contract."
	MsgNoSQL             = "No SQL to execute."
	MsgNoDraftQuery      = "Nothing to draft."
	MsgNoCatalog         = "No local catalog."
	unknownDetail        = "unknown"
)

// Renderer is the transcript the orchestrators write to.
type Renderer interface {
	Append(content any, origin transcript.Origin) transcript.Entry
}

var _ Renderer = &transcript.Transcript{}

// Orchestrator maps each user action to one backend call and renders the
// outcome. Actions are independent and may run concurrently.
type Orchestrator struct {
	backend  backend.Backend
	renderer Renderer
	config   session.ConfigSource
	files    FileSource

	mu           sync.Mutex
	lastContract json.RawMessage
	lastSQL      string
}

type Option func(*Orchestrator)

func WithFileSource(f FileSource) Option {
	return func(o *Orchestrator) { o.files = f }
}

func WithConfigSource(c session.ConfigSource) Option {
	return func(o *Orchestrator) { o.config = c }
}

func NewOrchestrator(b backend.Backend, r Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: b, renderer: r}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) system(content any) {
	o.renderer.Append(content, transcript.OriginSystem)
}

func (o *Orchestrator) user(content any) {
	o.renderer.Append(content, transcript.OriginUser)
}

func (o *Orchestrator) sessionConfig() session.Config {
	return session.Read(o.config)
}

// HandleUpload posts the selected file for parsing. The parsed contract is
// only previewed; activating it is a separate, explicit action.
func (o *Orchestrator) HandleUpload(ctx context.Context) {
	var (
		f  UploadedFile
		ok bool
	)
	if o.files != nil {
		f, ok = o.files.Selected()
	}
	if !ok {
		o.system(MsgNoFileSelected)
		return
	}

	o.user(fmt.Sprintf("Uploading: %s", f.Name))
	reply := backend.DecodeUpload(o.backend.Upload(ctx, f.Name, f.Content))
	if !reply.OK {
		o.system(fmt.Sprintf("Upload failed: %s", detailOrUnknown(reply.Detail)))
		return
	}

	o.system(MsgUploadOK)
	o.system(reply.ContractContent())
	o.system(MsgNotAutoActivated)

	if raw, err := json.Marshal(reply.Contract); err == nil && reply.Contract != nil {
		o.mu.Lock()
		o.lastContract = raw
		o.mu.Unlock()
	}
	log.Debug().Str("file", f.Name).Msg("contract previewed")
}

// HandleVerify compares the selected dataset/table against the active contract.
func (o *Orchestrator) HandleVerify(ctx context.Context) {
	cfg := o.sessionConfig()
	dataset, table := cfg.DatasetOrDefault(), cfg.TableOrDefault()

	o.user(fmt.Sprintf("verify %s %s", dataset, table))
	reply := backend.DecodeVerify(o.backend.VerifyCompare(ctx, dataset, table))
	if reply.Recognized {
		o.system(reply.Tagged())
		return
	}
	o.system(reply.Data)
}

// HandleVerifyDataset checks warehouse access for the selected dataset.
func (o *Orchestrator) HandleVerifyDataset(ctx context.Context) {
	dataset := o.sessionConfig().DatasetOrDefault()

	o.user(fmt.Sprintf("verify dataset %s", dataset))
	reply := backend.DecodeVerifyDataset(o.backend.Verify(ctx, dataset))
	if reply.Recognized {
		o.system(reply.Tagged())
		return
	}
	o.system(reply.Data)
}

// HandleSend submits the chat input. The input is cleared as soon as the
// user message is shown, whatever happens to the request afterwards.
func (o *Orchestrator) HandleSend(ctx context.Context, in ChatInput) {
	if in == nil {
		return
	}
	text := strings.TrimSpace(in.Value())
	if text == "" {
		return
	}
	cfg := o.sessionConfig()

	o.user(text)
	in.Clear()

	reply := backend.DecodeChat(o.backend.Chat(ctx, backend.ChatRequest{
		Text:    text,
		Dataset: cfg.DatasetOrDefault(),
		Table:   cfg.SelectedTable(),
	}))
	if reply.Failed {
		if reply.Message == nil {
			o.system(MsgDidNotUnderstand)
			return
		}
		o.system(reply.Message)
		return
	}

	o.renderResult(reply.Result)
}

// HandleDraft asks for SQL without going through the chat intent router.
// The draft is linted against the active contract policy.
func (o *Orchestrator) HandleDraft(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		o.system(MsgNoDraftQuery)
		return
	}
	cfg := o.sessionConfig()

	o.user(fmt.Sprintf("draft %s", text))
	reply := backend.DecodeDraft(o.backend.Draft(ctx, backend.DraftRequest{
		NLQuery: text,
		Dataset: cfg.DatasetOrDefault(),
	}))
	if reply.Failed {
		o.system(fmt.Sprintf("Draft failed: %s", detailOrUnknown(reply.Detail)))
		return
	}
	o.renderResult(reply.Result)
}

// renderResult shows the draft SQL, the message and any policy findings,
// each independently.
func (o *Orchestrator) renderResult(res backend.ChatResult) {
	if res.SQL != "" {
		o.system(MsgDraftSQL)
		o.system(res.SQL)
		o.mu.Lock()
		o.lastSQL = res.SQL
		o.mu.Unlock()
	}
	if res.Message != nil {
		o.system(res.Message)
	}
	if res.HasViolations() {
		o.system(res.PolicyEntry())
	}
}

// LastSQL returns the most recent draft SQL, if any.
func (o *Orchestrator) LastSQL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSQL
}

// LastContract returns the most recently previewed contract, if any.
func (o *Orchestrator) LastContract() json.RawMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastContract
}

func detailOrUnknown(detail string) string {
	if detail == "" {
		return unknownDetail
	}
	return detail
}
