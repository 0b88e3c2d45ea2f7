package actions

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]backend.Result

	lastChat     backend.ChatRequest
	lastExecute  backend.ExecuteRequest
	lastDraft    backend.DraftRequest
	lastUpload   UploadedFile
	lastDataset  string
	lastTable    string
	lastContract json.RawMessage
	lastDoc      map[string]any

	// onChat runs before the chat result is returned.
	onChat func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}, results: map[string]backend.Result{}}
}

func (f *fakeBackend) respond(path string, data any) {
	f.results[path] = backend.Result{OK: true, StatusCode: 200, Data: data}
}

func (f *fakeBackend) hit(path string) backend.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	return f.results[path]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBackend) Health(context.Context) backend.Result { return f.hit(backend.PathHealth) }

func (f *fakeBackend) Upload(_ context.Context, filename string, content []byte) backend.Result {
	f.lastUpload = UploadedFile{Name: filename, Content: content}
	return f.hit(backend.PathUpload)
}

func (f *fakeBackend) Verify(_ context.Context, dataset string) backend.Result {
	f.mu.Lock()
	f.lastDataset = dataset
	f.mu.Unlock()
	return f.hit(backend.PathVerify)
}

func (f *fakeBackend) VerifyCompare(_ context.Context, dataset, table string) backend.Result {
	f.mu.Lock()
	f.lastDataset, f.lastTable = dataset, table
	f.mu.Unlock()
	return f.hit(backend.PathVerifyCompare)
}

func (f *fakeBackend) Chat(_ context.Context, req backend.ChatRequest) backend.Result {
	f.mu.Lock()
	f.lastChat = req
	f.mu.Unlock()
	if f.onChat != nil {
		f.onChat()
	}
	return f.hit(backend.PathChat)
}

func (f *fakeBackend) ActivateContract(_ context.Context, contract json.RawMessage) backend.Result {
	f.lastContract = contract
	return f.hit(backend.PathContractActivate)
}

func (f *fakeBackend) ActiveContract(context.Context) backend.Result {
	return f.hit(backend.PathContractActive)
}

func (f *fakeBackend) Draft(_ context.Context, req backend.DraftRequest) backend.Result {
	f.mu.Lock()
	f.lastDraft = req
	f.mu.Unlock()
	return f.hit(backend.PathDraft)
}

func (f *fakeBackend) Execute(_ context.Context, req backend.ExecuteRequest) backend.Result {
	f.lastExecute = req
	return f.hit(backend.PathExecute)
}

func (f *fakeBackend) GetSettings(context.Context) backend.Result {
	return f.hit(backend.PathSettings)
}

func (f *fakeBackend) SetSettings(_ context.Context, doc map[string]any) backend.Result {
	f.lastDoc = doc
	return f.hit(backend.PathSettings)
}

func (f *fakeBackend) GetCatalog(context.Context) backend.Result {
	return f.hit(backend.PathCatalog)
}

func (f *fakeBackend) SetCatalog(_ context.Context, doc map[string]any) backend.Result {
	f.lastDoc = doc
	return f.hit(backend.PathCatalog)
}

type fixture struct {
	backend *fakeBackend
	tr      *transcript.Transcript
	sel     *session.Selection
	files   *FileSelection
	o       *Orchestrator
}

func newFixture(dataset, table string) *fixture {
	f := &fixture{
		backend: newFakeBackend(),
		tr:      transcript.New("test"),
		sel:     session.NewSelection(dataset, table),
		files:   &FileSelection{},
	}
	f.o = NewOrchestrator(f.backend, f.tr, WithConfigSource(f.sel), WithFileSource(f.files))
	return f
}

func texts(entries []transcript.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func decodeObject(t *testing.T, e transcript.Entry) map[string]any {
	t.Helper()
	require.Equal(t, transcript.KindObject, e.Kind)
	var m map[string]any
	require.NoError(t, json.Unmarshal(e.Object, &m))
	return m
}

func TestHandleUpload_NoFileSelected(t *testing.T) {
	f := newFixture("", "")
	f.o.HandleUpload(context.Background())

	entries := f.tr.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, MsgNoFileSelected, entries[0].Text)
	require.Equal(t, transcript.OriginSystem, entries[0].Origin)
	require.Equal(t, 0, f.backend.total())
}

func TestHandleUpload_Success(t *testing.T) {
	f := newFixture("", "")
	f.files.Select(UploadedFile{Name: "contract.yaml", Content: []byte("entities: {}")})
	f.backend.respond(backend.PathUpload, map[string]any{
		"ok":       true,
		"contract": map[string]any{"version": "v1", "entities": map[string]any{}},
	})

	f.o.HandleUpload(context.Background())

	entries := f.tr.Entries()
	require.Len(t, entries, 4)
	require.Equal(t, "Uploading: contract.yaml", entries[0].Text)
	require.Equal(t, transcript.OriginUser, entries[0].Origin)
	require.Equal(t, MsgUploadOK, entries[1].Text)
	require.Equal(t, "v1", decodeObject(t, entries[2])["version"])
	require.Equal(t, MsgNotAutoActivated, entries[3].Text)

	require.Equal(t, 1, f.backend.calls[backend.PathUpload])
	require.Equal(t, "contract.yaml", f.backend.lastUpload.Name)
	require.Equal(t, "entities: {}", string(f.backend.lastUpload.Content))
	require.JSONEq(t, `{"version":"v1","entities":{}}`, string(f.o.LastContract()))
}

func TestHandleUpload_MissingContractShowsUndefined(t *testing.T) {
	f := newFixture("", "")
	f.files.Select(UploadedFile{Name: "c.yaml"})
	f.backend.respond(backend.PathUpload, map[string]any{"ok": true})

	f.o.HandleUpload(context.Background())

	entries := f.tr.Entries()
	require.Len(t, entries, 4)
	require.Equal(t, transcript.KindText, entries[2].Kind)
	require.Equal(t, "undefined", entries[2].Text)
	require.Nil(t, f.o.LastContract())
}

func TestHandleUpload_Failure(t *testing.T) {
	cases := []struct {
		name string
		data any
		want string
	}{
		{"detail", map[string]any{"detail": "upload failed: bad yaml"}, "Upload failed: upload failed: bad yaml"},
		{"no detail", map[string]any{"ok": false}, "Upload failed: unknown"},
		{"bad json", map[string]any{"ok": false, "error": "bad json"}, "Upload failed: unknown"},
		{"truthy but not true", map[string]any{"ok": "yes", "contract": map[string]any{}}, "Upload failed: unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture("", "")
			f.files.Select(UploadedFile{Name: "c.json"})
			f.backend.respond(backend.PathUpload, tc.data)

			f.o.HandleUpload(context.Background())

			require.Equal(t, []string{"Uploading: c.json", tc.want}, texts(f.tr.Entries()))
			require.Nil(t, f.o.LastContract())
		})
	}
}

func TestHandleVerify_DefaultsAndTagging(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathVerifyCompare, map[string]any{"status": "ok", "missing": []any{}})

	f.o.HandleVerify(context.Background())

	require.Equal(t, "prod", f.backend.lastDataset)
	require.Equal(t, "spans", f.backend.lastTable)
	entries := f.tr.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "verify prod spans", entries[0].Text)
	require.Equal(t, transcript.OriginUser, entries[0].Origin)
	obj := decodeObject(t, entries[1])
	require.Equal(t, "verify_tables", obj["intent"])
	require.Equal(t, "ok", obj["status"])
	require.Contains(t, obj, "missing")
}

func TestHandleVerify_PayloadKeysWin(t *testing.T) {
	f := newFixture("staging", "events")
	f.backend.respond(backend.PathVerifyCompare, map[string]any{"status": "drift", "intent": "custom"})

	f.o.HandleVerify(context.Background())

	entries := f.tr.Entries()
	require.Equal(t, "verify staging events", entries[0].Text)
	require.Equal(t, "custom", decodeObject(t, entries[1])["intent"])
}

func TestHandleVerify_UnrecognizedPayloadShownAsIs(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathVerifyCompare, map[string]any{"detail": "Not Found"})

	f.o.HandleVerify(context.Background())

	obj := decodeObject(t, f.tr.Entries()[1])
	require.Equal(t, map[string]any{"detail": "Not Found"}, obj)
}

func TestHandleVerifyDataset(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathVerify, map[string]any{
		"status":  "ok",
		"message": "Offline mode: cloud checks skipped.",
	})

	f.o.HandleVerifyDataset(context.Background())

	require.Equal(t, "prod", f.backend.lastDataset)
	entries := f.tr.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "verify dataset prod", entries[0].Text)
	require.Equal(t, transcript.OriginUser, entries[0].Origin)
	obj := decodeObject(t, entries[1])
	require.Equal(t, "verify_dataset", obj["intent"])
	require.Equal(t, "ok", obj["status"])

	f = newFixture("staging", "")
	f.backend.respond(backend.PathVerify, map[string]any{"detail": "Not Found"})
	f.o.HandleVerifyDataset(context.Background())
	require.Equal(t, "staging", f.backend.lastDataset)
	require.Equal(t, map[string]any{"detail": "Not Found"}, decodeObject(t, f.tr.Entries()[1]))
}

func TestHandleDraft(t *testing.T) {
	f := newFixture("staging", "spans")
	f.backend.respond(backend.PathDraft, map[string]any{
		"status":     "draft",
		"message":    "Draft SQL generated.",
		"sql":        "SELECT COUNT(*) FROM `staging.spans`",
		"policy_ok":  false,
		"violations": []any{map[string]any{"rule": "time_window", "severity": "error"}},
	})

	f.o.HandleDraft(context.Background(), "  count spans ")

	require.Equal(t, backend.DraftRequest{NLQuery: "count spans", Dataset: "staging"}, f.backend.lastDraft)
	entries := f.tr.Entries()
	require.Equal(t, []string{"draft count spans", MsgDraftSQL, "SELECT COUNT(*) FROM `staging.spans`", "Draft SQL generated."}, texts(entries[:4]))
	require.Equal(t, transcript.KindCode, entries[2].Kind)
	require.Len(t, entries, 5)
	obj := decodeObject(t, entries[4])
	require.Equal(t, false, obj["policy_ok"])
	require.Equal(t, "SELECT COUNT(*) FROM `staging.spans`", f.o.LastSQL())
}

func TestHandleDraft_BlankAndFailure(t *testing.T) {
	f := newFixture("", "")
	f.o.HandleDraft(context.Background(), "   ")
	require.Equal(t, []string{MsgNoDraftQuery}, texts(f.tr.Entries()))
	require.Equal(t, 0, f.backend.total())

	f = newFixture("", "")
	f.backend.results[backend.PathDraft] = backend.Result{
		OK:         false,
		StatusCode: 400,
		Data:       map[string]any{"detail": "nl_query (string) is required."},
	}
	f.o.HandleDraft(context.Background(), "q")
	require.Equal(t, []string{"draft q", "Draft failed: nl_query (string) is required."}, texts(f.tr.Entries()))

	f = newFixture("", "")
	f.o.HandleDraft(context.Background(), "q")
	require.Equal(t, []string{"draft q", "Draft failed: unknown"}, texts(f.tr.Entries()))
	require.Equal(t, "", f.o.LastSQL())
}

func TestHandleSend_EmptyInputIsNoop(t *testing.T) {
	f := newFixture("", "")
	for _, v := range []string{"", "   ", "\n\t"} {
		in := NewBufferedInput(v)
		f.o.HandleSend(context.Background(), in)
		require.Equal(t, v, in.Value())
	}
	require.Equal(t, 0, f.tr.Len())
	require.Equal(t, 0, f.backend.total())
}

func TestHandleSend_DraftSQL(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{
		"ok":     true,
		"result": map[string]any{"sql": "SELECT * FROM spans", "message": "done"},
	})

	in := NewBufferedInput("  show me spans ")
	f.o.HandleSend(context.Background(), in)

	require.Equal(t, "", in.Value())
	entries := f.tr.Entries()
	require.Equal(t, []string{"show me spans", "Draft SQL:", "SELECT * FROM spans", "done"}, texts(entries))
	require.Equal(t, transcript.OriginUser, entries[0].Origin)
	require.Equal(t, transcript.KindCode, entries[2].Kind)
	require.Equal(t, backend.ChatRequest{Text: "show me spans", Dataset: "prod"}, f.backend.lastChat)
	require.Equal(t, "SELECT * FROM spans", f.o.LastSQL())
}

func TestHandleSend_ClearsInputBeforeResponse(t *testing.T) {
	f := newFixture("prod", "spans")
	in := NewBufferedInput("hello")
	var duringRequest string
	f.backend.onChat = func() { duringRequest = in.Value() }

	f.o.HandleSend(context.Background(), in)

	require.Equal(t, "", duringRequest)
	require.Equal(t, "spans", f.backend.lastChat.Table)
	// no payload at all
	require.Equal(t, []string{"hello", MsgDidNotUnderstand}, texts(f.tr.Entries()))
}

func TestHandleSend_Failures(t *testing.T) {
	cases := []struct {
		name string
		data any
		want []string
	}{
		{"message", map[string]any{"ok": false, "message": "Please provide dataset and table"}, []string{"q", "Please provide dataset and table"}},
		{"no message", map[string]any{"ok": false}, []string{"q", MsgDidNotUnderstand}},
		{"bad json", map[string]any{"ok": false, "error": "bad json"}, []string{"q", MsgDidNotUnderstand}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture("", "")
			f.backend.respond(backend.PathChat, tc.data)
			f.o.HandleSend(context.Background(), NewBufferedInput("q"))
			require.Equal(t, tc.want, texts(f.tr.Entries()))
		})
	}
}

func TestHandleSend_ObjectMessageAndStringViolations(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{"ok": false, "message": map[string]any{"code": "E1"}})
	f.o.HandleSend(context.Background(), NewBufferedInput("q"))
	require.Equal(t, map[string]any{"code": "E1"}, decodeObject(t, f.tr.Entries()[1]))

	f = newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{
		"result": map[string]any{"violations": "missing time window", "policy_ok": false},
	})
	f.o.HandleSend(context.Background(), NewBufferedInput("q"))
	entries := f.tr.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]any{"policy_ok": false, "violations": "missing time window"}, decodeObject(t, entries[1]))
}

func TestHandleSend_IndependentRules(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{
		"result": map[string]any{
			"message":    "policy issues",
			"violations": []any{map[string]any{"rule": "time_window", "severity": "error"}},
			"policy_ok":  false,
		},
	})

	f.o.HandleSend(context.Background(), NewBufferedInput("count spans"))

	entries := f.tr.Entries()
	require.Equal(t, []string{"count spans", "policy issues"}, texts(entries[:2]))
	require.Len(t, entries, 3)
	obj := decodeObject(t, entries[2])
	require.Equal(t, false, obj["policy_ok"])
	require.Len(t, obj["violations"], 1)
	require.Equal(t, "", f.o.LastSQL())
}

func TestHandleSend_EmptyViolationsAndMissingPolicyOK(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{
		"result": map[string]any{"sql": "SELECT 1", "violations": []any{}},
	})
	f.o.HandleSend(context.Background(), NewBufferedInput("one"))
	require.Equal(t, []string{"one", "Draft SQL:", "SELECT 1"}, texts(f.tr.Entries()))

	f = newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{
		"result": map[string]any{"violations": []any{"x"}},
	})
	f.o.HandleSend(context.Background(), NewBufferedInput("two"))
	obj := decodeObject(t, f.tr.Entries()[1])
	require.NotContains(t, obj, "policy_ok")
}

func TestHandleSend_ConcurrentActions(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathChat, map[string]any{"result": map[string]any{"message": "ok"}})
	f.backend.respond(backend.PathVerifyCompare, map[string]any{"status": "ok"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.o.HandleSend(context.Background(), NewBufferedInput("hi"))
		}()
		go func() {
			defer wg.Done()
			f.o.HandleVerify(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, 40, f.tr.Len())
	require.Equal(t, 20, f.backend.total())
}

func TestHandleActivate(t *testing.T) {
	f := newFixture("", "")
	f.o.HandleActivate(context.Background(), nil)
	require.Equal(t, []string{MsgNoContractPreview}, texts(f.tr.Entries()))
	require.Equal(t, 0, f.backend.total())

	f.files.Select(UploadedFile{Name: "c.yaml"})
	f.backend.respond(backend.PathUpload, map[string]any{"ok": true, "contract": map[string]any{"version": "v2"}})
	f.backend.respond(backend.PathContractActivate, map[string]any{"ok": true, "active_version": "v2"})
	f.o.HandleUpload(context.Background())
	f.o.HandleActivate(context.Background(), nil)

	entries := f.tr.Entries()
	require.Equal(t, "Contract activated (version v2).", entries[len(entries)-1].Text)
	require.JSONEq(t, `{"version":"v2"}`, string(f.backend.lastContract))
}

func TestHandleActivate_Failure(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathContractActivate, map[string]any{"detail": "activate failed: schema"})
	f.o.HandleActivate(context.Background(), json.RawMessage(`{"version":"v3"}`))
	require.Equal(t, []string{"activate contract", "Activation failed: activate failed: schema"}, texts(f.tr.Entries()))
}

func TestHandleActiveContract(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathContractActive, map[string]any{"ok": false, "active": nil})
	f.o.HandleActiveContract(context.Background())
	require.Equal(t, MsgNoActiveContract, f.tr.Entries()[1].Text)

	f = newFixture("", "")
	f.backend.respond(backend.PathContractActive, map[string]any{"ok": true, "active": map[string]any{"entities": map[string]any{}}, "version": "v4"})
	f.o.HandleActiveContract(context.Background())
	obj := decodeObject(t, f.tr.Entries()[1])
	require.Equal(t, "v4", obj["version"])
	require.Contains(t, obj, "active")
}

func TestHandleExecute(t *testing.T) {
	f := newFixture("", "")
	f.o.HandleExecute(context.Background(), "  ", false)
	require.Equal(t, []string{MsgNoSQL}, texts(f.tr.Entries()))

	f.backend.respond(backend.PathChat, map[string]any{"result": map[string]any{"sql": "SELECT ts FROM spans"}})
	f.backend.respond(backend.PathExecute, map[string]any{
		"status":   "estimate",
		"message":  "Dry-run cost estimate. Reply yes to execute.",
		"estimate": map[string]any{"bytes_processed": 1024},
	})
	f.o.HandleSend(context.Background(), NewBufferedInput("ts"))
	before := f.tr.Len()
	f.o.HandleExecute(context.Background(), "", false)

	require.Equal(t, backend.ExecuteRequest{SQL: "SELECT ts FROM spans", Dataset: "prod"}, f.backend.lastExecute)
	entries := f.tr.Entries()[before:]
	require.Equal(t, "execute (dry run)", entries[0].Text)
	require.Equal(t, transcript.KindCode, entries[1].Kind)
	require.Equal(t, "[estimate] Dry-run cost estimate. Reply yes to execute.", entries[2].Text)
	require.Contains(t, decodeObject(t, entries[3]), "estimate")
	require.Len(t, entries, 4)
}

func TestHandleExecute_PolicyBlockAndFailure(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathExecute, map[string]any{
		"status":     "policy_block",
		"message":    "SQL violates policy; fix and retry.",
		"violations": []any{map[string]any{"severity": "error"}},
	})
	f.o.HandleExecute(context.Background(), "SELECT * FROM spans", true)
	entries := f.tr.Entries()
	require.Equal(t, "execute (confirmed)", entries[0].Text)
	require.Equal(t, "[policy_block] SQL violates policy; fix and retry.", entries[2].Text)
	require.Contains(t, decodeObject(t, entries[3]), "violations")
	require.True(t, f.backend.lastExecute.Confirm)

	f = newFixture("", "")
	f.backend.respond(backend.PathExecute, map[string]any{"detail": "sql is required."})
	f.o.HandleExecute(context.Background(), "SELECT 1", false)
	last := f.tr.Entries()[f.tr.Len()-1]
	require.Equal(t, "Execute failed: sql is required.", last.Text)
}

func TestHandleDocuments(t *testing.T) {
	f := newFixture("", "")
	f.backend.respond(backend.PathSettings, map[string]any{"ok": true, "settings": map[string]any{"dataset": "prod"}})
	f.o.HandleGetSettings(context.Background())
	require.Equal(t, "prod", decodeObject(t, f.tr.Entries()[1])["dataset"])

	f.o.HandleSetSettings(context.Background(), map[string]any{"dataset": "prod"})
	require.Equal(t, map[string]any{"dataset": "prod"}, f.backend.lastDoc)
	require.Equal(t, "Settings saved.", f.tr.Entries()[3].Text)

	f.backend.respond(backend.PathCatalog, map[string]any{"ok": false, "catalog": map[string]any{}})
	f.o.HandleGetCatalog(context.Background())
	require.Equal(t, MsgNoCatalog, f.tr.Entries()[f.tr.Len()-1].Text)

	f.backend.respond(backend.PathCatalog, map[string]any{"detail": "catalog set failed: boom"})
	f.o.HandleSetCatalog(context.Background(), map[string]any{})
	last := f.tr.Entries()[f.tr.Len()-1].Text
	require.True(t, strings.HasPrefix(last, "Catalog update failed: "))
}

func TestFileSelection_SelectPath(t *testing.T) {
	var s FileSelection
	require.Error(t, s.SelectPath(" "))
	require.Error(t, s.SelectPath("/does/not/exist.yaml"))

	path := t.TempDir() + "/contract.yaml"
	require.NoError(t, os.WriteFile(path, []byte("version: 1"), 0o600))
	require.NoError(t, s.SelectPath(path))
	f, ok := s.Selected()
	require.True(t, ok)
	require.Equal(t, "contract.yaml", f.Name)
	require.Equal(t, "version: 1", string(f.Content))

	s.Reset()
	_, ok = s.Selected()
	require.False(t, ok)
}
