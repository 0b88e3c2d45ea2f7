package cmds

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/smartsql-chat/pkg/actions"
	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/go-go-golems/smartsql-chat/pkg/config"
	"github.com/go-go-golems/smartsql-chat/pkg/events"
	"github.com/go-go-golems/smartsql-chat/pkg/persistence/transcriptstore"
	"github.com/go-go-golems/smartsql-chat/pkg/redisstream"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/go-go-golems/smartsql-chat/pkg/ui"
	"github.com/go-go-golems/smartsql-chat/pkg/webmirror"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type ChatCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = (*ChatCommand)(nil)

type ChatSettings struct {
	Verbose   bool `glazed:"verbose"`
	AltScreen bool `glazed:"alt-screen"`
}

func NewChatCommand() (*ChatCommand, error) {
	redisSection, err := redisstream.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build redis section")
	}
	sections, err := smartsqlSections(redisSection)
	if err != nil {
		return nil, err
	}
	return &ChatCommand{CommandDescription: cmds.NewCommandDescription(
		"chat",
		cmds.WithShort("Interactive SmartSQL chat"),
		cmds.WithLong("Chat with the SmartSQL backend: ask questions, preview and activate contracts, verify datasets and run draft SQL."),
		cmds.WithFlags(
			fields.New("verbose", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Verbose event router logging")),
			fields.New("alt-screen", fields.TypeBool,
				fields.WithDefault(true),
				fields.WithHelp("Run the chat in the terminal alternate screen")),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *ChatCommand) Run(ctx context.Context, parsed *values.Values) error {
	cs := &ChatSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, cs); err != nil {
		return errors.Wrap(err, "decode chat settings")
	}
	s, err := config.Decode(parsed)
	if err != nil {
		return err
	}
	rs := redisstream.Settings{}
	if err := parsed.DecodeSectionInto(redisstream.SectionSlug, &rs); err != nil {
		return errors.Wrap(err, "decode redis settings")
	}

	selection := s.Selection()
	if s.Setup {
		if err := ui.RunSetupForm(selection); err != nil {
			return err
		}
	}

	sessionID := uuid.NewString()
	store, err := openChatStore(s)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		if err := store.UpsertSession(ctx, sessionRecord(sessionID, s)); err != nil {
			log.Warn().Err(err).Msg("failed to record session")
		}
	}

	router, err := redisstream.BuildRouter(rs, cs.Verbose)
	if err != nil {
		return errors.Wrap(err, "create event router")
	}
	defer func() { _ = router.Close() }()

	client := backend.NewClient(s.BaseURL)
	tr := transcript.New(sessionID, transcript.WithSink(events.NewPublishSink(router.Publisher, events.TopicTranscript)))
	files := &actions.FileSelection{}
	orchestrator := actions.NewOrchestrator(client, tr,
		actions.WithConfigSource(selection),
		actions.WithFileSource(files),
	)

	eg, groupCtx := errgroup.WithContext(ctx)
	groupCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()

	model := ui.NewModel(groupCtx, orchestrator, selection, files,
		ui.WithStatus(session.NewStatusTracker(client, nil)),
	)
	programOpts := []tea.ProgramOption{tea.WithContext(groupCtx)}
	if cs.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, programOpts...)

	var hub *webmirror.Hub
	if s.MirrorAddr != "" {
		hub = webmirror.NewHub()
		eg.Go(func() error {
			return webmirror.Serve(groupCtx, s.MirrorAddr, hub)
		})
	}

	for _, h := range chatHandlers(router, p, store, hub, sessionID, cs.Verbose) {
		if err := addBusHandler(ctx, router, rs, h.name, h.f); err != nil {
			return err
		}
	}

	eg.Go(func() error {
		defer cancel()
		return router.Run(groupCtx)
	})

	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-groupCtx.Done():
			return nil
		}
		log.Debug().Str("session_id", sessionID).Msg("event router running; starting chat UI")
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "chat UI")
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Int("entries", tr.Len()).Msg("chat finished")
	return nil
}

type busHandler struct {
	name string
	f    func(*message.Message) error
}

// chatHandlers lists the transcript consumers of a chat session. Persistence
// needs a store, the mirror needs a hub and raw dumping is verbose only.
func chatHandlers(
	router *events.EventRouter,
	p ui.Sender,
	store transcriptstore.TranscriptStore,
	hub *webmirror.Hub,
	sessionID string,
	verbose bool,
) []busHandler {
	out := []busHandler{{"ui-forward", ui.StepTranscriptForwardFunc(p, sessionID)}}
	if store != nil {
		out = append(out, busHandler{"transcript-persist", ui.StepTranscriptPersistFunc(store, sessionID)})
	}
	if hub != nil {
		out = append(out, busHandler{"web-mirror", webmirror.StepTranscriptMirrorFunc(hub, sessionID)})
	}
	if verbose {
		out = append(out, busHandler{"debug-raw", router.DumpRawEvents})
	}
	return out
}

func addBusHandler(ctx context.Context, router *events.EventRouter, rs redisstream.Settings, name string, f func(*message.Message) error) error {
	opts, err := redisstream.HandlerOptions(ctx, rs, events.TopicTranscript, name)
	if err != nil {
		return err
	}
	router.AddHandlerWithOptions(name, events.TopicTranscript, f, opts...)
	return nil
}

// openChatStore returns nil when no transcript database is configured.
func openChatStore(s *config.Settings) (transcriptstore.TranscriptStore, error) {
	if s.TranscriptDB == "" {
		return nil, nil
	}
	return transcriptstore.OpenFile(s.TranscriptDB)
}
