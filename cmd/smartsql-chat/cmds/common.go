package cmds

import (
	"context"
	"io"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/smartsql-chat/pkg/actions"
	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/go-go-golems/smartsql-chat/pkg/config"
	"github.com/go-go-golems/smartsql-chat/pkg/persistence/transcriptstore"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const envPrefix = "SMARTSQL"

func getMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(envPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}

func buildCobra(c glazedcmds.Command) *cobra.Command {
	command, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(getMiddlewares))
	cobra.CheckErr(err)
	return command
}

// smartsqlSections returns the sections every backend command shares.
func smartsqlSections(extra ...schema.Section) ([]schema.Section, error) {
	section, err := config.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build smartsql section")
	}
	return append([]schema.Section{section}, extra...), nil
}

// oneShot is one backend action printed to a writer, optionally archived.
type oneShot struct {
	settings     *config.Settings
	orchestrator *actions.Orchestrator
	files        *actions.FileSelection
	transcript   *transcript.Transcript
	store        transcriptstore.TranscriptStore
}

func newOneShot(ctx context.Context, parsed *values.Values, w io.Writer) (*oneShot, error) {
	s, err := config.Decode(parsed)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	opts := []transcript.Option{transcript.WithSink(transcript.NewWriterSink(w))}

	var store transcriptstore.TranscriptStore
	if s.TranscriptDB != "" {
		sqliteStore, err := transcriptstore.OpenFile(s.TranscriptDB)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
		if err := store.UpsertSession(ctx, sessionRecord(sessionID, s)); err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, transcript.WithSink(archiveSink(store)))
	}

	tr := transcript.New(sessionID, opts...)
	files := &actions.FileSelection{}
	o := actions.NewOrchestrator(
		backend.NewClient(s.BaseURL),
		tr,
		actions.WithConfigSource(s.Selection()),
		actions.WithFileSource(files),
	)
	log.Debug().Str("base_url", s.BaseURL).Str("session_id", sessionID).Msg("one-shot session ready")
	return &oneShot{settings: s, orchestrator: o, files: files, transcript: tr, store: store}, nil
}

func (o *oneShot) Close() {
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing transcript store")
		}
	}
}

func sessionRecord(sessionID string, s *config.Settings) transcriptstore.SessionRecord {
	now := time.Now().UnixMilli()
	return transcriptstore.SessionRecord{
		SessionID:      sessionID,
		BaseURL:        s.BaseURL,
		Dataset:        s.Dataset,
		Table:          s.Table,
		CreatedAtMs:    now,
		LastActivityMs: now,
	}
}

// archiveSink appends entries synchronously; one-shot commands have no bus.
func archiveSink(store transcriptstore.TranscriptStore) transcript.Sink {
	return transcript.SinkFunc(func(e transcript.Entry) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Append(ctx, e)
	})
}
