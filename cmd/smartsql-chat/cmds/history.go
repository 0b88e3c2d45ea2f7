package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/smartsql-chat/pkg/config"
	"github.com/go-go-golems/smartsql-chat/pkg/persistence/transcriptstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func historySections() ([]cmds.CommandDescriptionOption, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}
	sections, err := smartsqlSections(glazedSection, commandSettingsSection)
	if err != nil {
		return nil, err
	}
	return []cmds.CommandDescriptionOption{cmds.WithSections(sections...)}, nil
}

func openHistoryStore(parsed *values.Values) (*transcriptstore.SQLiteTranscriptStore, error) {
	s, err := config.Decode(parsed)
	if err != nil {
		return nil, err
	}
	if s.TranscriptDB == "" {
		return nil, errors.New("transcript archive not configured (set --transcript-db)")
	}
	return transcriptstore.OpenFile(s.TranscriptDB)
}

type HistoryListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryListCommand)(nil)

type HistoryListSettings struct {
	Limit int    `glazed:"limit"`
	Since string `glazed:"since"`
}

func NewHistoryListCommand() (*HistoryListCommand, error) {
	opts, err := historySections()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		cmds.WithShort("List archived chat sessions, most recent first"),
		cmds.WithFlags(
			fields.New("limit", fields.TypeInteger,
				fields.WithDefault(50),
				fields.WithHelp("Maximum number of sessions (0 = store default of 200)")),
			fields.New("since", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only sessions active within this duration, e.g. 24h")),
		),
	)
	return &HistoryListCommand{CommandDescription: cmds.NewCommandDescription("list", opts...)}, nil
}

func (c *HistoryListCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	hs := &HistoryListSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, hs); err != nil {
		return errors.Wrap(err, "decode history settings")
	}
	var sinceMs int64
	if hs.Since != "" {
		d, err := time.ParseDuration(hs.Since)
		if err != nil {
			return errors.Wrapf(err, "parse --since %q", hs.Since)
		}
		sinceMs = time.Now().Add(-d).UnixMilli()
	}

	store, err := openHistoryStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(ctx, hs.Limit, sinceMs)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		row := types.NewRow(
			types.MRP("session_id", s.SessionID),
			types.MRP("base_url", s.BaseURL),
			types.MRP("dataset", s.Dataset),
			types.MRP("table", s.Table),
			types.MRP("entries", s.EntryCount),
			types.MRP("last_seq", s.LastSeq),
			types.MRP("created_at", time.UnixMilli(s.CreatedAtMs).Format(time.RFC3339)),
			types.MRP("last_activity", time.UnixMilli(s.LastActivityMs).Format(time.RFC3339)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type HistoryShowCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryShowCommand)(nil)

type HistoryShowSettings struct {
	SessionID string `glazed:"session-id"`
	SinceSeq  int    `glazed:"since-seq"`
	Limit     int    `glazed:"limit"`
}

func NewHistoryShowCommand() (*HistoryShowCommand, error) {
	opts, err := historySections()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		cmds.WithShort("Print the archived entries of one session"),
		cmds.WithArguments(
			fields.New("session-id", fields.TypeString,
				fields.WithHelp("Session to show"),
				fields.WithRequired(true)),
		),
		cmds.WithFlags(
			fields.New("since-seq", fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Only entries after this sequence number")),
			fields.New("limit", fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Maximum number of entries (0 = store default of 5000)")),
		),
	)
	return &HistoryShowCommand{CommandDescription: cmds.NewCommandDescription("show", opts...)}, nil
}

func (c *HistoryShowCommand) RunIntoGlazeProcessor(ctx context.Context, parsed *values.Values, gp middlewares.Processor) error {
	hs := &HistoryShowSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, hs); err != nil {
		return errors.Wrap(err, "decode history settings")
	}
	if hs.SinceSeq < 0 {
		return errors.New("--since-seq must not be negative")
	}

	store, err := openHistoryStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.GetEntries(ctx, hs.SessionID, uint64(hs.SinceSeq), hs.Limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		row := types.NewRow(
			types.MRP("seq", e.Seq),
			types.MRP("origin", string(e.Origin)),
			types.MRP("kind", string(e.Kind)),
			types.MRP("text", e.Text),
			types.MRP("created_at", time.UnixMilli(e.CreatedAtMs).Format(time.RFC3339)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func historyGroup() *cobra.Command {
	group := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived chat transcripts",
	}
	list, err := NewHistoryListCommand()
	cobra.CheckErr(err)
	show, err := NewHistoryShowCommand()
	cobra.CheckErr(err)
	group.AddCommand(buildCobra(list), buildCobra(show))
	return group
}
