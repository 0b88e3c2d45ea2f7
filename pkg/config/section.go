package config

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/pkg/errors"
)

const (
	SectionSlug    = "smartsql"
	DefaultBaseURL = "http://localhost:8000"
)

// Settings are shared by every smartsql-chat command.
type Settings struct {
	BaseURL      string `glazed:"base-url"`
	Dataset      string `glazed:"dataset"`
	Table        string `glazed:"table"`
	TranscriptDB string `glazed:"transcript-db"`
	MirrorAddr   string `glazed:"mirror-addr"`
	Setup        bool   `glazed:"setup"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"SmartSQL backend and session settings",
		schema.WithFields(
			fields.New("base-url", fields.TypeString,
				fields.WithDefault(DefaultBaseURL),
				fields.WithHelp("SmartSQL backend base URL")),
			fields.New("dataset", fields.TypeString,
				fields.WithDefault(session.DefaultDataset),
				fields.WithHelp("Dataset used by verify, chat and execute")),
			fields.New("table", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Table; verify falls back to "+session.DefaultTable+", chat omits it when blank")),
			fields.New("transcript-db", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("SQLite file archiving transcripts (empty keeps them in memory)")),
			fields.New("mirror-addr", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Serve a read-only websocket mirror of the transcript on this address, e.g. :8090")),
			fields.New("setup", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Ask for dataset and table before starting the chat")),
		),
	)
}

// Decode reads the smartsql section out of parsed values.
func Decode(parsed *values.Values) (*Settings, error) {
	s := &Settings{}
	if err := parsed.DecodeSectionInto(SectionSlug, s); err != nil {
		return nil, errors.Wrap(err, "decode smartsql settings")
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	return s, nil
}

// Selection returns the ambient dataset/table selection of s.
func (s *Settings) Selection() *session.Selection {
	return session.NewSelection(s.Dataset, s.Table)
}
