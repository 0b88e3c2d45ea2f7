package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/smartsql-chat/pkg/actions"
	"github.com/go-go-golems/smartsql-chat/pkg/backend"
	"github.com/go-go-golems/smartsql-chat/pkg/config"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/pkg/errors"
)

type HealthCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*HealthCommand)(nil)

func NewHealthCommand() (*HealthCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &HealthCommand{CommandDescription: cmds.NewCommandDescription(
		"health",
		cmds.WithShort("Print the backend provider and offline status"),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *HealthCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s, err := config.Decode(parsed)
	if err != nil {
		return err
	}
	tracker := session.NewStatusTracker(backend.NewClient(s.BaseURL), session.StatusFunc(func(line string) {
		_, _ = fmt.Fprintln(w, line)
	}))
	tracker.RefreshHealth(ctx)
	return nil
}

type UploadCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*UploadCommand)(nil)

type UploadSettings struct {
	File     string `glazed:"file"`
	Activate bool   `glazed:"activate"`
}

func NewUploadCommand() (*UploadCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &UploadCommand{CommandDescription: cmds.NewCommandDescription(
		"upload",
		cmds.WithShort("Upload a contract file and preview the parsed contract"),
		cmds.WithArguments(
			fields.New("file", fields.TypeString,
				fields.WithHelp("Contract file to upload"),
				fields.WithRequired(true)),
		),
		cmds.WithFlags(
			fields.New("activate", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Activate the previewed contract after a successful upload")),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *UploadCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	us := &UploadSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, us); err != nil {
		return errors.Wrap(err, "decode upload settings")
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()

	if err := run.files.SelectPath(us.File); err != nil {
		return err
	}
	run.orchestrator.HandleUpload(ctx)
	if us.Activate && run.orchestrator.LastContract() != nil {
		run.orchestrator.HandleActivate(ctx, nil)
	}
	return nil
}

type VerifyCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*VerifyCommand)(nil)

func NewVerifyCommand() (*VerifyCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &VerifyCommand{CommandDescription: cmds.NewCommandDescription(
		"verify",
		cmds.WithShort("Compare the selected dataset/table against the active contract"),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *VerifyCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleVerify(ctx)
	return nil
}

type VerifyDatasetCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*VerifyDatasetCommand)(nil)

func NewVerifyDatasetCommand() (*VerifyDatasetCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &VerifyDatasetCommand{CommandDescription: cmds.NewCommandDescription(
		"verify-dataset",
		cmds.WithShort("Check warehouse access for the selected dataset"),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *VerifyDatasetCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleVerifyDataset(ctx)
	return nil
}

type DraftCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*DraftCommand)(nil)

type DraftSettings struct {
	Text []string `glazed:"text"`
}

func NewDraftCommand() (*DraftCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &DraftCommand{CommandDescription: cmds.NewCommandDescription(
		"draft",
		cmds.WithShort("Draft SQL for a question and lint it against the active contract"),
		cmds.WithArguments(
			fields.New("text", fields.TypeStringList,
				fields.WithHelp("Question, words are joined with spaces"),
				fields.WithRequired(true)),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *DraftCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	ds := &DraftSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, ds); err != nil {
		return errors.Wrap(err, "decode draft settings")
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleDraft(ctx, joinWords(ds.Text))
	return nil
}

type AskCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*AskCommand)(nil)

type AskSettings struct {
	Text    []string `glazed:"text"`
	Execute bool     `glazed:"execute"`
	Confirm bool     `glazed:"confirm"`
}

func NewAskCommand() (*AskCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &AskCommand{CommandDescription: cmds.NewCommandDescription(
		"ask",
		cmds.WithShort("Send one chat message and print the reply"),
		cmds.WithArguments(
			fields.New("text", fields.TypeStringList,
				fields.WithHelp("Question, words are joined with spaces"),
				fields.WithRequired(true)),
		),
		cmds.WithFlags(
			fields.New("execute", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Execute the draft SQL, if any (dry run unless --confirm)")),
			fields.New("confirm", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Confirm execution instead of a dry run")),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *AskCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	as := &AskSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, as); err != nil {
		return errors.Wrap(err, "decode ask settings")
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()

	run.orchestrator.HandleSend(ctx, actions.NewBufferedInput(joinWords(as.Text)))
	if as.Execute && run.orchestrator.LastSQL() != "" {
		run.orchestrator.HandleExecute(ctx, "", as.Confirm)
	}
	return nil
}

type ExecuteCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ExecuteCommand)(nil)

type ExecuteSettings struct {
	SQL     []string `glazed:"sql"`
	Confirm bool     `glazed:"confirm"`
}

func NewExecuteCommand() (*ExecuteCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &ExecuteCommand{CommandDescription: cmds.NewCommandDescription(
		"execute",
		cmds.WithShort("Run SQL through the backend policy checks"),
		cmds.WithLong("Sends SQL to /ask/execute. Without --confirm the backend only reports violations and estimates."),
		cmds.WithArguments(
			fields.New("sql", fields.TypeStringList,
				fields.WithHelp("SQL statement, words are joined with spaces"),
				fields.WithRequired(true)),
		),
		cmds.WithFlags(
			fields.New("confirm", fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Confirm execution instead of a dry run")),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *ExecuteCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	es := &ExecuteSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, es); err != nil {
		return errors.Wrap(err, "decode execute settings")
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleExecute(ctx, joinWords(es.SQL), es.Confirm)
	return nil
}
