package cmds

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/smartsql-chat/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func joinWords(words []string) string {
	return strings.TrimSpace(strings.Join(words, " "))
}

type documentKind string

const (
	documentSettings documentKind = "settings"
	documentCatalog  documentKind = "catalog"
)

// DocumentGetCommand prints the backend settings or catalog.
type DocumentGetCommand struct {
	*cmds.CommandDescription
	kind documentKind
}

var _ cmds.WriterCommand = (*DocumentGetCommand)(nil)

func NewDocumentGetCommand(kind documentKind) (*DocumentGetCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &DocumentGetCommand{
		CommandDescription: cmds.NewCommandDescription(
			"get",
			cmds.WithShort("Print the backend "+string(kind)),
			cmds.WithSections(sections...),
		),
		kind: kind,
	}, nil
}

func (c *DocumentGetCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	switch c.kind {
	case documentCatalog:
		run.orchestrator.HandleGetCatalog(ctx)
	default:
		run.orchestrator.HandleGetSettings(ctx)
	}
	return nil
}

type DocumentSetSettings struct {
	File string `glazed:"file"`
}

// DocumentSetCommand replaces the backend settings or catalog with a YAML or
// JSON file.
type DocumentSetCommand struct {
	*cmds.CommandDescription
	kind documentKind
}

var _ cmds.WriterCommand = (*DocumentSetCommand)(nil)

func NewDocumentSetCommand(kind documentKind) (*DocumentSetCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &DocumentSetCommand{
		CommandDescription: cmds.NewCommandDescription(
			"set",
			cmds.WithShort("Replace the backend "+string(kind)+" with a YAML or JSON file"),
			cmds.WithArguments(
				fields.New("file", fields.TypeString,
					fields.WithHelp("Document file"),
					fields.WithRequired(true)),
			),
			cmds.WithSections(sections...),
		),
		kind: kind,
	}, nil
}

func (c *DocumentSetCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	ds := &DocumentSetSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, ds); err != nil {
		return errors.Wrap(err, "decode document settings")
	}
	doc, err := config.LoadDocument(ds.File)
	if err != nil {
		return err
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	switch c.kind {
	case documentCatalog:
		run.orchestrator.HandleSetCatalog(ctx, doc)
	default:
		run.orchestrator.HandleSetSettings(ctx, doc)
	}
	return nil
}

func documentGroup(kind documentKind) *cobra.Command {
	group := &cobra.Command{
		Use:   string(kind),
		Short: "Read or replace the backend " + string(kind),
	}
	get, err := NewDocumentGetCommand(kind)
	cobra.CheckErr(err)
	set, err := NewDocumentSetCommand(kind)
	cobra.CheckErr(err)
	group.AddCommand(buildCobra(get), buildCobra(set))
	return group
}

type ContractActivateSettings struct {
	File string `glazed:"file"`
}

type ContractActivateCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ContractActivateCommand)(nil)

func NewContractActivateCommand() (*ContractActivateCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &ContractActivateCommand{CommandDescription: cmds.NewCommandDescription(
		"activate",
		cmds.WithShort("Activate a contract from a YAML or JSON file"),
		cmds.WithArguments(
			fields.New("file", fields.TypeString,
				fields.WithHelp("Contract file"),
				fields.WithRequired(true)),
		),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *ContractActivateCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	cs := &ContractActivateSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, cs); err != nil {
		return errors.Wrap(err, "decode contract settings")
	}
	contract, err := config.LoadContract(cs.File)
	if err != nil {
		return err
	}
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleActivate(ctx, contract)
	return nil
}

type ContractActiveCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ContractActiveCommand)(nil)

func NewContractActiveCommand() (*ContractActiveCommand, error) {
	sections, err := smartsqlSections()
	if err != nil {
		return nil, err
	}
	return &ContractActiveCommand{CommandDescription: cmds.NewCommandDescription(
		"active",
		cmds.WithShort("Print the active contract version"),
		cmds.WithSections(sections...),
	)}, nil
}

func (c *ContractActiveCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	run, err := newOneShot(ctx, parsed, w)
	if err != nil {
		return err
	}
	defer run.Close()
	run.orchestrator.HandleActiveContract(ctx)
	return nil
}

func contractGroup() *cobra.Command {
	group := &cobra.Command{
		Use:   "contract",
		Short: "Activate or inspect the policy contract",
	}
	activate, err := NewContractActivateCommand()
	cobra.CheckErr(err)
	active, err := NewContractActiveCommand()
	cobra.CheckErr(err)
	group.AddCommand(buildCobra(activate), buildCobra(active))
	return group
}
