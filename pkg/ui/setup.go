package ui

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/pkg/errors"
)

// RunSetupForm asks for the dataset and table before the chat starts. Blank
// answers keep the defaults applied at action time.
func RunSetupForm(sel *session.Selection) error {
	dataset := sel.Dataset()
	table := sel.Table()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dataset").
				Placeholder(session.DefaultDataset).
				Value(&dataset),
			huh.NewInput().
				Title("Table").
				Description("Optional. Chat requests omit it when blank; verify uses "+session.DefaultTable+".").
				Placeholder(session.DefaultTable).
				Value(&table),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return errors.Wrap(err, "setup form")
	}
	sel.SetDataset(strings.TrimSpace(dataset))
	sel.SetTable(strings.TrimSpace(table))
	return nil
}
