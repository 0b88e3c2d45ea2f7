package transcript

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	jsonStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

var (
	glamourStyleOnce sync.Once
	glamourStyle     = "light"
)

// detectStyle queries the terminal background once; later queries would race
// with a running bubbletea program for terminal input.
func detectStyle() string {
	glamourStyleOnce.Do(func() {
		if termenv.HasDarkBackground() {
			glamourStyle = "dark"
		}
	})
	return glamourStyle
}

// Renderer turns entries into display text for terminals and plain writers.
type Renderer struct {
	styled bool
	width  int
	glam   *glamour.TermRenderer
}

// NewRenderer creates a renderer. When styled is false the output carries no
// escape sequences at all.
func NewRenderer(width int, styled bool) *Renderer {
	r := &Renderer{styled: styled, width: width}
	if !styled {
		return r
	}
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(detectStyle())}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	g, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		log.Debug().Err(err).Msg("glamour renderer unavailable, falling back to lipgloss")
	} else {
		r.glam = g
	}
	return r
}

// Render returns the display text of e.
func (r *Renderer) Render(e Entry) string {
	if !r.styled {
		return renderPlain(e)
	}
	label := labelStyle.Render("smartsql")
	if e.Origin == OriginUser {
		label = userStyle.Render("you")
	}

	var body string
	switch e.Kind {
	case KindCode:
		body = r.renderCode(e.Text)
	case KindObject:
		body = jsonStyle.Render(e.Text)
	default:
		if e.Origin == OriginUser {
			body = userStyle.Render(e.Text)
		} else {
			body = systemStyle.Render(e.Text)
		}
	}
	if strings.Contains(body, "\n") {
		return label + "\n" + body
	}
	return label + " " + body
}

func (r *Renderer) renderCode(sql string) string {
	if r.glam != nil {
		out, err := r.glam.Render("```sql\n" + sql + "\n```\n")
		if err == nil {
			return strings.Trim(out, "\n")
		}
		log.Debug().Err(err).Msg("glamour render failed")
	}
	return codeStyle.Render(sql)
}

func renderPlain(e Entry) string {
	switch {
	case e.Origin == OriginUser:
		return "> " + e.Text
	default:
		return e.Text
	}
}
