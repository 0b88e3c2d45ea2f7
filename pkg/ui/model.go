package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/smartsql-chat/pkg/actions"
	"github.com/go-go-golems/smartsql-chat/pkg/session"
	"github.com/go-go-golems/smartsql-chat/pkg/transcript"
	"github.com/rs/zerolog/log"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	noticeStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle   = lipgloss.NewStyle().Faint(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

// Actions is what the UI triggers. *actions.Orchestrator implements it.
type Actions interface {
	HandleUpload(ctx context.Context)
	HandleVerify(ctx context.Context)
	HandleVerifyDataset(ctx context.Context)
	HandleSend(ctx context.Context, in actions.ChatInput)
	HandleDraft(ctx context.Context, text string)
	HandleActivate(ctx context.Context, contract json.RawMessage)
	HandleActiveContract(ctx context.Context)
	HandleExecute(ctx context.Context, sql string, confirm bool)
	LastSQL() string
}

var _ Actions = &actions.Orchestrator{}

// StatusRefresher produces the session status line.
type StatusRefresher interface {
	RefreshHealth(ctx context.Context) string
}

// StatusMsg replaces the status line.
type StatusMsg struct {
	Line string
}

type actionDoneMsg struct{}

type focusTarget int

const (
	focusChat focusTarget = iota
	focusDataset
	focusTable
	focusCount
)

type Model struct {
	ctx       context.Context
	actions   Actions
	status    StatusRefresher
	selection *session.Selection
	files     *actions.FileSelection
	copyFn    func(string) error

	renderer *transcript.Renderer
	entries  []transcript.Entry

	viewport viewport.Model
	chat     textinput.Model
	dataset  textinput.Model
	table    textinput.Model
	spinner  spinner.Model

	focus      focusTarget
	inFlight   int
	statusLine string
	notice     string
	width      int
	height     int
	ready      bool
}

type ModelOption func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(f func(string) error) ModelOption {
	return func(m *Model) { m.copyFn = f }
}

func WithStatus(s StatusRefresher) ModelOption {
	return func(m *Model) { m.status = s }
}

func NewModel(
	ctx context.Context,
	a Actions,
	selection *session.Selection,
	files *actions.FileSelection,
	opts ...ModelOption,
) Model {
	chat := textinput.New()
	chat.Placeholder = "Ask about your data, or /help"
	chat.Prompt = "› "
	chat.CharLimit = 0
	chat.Focus()

	dataset := textinput.New()
	dataset.Prompt = ""
	dataset.Placeholder = session.DefaultDataset
	dataset.SetValue(selection.Dataset())
	dataset.Width = 16

	table := textinput.New()
	table.Prompt = ""
	table.Placeholder = session.DefaultTable
	table.SetValue(selection.Table())
	table.Width = 16

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:        ctx,
		actions:    a,
		selection:  selection,
		files:      files,
		copyFn:     clipboard.WriteAll,
		renderer:   transcript.NewRenderer(80, true),
		viewport:   viewport.New(80, 20),
		chat:       chat,
		dataset:    dataset,
		table:      table,
		spinner:    sp,
		statusLine: "Provider: … • Offline: …",
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshStatus())
}

func (m Model) refreshStatus() tea.Cmd {
	if m.status == nil {
		return nil
	}
	ctx, s := m.ctx, m.status
	return func() tea.Msg {
		return StatusMsg{Line: s.RefreshHealth(ctx)}
	}
}

// run starts f as a command. Actions never touch the model; their output
// arrives as EntryMsg through the event bus.
func (m *Model) run(f func(ctx context.Context)) tea.Cmd {
	m.inFlight++
	ctx := m.ctx
	cmd := func() tea.Msg {
		f(ctx)
		return actionDoneMsg{}
	}
	if m.inFlight == 1 {
		return tea.Batch(cmd, m.spinner.Tick)
	}
	return cmd
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case EntryMsg:
		m.insertEntry(msg.Entry)
		m.refreshViewport()
		return m, nil

	case StatusMsg:
		m.statusLine = msg.Line
		return m, nil

	case actionDoneMsg:
		if m.inFlight > 0 {
			m.inFlight--
		}
		return m, nil

	case spinner.TickMsg:
		if m.inFlight == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.setFocus((m.focus + 1) % focusCount)
			return m, nil
		case "shift+tab":
			m.setFocus((m.focus + focusCount - 1) % focusCount)
			return m, nil
		case "ctrl+v":
			return m, m.run(m.actions.HandleVerify)
		case "ctrl+u":
			return m, m.run(m.actions.HandleUpload)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			if m.focus != focusChat {
				m.setFocus(focusChat)
				return m, nil
			}
			return m.submit()
		}
	}

	return m.updateFocused(msg)
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusDataset:
		m.dataset, cmd = m.dataset.Update(msg)
		m.selection.SetDataset(m.dataset.Value())
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		m.selection.SetTable(m.table.Value())
	default:
		m.chat, cmd = m.chat.Update(msg)
	}
	return m, cmd
}

// submit handles enter in the chat field. Blank input is left untouched.
func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.chat.Value()
	if strings.TrimSpace(value) == "" {
		return m, nil
	}
	m.notice = ""
	m.chat.Reset()

	if c, ok := parseSlashCommand(value); ok {
		return m.handleCommand(c)
	}

	// the real field is cleared here; the action clears its own snapshot
	input := actions.NewBufferedInput(value)
	return m, m.run(func(ctx context.Context) {
		m.actions.HandleSend(ctx, input)
	})
}

func (m Model) handleCommand(c slashCommand) (tea.Model, tea.Cmd) {
	a := m.actions
	switch c.name {
	case cmdVerify:
		return m, m.run(a.HandleVerify)
	case cmdVerifyDataset:
		return m, m.run(a.HandleVerifyDataset)
	case cmdDraft:
		if c.arg == "" {
			m.notice = "Usage: /draft QUESTION"
			return m, nil
		}
		text := c.arg
		return m, m.run(func(ctx context.Context) { a.HandleDraft(ctx, text) })
	case cmdUpload:
		if c.arg != "" {
			if err := m.files.SelectPath(c.arg); err != nil {
				log.Debug().Err(err).Str("path", c.arg).Msg("file selection failed")
				m.notice = fmt.Sprintf("Cannot read %s: %v", c.arg, err)
				return m, nil
			}
		}
		return m, m.run(a.HandleUpload)
	case cmdFile:
		if c.arg == "" {
			m.files.Reset()
			m.notice = "File selection cleared."
			return m, nil
		}
		if err := m.files.SelectPath(c.arg); err != nil {
			m.notice = fmt.Sprintf("Cannot read %s: %v", c.arg, err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Selected %s. Press ctrl+u to upload.", c.arg)
		return m, nil
	case cmdActivate:
		return m, m.run(func(ctx context.Context) { a.HandleActivate(ctx, nil) })
	case cmdContract:
		return m, m.run(a.HandleActiveContract)
	case cmdRun:
		confirm := strings.EqualFold(c.arg, "confirm") || strings.EqualFold(c.arg, "yes")
		return m, m.run(func(ctx context.Context) { a.HandleExecute(ctx, "", confirm) })
	case cmdCopy:
		sql := a.LastSQL()
		if sql == "" {
			m.notice = "No draft SQL to copy."
			return m, nil
		}
		if err := m.copyFn(sql); err != nil {
			m.notice = fmt.Sprintf("Copy failed: %v", err)
			return m, nil
		}
		m.notice = "Copied draft SQL to clipboard."
		return m, nil
	case cmdDataset:
		m.selection.SetDataset(c.arg)
		m.dataset.SetValue(c.arg)
		return m, nil
	case cmdTable:
		m.selection.SetTable(c.arg)
		m.table.SetValue(c.arg)
		return m, nil
	case cmdHealth:
		return m, m.refreshStatus()
	case cmdQuit:
		return m, tea.Quit
	case cmdHelp:
		m.notice = helpText
		return m, nil
	default:
		m.notice = fmt.Sprintf("Unknown command /%s. %s", c.name, helpText)
		return m, nil
	}
}

func (m *Model) setFocus(f focusTarget) {
	m.focus = f
	m.chat.Blur()
	m.dataset.Blur()
	m.table.Blur()
	switch f {
	case focusDataset:
		m.dataset.Focus()
	case focusTable:
		m.table.Focus()
	default:
		m.chat.Focus()
	}
}

// insertEntry places e by sequence number. Entries can arrive out of order
// from the bus; duplicates are ignored.
func (m *Model) insertEntry(e transcript.Entry) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Seq >= e.Seq })
	if i < len(m.entries) && m.entries[i].Seq == e.Seq {
		return
	}
	m.entries = append(m.entries, transcript.Entry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.chat.Width = max(width-4, 10)
	m.viewport.Width = width
	// title, status, notice, selection, chat, help
	m.viewport.Height = max(height-7, 3)
	m.renderer = transcript.NewRenderer(max(width-2, 20), true)
	m.ready = true
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	parts := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		parts = append(parts, m.renderer.Render(e))
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SmartSQL"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.statusLine))
	if m.inFlight > 0 {
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(noticeStyle.Render(m.notice))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("dataset ") + m.dataset.View() + "  " + labelStyle.Render("table ") + m.table.View())
	b.WriteString("\n")
	b.WriteString(m.chat.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • ctrl+v verify • ctrl+u upload • tab focus • /help • ctrl+c quit"))
	return b.String()
}

// Entries returns the entries shown, in sequence order.
func (m Model) Entries() []transcript.Entry {
	return append([]transcript.Entry(nil), m.entries...)
}
