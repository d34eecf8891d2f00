// Package tui provides the interactive REPL for evaluating DSL expressions
// against a live session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/weft-dsl/weft/internal/orchestrator"
	"github.com/weft-dsl/weft/internal/sexpr"
	"github.com/weft-dsl/weft/pkg/models"
)

const maxHistoryLines = 500

// resultMsg carries one finished evaluation back into the update loop.
type resultMsg struct {
	input  string
	output string
	isErr  bool
}

// Repl is the bubbletea model for the interactive evaluator.
type Repl struct {
	session *orchestrator.Session
	input   textinput.Model
	history []string
	busy    bool
	width   int

	promptStyle lipgloss.Style
	resultStyle lipgloss.Style
	errorStyle  lipgloss.Style
	footerStyle lipgloss.Style
}

// NewRepl creates a REPL bound to the given session.
func NewRepl(session *orchestrator.Session) *Repl {
	ti := textinput.New()
	ti.Placeholder = "(summarize \"...\")  Enter to evaluate, Ctrl+D to quit"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 76

	return &Repl{
		session: session,
		input:   ti,
		width:   80,

		promptStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		resultStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (r *Repl) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (r *Repl) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.input.Width = msg.Width - 4
		return r, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return r, tea.Quit
		case "enter":
			if r.busy {
				return r, nil
			}
			src := strings.TrimSpace(r.input.Value())
			if src == "" {
				return r, nil
			}
			r.input.Reset()
			r.busy = true
			return r, r.evaluate(src)
		}

	case resultMsg:
		r.busy = false
		r.history = append(r.history, r.promptStyle.Render("> ")+msg.input)
		style := r.resultStyle
		if msg.isErr {
			style = r.errorStyle
		}
		r.history = append(r.history, style.Render(msg.output))
		if len(r.history) > maxHistoryLines {
			r.history = r.history[len(r.history)-maxHistoryLines:]
		}
		return r, nil
	}

	var cmd tea.Cmd
	r.input, cmd = r.input.Update(msg)
	return r, cmd
}

// evaluate runs one expression off the update loop.
func (r *Repl) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		value, err := r.session.Run(context.Background(), src)
		if err != nil {
			return resultMsg{input: src, output: err.Error(), isErr: true}
		}
		return resultMsg{input: src, output: sexpr.FormatValue(value)}
	}
}

// View implements tea.Model.
func (r *Repl) View() string {
	var b strings.Builder
	for _, line := range r.history {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if r.busy {
		b.WriteString(r.footerStyle.Render("evaluating..."))
		b.WriteByte('\n')
	}
	b.WriteString(r.input.View())
	b.WriteByte('\n')
	b.WriteString(r.footerStyle.Render(r.footer()))
	return b.String()
}

// footer renders session identity and resource usage.
func (r *Repl) footer() string {
	snapshot := r.session.Tracker().Snapshot()
	return fmt.Sprintf("session %s · turns %s · context %s",
		r.session.SessionID(),
		formatUsage(snapshot.Turns.Used, snapshot.Turns.Limit),
		formatUsage(snapshot.Context.Used, snapshot.Context.Limit))
}

func formatUsage(used, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d/∞", used)
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

// Run starts the REPL and blocks until the user quits.
func Run(session *orchestrator.Session) error {
	_, err := tea.NewProgram(NewRepl(session)).Run()
	return err
}

// FormatResultSummary renders a one-line summary of a task result for
// non-interactive output.
func FormatResultSummary(result *models.TaskResult) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", result.Status, result.Content)
}
