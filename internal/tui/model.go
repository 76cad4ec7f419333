// Package tui is the terminal chat interface.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/vincentbot/internal/cli"
	"github.com/hyperjump/vincentbot/internal/models"
)

// Asker answers one question. *pipeline.Pipeline and *cli.Client implement it.
type Asker interface {
	Ask(ctx context.Context, query string) (*models.Answer, error)
}

// Turn is one exchange in the transcript.
type Turn struct {
	Question string
	Answer   string
	Sources  []string
	Failed   bool
}

type answerMsg struct {
	answer *models.Answer
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	asker   Asker
	timeout time.Duration
	title   string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turns   []Turn
	pending string
	waiting bool
	status  string
	ready   bool
}

// New creates a chat model. timeout bounds each question; zero means no limit.
func New(asker Asker, title string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about Vincent and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return Model{
		asker:    asker,
		timeout:  timeout,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Ctrl+C to quit.",
	}
}

// Turns returns the transcript so far.
func (m Model) Turns() []Turn { return m.turns }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 + th
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		turn := Turn{Question: m.pending}
		if msg.err != nil {
			turn.Answer = cli.ErrorMessage(msg.err)
			turn.Failed = true
			m.status = "Error: " + turn.Answer
		} else {
			turn.Answer = msg.answer.Text
			turn.Sources = msg.answer.Sources
			m.status = fmt.Sprintf("Answered in %s", msg.answer.Took.Round(time.Millisecond))
		}
		m.turns = append(m.turns, turn)
		m.pending = ""
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.pending = q
			m.waiting = true
			m.status = fmt.Sprintf("Thinking about %q", cli.TruncateWords(q, 8))
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

func (m Model) ask(q string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := asker.Ask(ctx, q)
		return answerMsg{answer: answer, err: err}
	}
}

// View renders the transcript, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(m.title)
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 && m.pending == "" {
		return hintStyle.Render("Ask a question about Vincent's background, experience or projects.")
	}
	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(youStyle.Render("You: ") + t.Question + "\n")
		if t.Failed {
			b.WriteString(errorStyle.Render("Bot: "+t.Answer) + "\n")
		} else {
			b.WriteString(botStyle.Render("Bot: ") + t.Answer + "\n")
			if len(t.Sources) > 0 {
				names := make([]string, len(t.Sources))
				for i, s := range t.Sources {
					names[i] = filepath.Base(s)
				}
				b.WriteString(hintStyle.Render("     sources: "+strings.Join(names, ", ")) + "\n")
			}
		}
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(youStyle.Render("You: ") + m.pending + "\n")
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	youStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
