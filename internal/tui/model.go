package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smartual/internal/domain"
	"smartual/internal/service"
)

// Engine is the TUI-facing subset of the question answering engine.
type Engine interface {
	Answer(ctx context.Context, question string) (*domain.Response, error)
	Feedback(ctx context.Context, resp *domain.Response, helpful bool) domain.FeedbackRecord
	Reload(ctx context.Context) error
	Stats() service.Stats
	Samples() []string
}

type answerMsg struct {
	resp *domain.Response
	err  error
}

type feedbackMsg struct {
	rec domain.FeedbackRecord
}

type reloadMsg struct {
	err error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	engine   Engine
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	resp     *domain.Response
	rated    bool
	busy     bool
	stats    service.Stats
	samples  []string
	sample   int
	status   string
	cursor   int
	ready    bool
}

// New creates a TUI model. timeout bounds each question; zero means none.
func New(engine Engine, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the student manual and press Enter (Tab for a sample)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		engine:   engine,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		stats:    engine.Stats(),
		samples:  engine.Samples(),
		sample:   -1,
		status:   "Ready. Type a question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + stats, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResponse())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.resp = msg.resp
		m.rated = false
		m.cursor = 0
		m.stats = m.engine.Stats()
		m.status = "Was this helpful? ctrl+y yes, ctrl+n no"
		m.viewport.SetContent(m.renderResponse())
		m.viewport.GotoTop()
		return m, nil
	case feedbackMsg:
		if msg.rec.Helpful {
			m.status = "Thanks! Glad it helped."
		} else {
			m.status = "Thanks for the feedback. We'll use it to improve."
		}
		return m, nil
	case reloadMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Reload failed, still serving the previous manual: " + msg.err.Error()
			return m, nil
		}
		m.stats = m.engine.Stats()
		m.status = fmt.Sprintf("Reloaded %d sections.", m.stats.Sections)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Searching the manual for %q...", q)
			return m, m.ask(q)
		case "tab":
			if len(m.samples) > 0 {
				m.sample = (m.sample + 1) % len(m.samples)
				m.input.SetValue(m.samples[m.sample])
				m.input.CursorEnd()
			}
			return m, nil
		case "ctrl+y", "ctrl+n":
			if m.resp == nil || m.rated {
				return m, nil
			}
			m.rated = true
			return m, m.rate(msg.String() == "ctrl+y")
		case "ctrl+r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Reloading manual..."
			return m, m.reload()
		case "down":
			if m.resp != nil && len(m.resp.Retrieved) > 0 {
				m.cursor = (m.cursor + 1) % len(m.resp.Retrieved)
				m.viewport.SetContent(m.renderResponse())
				return m, nil
			}
		case "up":
			if m.resp != nil && len(m.resp.Retrieved) > 0 {
				m.cursor = (m.cursor - 1 + len(m.resp.Retrieved)) % len(m.resp.Retrieved)
				m.viewport.SetContent(m.renderResponse())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	engine, timeout := m.engine, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		resp, err := engine.Answer(ctx, q)
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) rate(helpful bool) tea.Cmd {
	engine, resp := m.engine, m.resp
	return func() tea.Msg {
		return feedbackMsg{rec: engine.Feedback(context.Background(), resp, helpful)}
	}
}

func (m Model) reload() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		return reloadMsg{err: engine.Reload(context.Background())}
	}
}

// View renders the TUI layout and current response.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Smartual · student manual assistant")
	stats := mutedStyle.Render(fmt.Sprintf("%d sections · %d passages · %s · %d questions asked",
		m.stats.Sections, m.stats.Passages, m.stats.Encoder, m.stats.Queries))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + stats + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderResponse() string {
	r := m.resp
	if r == nil {
		return "No answer yet.\n\nKeys: Enter ask · Tab sample question · ctrl+y/ctrl+n rate · ctrl+r reload · up/down passages"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Section:"), r.Section)
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Section confidence:"), confidenceStyle(r.SectionConfidence).Render(fmt.Sprintf("%.3f", r.SectionConfidence)))
	fmt.Fprintf(&b, "%s\n%s\n", labelStyle.Render("Answer:"), r.Answer)
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Confidence:"), confidenceStyle(r.AnswerConfidence).Render(fmt.Sprintf("%.3f", r.AnswerConfidence)))
	if len(r.Retrieved) == 0 {
		return b.String()
	}
	p := r.Retrieved[m.cursor]
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("Passage %d/%d  section=%s  score=%.3f",
		m.cursor+1, len(r.Retrieved), p.Passage.Section, p.Score)))
	b.WriteString(highlightAnswer(p.Passage, r.Answer))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// confidenceStyle colours a score green, yellow or red.
func confidenceStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.6:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	case score >= 0.3:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	}
}

// highlightAnswer renders the passage sentences, highlighting those that
// were extracted into the answer.
func highlightAnswer(p domain.Passage, answer string) string {
	if len(p.Sentences) == 0 {
		return p.Text
	}
	out := make([]string, len(p.Sentences))
	for i, s := range p.Sentences {
		s = strings.TrimSpace(s)
		core := strings.TrimRight(s, ".")
		if core != "" && strings.Contains(answer, core) {
			out[i] = highlightStyle.Render(s)
		} else {
			out[i] = s
		}
	}
	return strings.Join(out, " ")
}
