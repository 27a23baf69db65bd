package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"smartual/internal/domain"
	"smartual/internal/service"
)

type fakeEngine struct {
	votes     []bool
	reloadErr error
}

func (f *fakeEngine) Answer(_ context.Context, q string) (*domain.Response, error) {
	if q == "fail" {
		return nil, errors.New("encoder down")
	}
	passage := domain.Passage{
		Section:   "Attendance Policy",
		Text:      "Students with more than ten absences fail the course. Tardiness counts as half an absence.",
		Sentences: []string{"Students with more than ten absences fail the course", "Tardiness counts as half an absence."},
	}
	return &domain.Response{
		Question:          q,
		Section:           "Attendance Policy",
		SectionConfidence: 0.48,
		Answer:            "Students with more than ten absences fail the course.",
		AnswerConfidence:  0.66,
		Retrieved:         []domain.Retrieved{{Passage: passage, Score: 0.66}, {Passage: domain.Passage{Section: "Grading System", Text: "Grades."}, Score: 0.1}},
	}, nil
}

func (f *fakeEngine) Feedback(_ context.Context, resp *domain.Response, helpful bool) domain.FeedbackRecord {
	f.votes = append(f.votes, helpful)
	return domain.FeedbackRecord{Question: resp.Question, Helpful: helpful}
}

func (f *fakeEngine) Reload(context.Context) error { return f.reloadErr }
func (f *fakeEngine) Stats() service.Stats         { return service.Stats{Sections: 14, Passages: 30, Encoder: "tfidf-abc"} }
func (f *fakeEngine) Samples() []string {
	return []string{"How many absences are allowed per semester?", "What scholarships are available for students?"}
}

// step applies msg and runs the returned command once, feeding its message back.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	out := cmd()
	switch out.(type) {
	case answerMsg, feedbackMsg, reloadMsg:
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func sized(engine Engine) Model {
	next, _ := New(engine, 0).Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestTabCyclesSamples(t *testing.T) {
	m := sized(&fakeEngine{})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "How many absences are allowed per semester?" {
		t.Errorf("first tab = %q", got)
	}
	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "How many absences are allowed per semester?" {
		t.Errorf("samples should wrap around, got %q", got)
	}
}

func TestAskAndRate(t *testing.T) {
	eng := &fakeEngine{}
	m := sized(eng)
	m.input.SetValue("How many absences are allowed?")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.resp == nil || m.busy {
		t.Fatalf("expected a response, status %q", m.status)
	}
	view := m.View()
	for _, want := range []string{"Attendance Policy", "0.660", "Passage 1/2", "14 sections"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if len(eng.votes) != 1 || eng.votes[0] {
		t.Errorf("expected a single not-helpful vote, got %v", eng.votes)
	}
	if !strings.Contains(m.status, "feedback") {
		t.Errorf("unexpected status %q", m.status)
	}

	m = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 || !strings.Contains(m.View(), "Passage 2/2") {
		t.Errorf("down should move to the next passage")
	}
}

func TestAskError(t *testing.T) {
	m := sized(&fakeEngine{})
	m.input.SetValue("fail")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.resp != nil || !strings.Contains(m.status, "encoder down") {
		t.Errorf("expected error status, got %q", m.status)
	}
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if m.rated {
		t.Error("rating without an answer should be ignored")
	}
}

func TestReload(t *testing.T) {
	eng := &fakeEngine{}
	m := step(t, sized(eng), tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.busy || !strings.Contains(m.status, "Reloaded 14 sections") {
		t.Errorf("unexpected status %q", m.status)
	}
	eng.reloadErr = errors.New("bad json")
	m = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if !strings.Contains(m.status, "previous manual") {
		t.Errorf("unexpected status %q", m.status)
	}
}

func TestHighlightAnswer(t *testing.T) {
	p := domain.Passage{
		Text:      "A passing grade is 70. Attendance is required.",
		Sentences: []string{"A passing grade is 70", "Attendance is required."},
	}
	got := highlightAnswer(p, "A passing grade is 70.")
	if !strings.Contains(got, "Attendance is required.") || !strings.Contains(got, "A passing grade is 70") {
		t.Errorf("sentences missing from %q", got)
	}
	if got := highlightAnswer(domain.Passage{Text: "raw"}, "x"); got != "raw" {
		t.Errorf("passage without sentences should render raw text, got %q", got)
	}
}
