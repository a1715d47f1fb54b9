package progress

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/prompt-patrol/internal/model"
)

func newTestModel() *dashboardModel {
	return newDashboardModel([]string{"mock", "two"}, 2, DarkTheme())
}

func TestUpdate_CountsPairs(t *testing.T) {
	m := newTestModel()
	m.Update(updateMsg{PredicateID: "mock", Response: "This is a mock response 1", Passed: true, Counts: model.Result{"mock": 1, "two": 0}})
	m.Update(updateMsg{PredicateID: "two", Response: "This is a mock response 1", Passed: false, Counts: model.Result{"mock": 1, "two": 0}})

	if m.pairs != 2 {
		t.Errorf("pairs: got %d, want 2", m.pairs)
	}
	if m.passed["mock"] != 1 || m.passed["two"] != 0 {
		t.Errorf("passed: got %v", m.passed)
	}
	if m.scored["mock"] != 1 || m.scored["two"] != 1 {
		t.Errorf("scored: got %v", m.scored)
	}
}

func TestUpdate_OutOfOrderSnapshotsNeverDecrease(t *testing.T) {
	m := newTestModel()
	m.Update(updateMsg{PredicateID: "mock", Passed: true, Counts: model.Result{"mock": 2}})
	m.Update(updateMsg{PredicateID: "mock", Passed: true, Counts: model.Result{"mock": 1}})

	if m.passed["mock"] != 2 {
		t.Errorf("passed[mock]: got %d, want 2", m.passed["mock"])
	}
}

func TestUpdate_FinishedQuits(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(finishedMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !m.finished {
		t.Error("expected finished state")
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := newTestModel()
	m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if m.width != 40 {
		t.Errorf("width: got %d, want 40", m.width)
	}
}

func TestView_ShowsPredicates(t *testing.T) {
	m := newTestModel()
	m.Update(updateMsg{PredicateID: "mock", Response: "line one\nline two", Passed: true, Counts: model.Result{"mock": 1}})

	view := m.View()
	for _, want := range []string{"prompt-patrol", "mock", "two", "1/4 scored", "last: line one line two"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestView_Finished(t *testing.T) {
	m := newTestModel()
	m.Update(finishedMsg{})
	if !strings.Contains(m.View(), "done") {
		t.Errorf("expected done marker:\n%s", m.View())
	}

	m = newTestModel()
	m.Update(finishedMsg{err: errors.New("boom")})
	if !strings.Contains(m.View(), "run failed: boom") {
		t.Errorf("expected failure message:\n%s", m.View())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestThemeByName(t *testing.T) {
	if ThemeByName("light") != LightTheme() {
		t.Error("light should return LightTheme")
	}
	if ThemeByName("") != DarkTheme() || ThemeByName("unknown") != DarkTheme() {
		t.Error("default should be DarkTheme")
	}
}
