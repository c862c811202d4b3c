package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"notesqa/internal/domain"
)

type fakeSession struct {
	asked  []string
	looked []string
}

func (f *fakeSession) AskQuestion(_ context.Context, q string) domain.Response {
	f.asked = append(f.asked, q)
	return domain.Response{Kind: domain.KindAnswer, Answer: "sliding window", Confidence: 0.75, Page: 3,
		Context: "TCP uses a sliding window for flow control."}
}

func (f *fakeSession) ConceptReferences(c string) domain.Response {
	f.looked = append(f.looked, c)
	return domain.Response{Kind: domain.KindConceptReference, Concept: c, Pages: []int{2, 4}}
}

func (f *fakeSession) Concepts() ([]string, domain.ConceptPages) {
	keys := make([]string, 25)
	pages := domain.ConceptPages{}
	for i := range keys {
		keys[i] = fmt.Sprintf("Concept%02d", i)
		pages[keys[i]] = []int{i + 1}
	}
	return keys, pages
}

func submit(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("enter produced no command")
	}
	next, _ = next.(Model).Update(cmd())
	return next.(Model)
}

func TestQuestionFlow(t *testing.T) {
	fs := &fakeSession{}
	next, _ := New(fs, "Processed 4 chunks", "").Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m := submit(t, next.(Model), "what does TCP use?")

	if len(fs.asked) != 1 || fs.asked[0] != "what does TCP use?" {
		t.Fatalf("unexpected questions %v", fs.asked)
	}
	view := m.View()
	for _, want := range []string{"Lecture Notes Q&A", "Processed 4 chunks", "sliding window", "0.75"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared")
	}
}

func TestConceptCommands(t *testing.T) {
	fs := &fakeSession{}
	next, _ := New(fs, "", "").Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m := submit(t, next.(Model), "/concept Network Layer")
	if len(fs.looked) != 1 || fs.looked[0] != "Network Layer" {
		t.Fatalf("unexpected lookups %v", fs.looked)
	}
	if r := m.history[0].response; r.Kind != domain.KindConceptReference {
		t.Fatalf("unexpected response %+v", r)
	}

	m = submit(t, m, "/concepts")
	if len(fs.asked) != 0 {
		t.Fatalf("commands must not be sent as questions: %v", fs.asked)
	}
	listing := m.history[1].listing
	if !strings.Contains(listing, "Concept19") || strings.Contains(listing, "Concept20") {
		t.Errorf("listing should stop after 20 concepts:\n%s", listing)
	}
	if !strings.HasSuffix(listing, "... and 5 more concepts") {
		t.Errorf("listing missing overflow line:\n%s", listing)
	}
}

func TestRenderKinds(t *testing.T) {
	cases := []struct {
		resp domain.Response
		want []string
	}{
		{domain.ErrorResponse("Please upload and process lecture notes first."), []string{"Please upload"}},
		{domain.Response{Kind: domain.KindNotFound, Message: "nothing", Reason: domain.ReasonQAUnavailable}, []string{"nothing", "unavailable"}},
		{domain.Response{Kind: domain.KindConceptReference, Message: "mentioned",
			Concepts: domain.ConceptPages{"Routing": {1, 2}}}, []string{"mentioned", "Routing", "pages 1, 2"}},
		{domain.Response{Kind: domain.KindConceptReference, Concept: "Routing", Pages: []int{5}}, []string{"Routing", "pages 5"}},
	}
	for _, tc := range cases {
		out := Render(tc.resp, "q", nil)
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Errorf("Render(%s) missing %q: %q", tc.resp.Kind, w, out)
			}
		}
	}
}

func TestListConceptsEmpty(t *testing.T) {
	if got := ListConcepts(nil, nil, 20); got != "No concepts found yet." {
		t.Fatalf("got %q", got)
	}
}

func TestOverviewShownBeforeFirstQuestion(t *testing.T) {
	next, _ := New(&fakeSession{}, "", "p.1  Routers forward packets.").Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	if view := next.(Model).View(); !strings.Contains(view, "Routers forward packets.") {
		t.Fatalf("overview missing:\n%s", view)
	}
}

type orderedSession struct{ fakeSession }

func (orderedSession) AskQuestion(context.Context, string) domain.Response {
	return domain.Response{Kind: domain.KindConceptReference, Message: "mentioned",
		Concepts: domain.ConceptPages{"Routing": {2}, "Transport Layer": {1}}}
}

func (orderedSession) Concepts() ([]string, domain.ConceptPages) {
	return []string{"Transport Layer", "Network", "Routing"}, nil
}

func TestQuestionConceptsFollowFirstSeenOrder(t *testing.T) {
	next, _ := New(&orderedSession{}, "", "").Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m := submit(t, next.(Model), "transport layer routing?")
	out := Render(m.history[0].response, m.history[0].input, m.history[0].order)
	tl, r := strings.Index(out, "Transport Layer"), strings.Index(out, "Routing")
	if tl < 0 || r < 0 || tl > r {
		t.Fatalf("concepts not in first-seen order:\n%s", out)
	}
}

func TestBareConceptCommandAsksForName(t *testing.T) {
	fs := &fakeSession{}
	next, _ := New(fs, "", "").Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m := submit(t, next.(Model), "/concept")
	if len(fs.asked) != 0 || len(fs.looked) != 0 {
		t.Fatalf("bare /concept reached the session: asked=%v looked=%v", fs.asked, fs.looked)
	}
	if r := m.history[0].response; r.Kind != domain.KindError || r.Message != "Please enter a concept." {
		t.Fatalf("unexpected response %+v", r)
	}
}

func TestHighlightKeepsTrailingText(t *testing.T) {
	out := highlightBestSentence("Routers forward packets. Trailing note without a period", "routers")
	if !strings.Contains(out, "Trailing note without a period") {
		t.Fatalf("trailing text dropped: %q", out)
	}
	out = highlightAnswer("First part. Second part with no stop", "missing", "second")
	if !strings.Contains(out, "Second part with no stop") {
		t.Fatalf("trailing text dropped: %q", out)
	}
}
