package tui

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"notesqa/internal/domain"
	"notesqa/internal/qa/lexical"
)

const (
	// maxListedConcepts caps the /concepts listing.
	maxListedConcepts = 20
	msgEnterConcept   = "Please enter a concept."
)

// SessionPort is the TUI-facing subset of the QA session.
type SessionPort interface {
	AskQuestion(ctx context.Context, question string) domain.Response
	ConceptReferences(concept string) domain.Response
	Concepts() ([]string, domain.ConceptPages)
}

// entry is one exchange shown in the result pane.
type entry struct {
	input    string
	response domain.Response
	listing  string
	// concept names in first-seen order, for question-derived references
	order []string
}

type responseMsg struct{ entry entry }

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	history  []entry
	summary  string
	overview string
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a new TUI model instance. overview is shown until the first
// question is answered.
func New(session SessionPort, summary, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /concept NAME or /concepts"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{session: session, input: ti, viewport: vp, summary: summary, overview: overview, status: "Ready. Ask about your notes."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case responseMsg:
		m.busy = false
		m.history = append(m.history, msg.entry)
		m.cursor = len(m.history) - 1
		m.status = statusFor(msg.entry)
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
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
			m.input.SetValue("")
			m.busy = true
			m.status = "Searching..."
			return m, m.run(q)
		case "pgdown":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "pgup":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes a command line off the update loop.
func (m Model) run(line string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		switch {
		case line == "/concepts":
			keys, pages := session.Concepts()
			return responseMsg{entry{input: line, listing: ListConcepts(keys, pages, maxListedConcepts)}}
		case line == "/concept" || strings.HasPrefix(line, "/concept "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/concept"))
			if name == "" {
				return responseMsg{entry{input: line, response: domain.ErrorResponse(msgEnterConcept)}}
			}
			return responseMsg{entry{input: line, response: session.ConceptReferences(name)}}
		default:
			e := entry{input: line, response: session.AskQuestion(context.Background(), line)}
			if len(e.response.Concepts) > 0 {
				e.order, _ = session.Concepts()
			}
			return responseMsg{e}
		}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Lecture Notes Q&A")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func statusFor(e entry) string {
	if e.listing != "" || e.response.Kind == "" {
		return "Concept list"
	}
	return fmt.Sprintf("%s for %q", e.response.Kind, e.input)
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		if m.overview != "" {
			return labelStyle.Render("Key sentences") + "\n\n" + m.overview
		}
		return "No questions yet."
	}
	e := m.history[m.cursor]
	title := fmt.Sprintf("%d/%d  %s", m.cursor+1, len(m.history), e.input)
	if e.listing != "" {
		return title + "\n\n" + e.listing
	}
	return title + "\n\n" + Render(e.response, e.input, e.order)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	labelStyle     = lipgloss.NewStyle().Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Render formats a response for display. question is used to highlight the
// relevant part of the context when the answer itself cannot be located;
// order lists concept names in the order they should appear.
func Render(r domain.Response, question string, order []string) string {
	var b strings.Builder
	switch r.Kind {
	case domain.KindError:
		b.WriteString(errorStyle.Render(r.Message))
	case domain.KindNotFound:
		b.WriteString(warnStyle.Render(r.Message))
	case domain.KindConceptReference:
		if r.Message != "" {
			b.WriteString(warnStyle.Render(r.Message) + "\n\n")
		}
		if r.Concept != "" {
			fmt.Fprintf(&b, "%s appears on pages %s", labelStyle.Render(r.Concept), joinPages(r.Pages))
		}
		for _, c := range orderedConcepts(r.Concepts, order) {
			fmt.Fprintf(&b, "- %s: pages %s\n", labelStyle.Render(c), joinPages(r.Concepts[c]))
		}
	case domain.KindAnswer:
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Answer:"), r.Answer)
		fmt.Fprintf(&b, "%s %.2f  %s %d\n\n", labelStyle.Render("Confidence:"), r.Confidence, labelStyle.Render("Page:"), r.Page)
		b.WriteString(highlightAnswer(r.Context, r.Answer, question))
	}
	if r.Reason == domain.ReasonQAUnavailable {
		b.WriteString("\n" + errorStyle.Render("(the answer model was unavailable)"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// orderedConcepts returns the keys of concepts following order, then any
// keys order does not mention, sorted.
func orderedConcepts(concepts domain.ConceptPages, order []string) []string {
	names := make([]string, 0, len(concepts))
	seen := make(map[string]bool, len(concepts))
	for _, c := range order {
		if _, ok := concepts[c]; ok && !seen[c] {
			names = append(names, c)
			seen[c] = true
		}
	}
	var rest []string
	for c := range concepts {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// ListConcepts lists at most limit concepts with their pages.
func ListConcepts(keys []string, pages domain.ConceptPages, limit int) string {
	if len(keys) == 0 {
		return "No concepts found yet."
	}
	var b strings.Builder
	for i, k := range keys {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more concepts", len(keys)-limit)
			break
		}
		fmt.Fprintf(&b, "- %s: pages %s\n", k, joinPages(pages[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinPages(pages []int) string {
	s := make([]string, len(pages))
	for i, p := range pages {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ", ")
}

// highlightAnswer marks the answer inside text, or the sentence sharing
// the most words with the question when the answer is not found verbatim.
func highlightAnswer(text, answer, question string) string {
	if answer != "" {
		i := strings.Index(text, answer)
		if lower := strings.ToLower(text); i < 0 && len(lower) == len(text) {
			i = strings.Index(lower, strings.ToLower(answer))
		}
		if i >= 0 && i+len(answer) <= len(text) {
			return text[:i] + highlightStyle.Render(text[i:i+len(answer)]) + text[i+len(answer):]
		}
	}
	return highlightBestSentence(text, question)
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := lexical.Sentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
