package domain

import "encoding/json"

// Kind tags the variant carried by a Response.
type Kind string

const (
	KindError            Kind = "error"
	KindNotFound         Kind = "not_found"
	KindConceptReference Kind = "concept_reference"
	KindAnswer           Kind = "answer"
)

// ReasonQAUnavailable marks a response produced after the QA model failed
// rather than after it returned a low-confidence answer.
const ReasonQAUnavailable = "qa_unavailable"

// Response is the structured result handed to the presentation layer.
// Only the fields belonging to Kind are populated.
type Response struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// concept_reference, exact lookup
	Concept string `json:"concept,omitempty"`
	Pages   []int  `json:"pages,omitempty"`
	// concept_reference, derived from a question
	Concepts ConceptPages `json:"concepts,omitempty"`

	// answer
	Answer     string  `json:"answer,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Page       int     `json:"page,omitempty"`
	Context    string  `json:"context,omitempty"`
}

// MarshalJSON emits the keys of r's kind only. Keys that define a kind are
// always present, even when zero.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindError:
		return json.Marshal(struct {
			Kind    Kind   `json:"type"`
			Message string `json:"message"`
		}{r.Kind, r.Message})
	case KindNotFound:
		return json.Marshal(struct {
			Kind    Kind   `json:"type"`
			Message string `json:"message"`
			Reason  string `json:"reason,omitempty"`
		}{r.Kind, r.Message, r.Reason})
	case KindConceptReference:
		if r.Concepts == nil {
			pages := r.Pages
			if pages == nil {
				pages = []int{}
			}
			return json.Marshal(struct {
				Kind    Kind   `json:"type"`
				Message string `json:"message,omitempty"`
				Concept string `json:"concept"`
				Pages   []int  `json:"pages"`
				Reason  string `json:"reason,omitempty"`
			}{r.Kind, r.Message, r.Concept, pages, r.Reason})
		}
		return json.Marshal(struct {
			Kind     Kind         `json:"type"`
			Message  string       `json:"message,omitempty"`
			Concepts ConceptPages `json:"concepts"`
			Reason   string       `json:"reason,omitempty"`
		}{r.Kind, r.Message, r.Concepts, r.Reason})
	case KindAnswer:
		return json.Marshal(struct {
			Kind       Kind    `json:"type"`
			Answer     string  `json:"answer"`
			Confidence float64 `json:"confidence"`
			Page       int     `json:"page"`
			Context    string  `json:"context"`
		}{r.Kind, r.Answer, r.Confidence, r.Page, r.Context})
	}
	type plain Response
	return json.Marshal(plain(r))
}

// ErrorResponse builds an error response.
func ErrorResponse(msg string) Response {
	return Response{Kind: KindError, Message: msg}
}

// NotFound builds a not_found response.
func NotFound(msg string) Response {
	return Response{Kind: KindNotFound, Message: msg}
}
