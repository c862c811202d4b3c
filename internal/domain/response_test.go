package domain

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"
)

func keysOf(t *testing.T, r Response) []string {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestResponseJSONKeysPerKind(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		want []string
	}{
		{"error", ErrorResponse("upload first"), []string{"message", "type"}},
		{"not found", NotFound("nothing"), []string{"message", "type"}},
		{"not found with reason", Response{Kind: KindNotFound, Message: "x", Reason: ReasonQAUnavailable}, []string{"message", "reason", "type"}},
		{"exact concept", Response{Kind: KindConceptReference, Concept: "Routing", Pages: []int{2}}, []string{"concept", "pages", "type"}},
		{"question concepts", Response{Kind: KindConceptReference, Message: "m", Concepts: ConceptPages{"Routing": {1}}}, []string{"concepts", "message", "type"}},
		// zero values must not drop answer keys
		{"zero answer", Response{Kind: KindAnswer, Page: 1, Context: "Some content"}, []string{"answer", "confidence", "context", "page", "type"}},
		{"stray fields", Response{Kind: KindAnswer, Answer: "a", Confidence: 0.5, Page: 2, Context: "c", Message: "ignored", Concept: "X"},
			[]string{"answer", "confidence", "context", "page", "type"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keysOf(t, tc.resp); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("keys = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResponseJSONValues(t *testing.T) {
	data, err := json.Marshal(Response{Kind: KindAnswer, Page: 1, Context: "Some content"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"answer","answer":"","confidence":0,"page":1,"context":"Some content"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
	data, _ = json.Marshal(Response{Kind: KindConceptReference, Concept: "Routing"})
	if want := `{"type":"concept_reference","concept":"Routing","pages":[]}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
