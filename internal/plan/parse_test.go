package plan

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSanitizeFixesRequotedScheme(t *testing.T) {
	in := `{"url": ""https"://example.com/a"}`
	got := Sanitize(in)
	if !strings.Contains(got, `"https://example.com/a"`) {
		t.Errorf("Sanitize(%q) = %q", in, got)
	}
	if Sanitize(got) != got {
		t.Error("Sanitize is not idempotent")
	}
}

func TestSanitizeSmartQuotes(t *testing.T) {
	got := Sanitize("{“goal”: “x”}")
	if got != `{"goal": "x"}` {
		t.Errorf("got %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{`{"a": 1}`, `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	text := `Here is the plan: {"goal": "x {not a brace}", "steps": []} trailing`
	got, ok := ExtractJSONObject(text)
	if !ok {
		t.Fatal("no object found")
	}
	if got != `{"goal": "x {not a brace}", "steps": []}` {
		t.Errorf("got %q", got)
	}
}

func TestDecodePlan(t *testing.T) {
	text := `{"goal": "time in Paris", "steps": [
		{"id": "step_1", "description": "look up time", "tool": "get_time", "args": {"timezone": "Europe/Paris"}, "requires": []},
		{"id": "compose_answer", "description": "answer", "tool": null, "requires": ["step_1"]}
	]}`
	p, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Goal != "time in Paris" || len(p.Steps) != 2 {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if p.Steps[0].Tool != "get_time" {
		t.Errorf("tool = %q", p.Steps[0].Tool)
	}
}

func TestDecodeSalvagesWrappedJSON(t *testing.T) {
	text := "Sure! Here's your plan:\n```json\n{\"goal\": \"g\", \"steps\": []}\n```\nLet me know."
	p, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Goal != "g" {
		t.Errorf("goal = %q", p.Goal)
	}
}

func TestDecodeNumericIDs(t *testing.T) {
	text := `{"steps": [{"id": 0, "tool": "get_time"}, {"id": 1, "tool": "get_weather", "requires": [0]}]}`
	p, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Steps[0].ID != "0" || p.Steps[1].ID != "1" {
		t.Errorf("ids = %q, %q", p.Steps[0].ID, p.Steps[1].ID)
	}
	if !reflect.DeepEqual(p.Steps[1].Requires, []string{"0"}) {
		t.Errorf("requires = %v", p.Steps[1].Requires)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode("I cannot produce a plan for that.")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if perr.Raw == "" {
		t.Error("ParseError must carry the raw text")
	}
}

func TestNormalizeStepIDs(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{ID: "0", Tool: "get_time"},
			{ID: "1", Tool: "get_weather", Requires: []string{"0"}},
			{ID: ComposeStepID, Requires: []string{"0", "1"}},
		},
	}
	got := NormalizeStepIDs(p)
	if got.Steps[0].ID != "step_1" || got.Steps[1].ID != "step_2" {
		t.Fatalf("ids = %q, %q", got.Steps[0].ID, got.Steps[1].ID)
	}
	if !reflect.DeepEqual(got.Steps[1].Requires, []string{"step_1"}) {
		t.Errorf("requires not remapped: %v", got.Steps[1].Requires)
	}
	if !reflect.DeepEqual(got.Steps[2].Requires, []string{"step_1", "step_2"}) {
		t.Errorf("compose requires not remapped: %v", got.Steps[2].Requires)
	}
	// Non-numeric ids pass through untouched, and the original is not mutated.
	if p.Steps[0].ID != "0" {
		t.Error("input plan was mutated")
	}
	unchanged := NormalizeStepIDs(&Plan{Steps: []*Step{{ID: "step_1", Tool: "get_time"}}})
	if unchanged.Steps[0].ID != "step_1" {
		t.Errorf("non-numeric id remapped: %q", unchanged.Steps[0].ID)
	}
}

func TestNormalizeStepIDsSkipsExistingNames(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{ID: "step_1", Tool: "get_time"},
			{ID: "0", Tool: "get_weather", Requires: []string{"step_1"}},
			{ID: ComposeStepID, Requires: []string{"step_1", "0"}},
		},
	}
	got := NormalizeStepIDs(p)
	if got.Steps[0].ID != "step_1" {
		t.Fatalf("existing id changed: %q", got.Steps[0].ID)
	}
	if got.Steps[1].ID == "step_1" {
		t.Fatal("numeric id remapped onto an existing step id")
	}
	if got.Steps[1].ID != "step_2" {
		t.Errorf("numeric id = %q, want %q", got.Steps[1].ID, "step_2")
	}
	if !reflect.DeepEqual(got.Steps[2].Requires, []string{"step_1", "step_2"}) {
		t.Errorf("compose requires = %v", got.Steps[2].Requires)
	}
}
