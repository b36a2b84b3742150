package decode

import (
	"errors"
	"reflect"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```JSON {\"a\":1}```", `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripFences(tt.input); got != tt.expected {
			t.Errorf("StripFences(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestValueContract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{"fenced object", "```json\n{\"a\": 1}\n```", map[string]any{"a": float64(1)}},
		{"array", "[1, 2]", []any{float64(1), float64(2)}},
		{"not json", "not json", map[string]any{}},
		{"empty", "", map[string]any{}},
		{"null", "null", map[string]any{}},
		{"prose around object", "Sure! Here you go: {\"ok\": true} hope this helps", map[string]any{"ok": true}},
	}
	for _, tt := range tests {
		if got := Value(tt.input); !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("%s: Value(%q) = %#v, want %#v", tt.name, tt.input, got, tt.expected)
		}
	}
}

type event struct {
	ID       string   `json:"event_id"`
	Articles []string `json:"articles"`
}

func TestIntoSlice(t *testing.T) {
	raw := "```json\n[{\"event_id\":\"e1\",\"articles\":[\"a\",\"b\"]}]\n```"
	res := Into[[]event](raw)
	if !res.OK {
		t.Fatalf("Expected OK, got reason %q", res.Reason)
	}
	if len(res.Value) != 1 || res.Value[0].ID != "e1" || len(res.Value[0].Articles) != 2 {
		t.Errorf("unexpected value %+v", res.Value)
	}
}

func TestIntoWrongShapeIsMalformed(t *testing.T) {
	res := Into[[]event](`{"event_id":"e1"}`)
	if res.OK || !res.Malformed() {
		t.Fatal("Expected malformed result for object when array wanted")
	}
	if res.Raw != `{"event_id":"e1"}` {
		t.Errorf("Expected raw preserved, got %q", res.Raw)
	}
	if res.Reason == "" {
		t.Error("Expected a reason")
	}
}

func TestIntoSkipsBracesInStrings(t *testing.T) {
	raw := `Result: {"event_id":"e}1","articles":["[x]"]} trailing`
	res := Into[event](raw)
	if !res.OK || res.Value.ID != "e}1" {
		t.Errorf("Expected e}1, got %+v (%s)", res.Value, res.Reason)
	}
}

func TestIntoTriesLaterCandidates(t *testing.T) {
	raw := `Note [see below]: [{"event_id":"e2","articles":[]}]`
	res := Into[[]event](raw)
	if !res.OK {
		t.Fatalf("Expected OK, got %q", res.Reason)
	}
	if res.Value[0].ID != "e2" {
		t.Errorf("Expected e2, got %+v", res.Value)
	}
}

type checked struct {
	Name string `json:"name"`
}

func (c checked) Validate() error {
	if c.Name == "" {
		return errors.New("name required")
	}
	return nil
}

func TestIntoRunsValidation(t *testing.T) {
	if res := Into[checked](`{"name":""}`); res.OK {
		t.Error("Expected validation failure")
	}
	if res := Into[checked](`{"name":"x"}`); !res.OK || res.Value.Name != "x" {
		t.Errorf("Expected valid value, got %+v", res)
	}
}

func TestBalancedRejectsMismatch(t *testing.T) {
	if _, ok := balanced(`{"a":[1}`); ok {
		t.Error("Expected mismatched brackets to be rejected")
	}
	if _, ok := balanced(`{"a":1`); ok {
		t.Error("Expected unterminated object to be rejected")
	}
}

func TestStrictRejectsWrappedAndEmbedded(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"bare array", `[{"id":"a"}]`, true},
		{"fenced array", "```json\n[{\"id\":\"a\"}]\n```", true},
		{"object wrapping array", `{"events":[{"id":"a"}]}`, false},
		{"prose before array", `Here: [{"id":"a"}]`, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		res := Strict[[]map[string]string](tt.input)
		if res.OK != tt.ok {
			t.Errorf("%s: OK=%v, want %v (reason %q)", tt.name, res.OK, tt.ok, res.Reason)
		}
	}
	if res := Into[[]map[string]string](`Here: [{"id":"a"}]`); !res.OK {
		t.Error("Into should still find an embedded array")
	}
}
