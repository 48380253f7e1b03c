package actionitems

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestPresentValid(t *testing.T) {
	raw := `[{"owner":"Alice","action":"Send report","due_date":null,"priority":"high"}]`

	result := NewPresenter().Present(raw)
	if !result.OK() {
		t.Fatalf("Expected OK result, got failure %s: %s", result.Failure, result.Reason)
	}
	if result.Raw != "" || result.Failure != "" {
		t.Errorf("Expected only the items variant to be populated, got %+v", result)
	}

	if len(result.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(result.Items))
	}
	item := result.Items[0]
	if item.Owner == nil || *item.Owner != "Alice" {
		t.Errorf("Expected owner Alice, got %v", item.Owner)
	}
	if item.Action != "Send report" {
		t.Errorf("Expected action 'Send report', got %q", item.Action)
	}
	if item.DueDate != nil {
		t.Errorf("Expected nil due date, got %v", *item.DueDate)
	}
	if item.Priority != PriorityHigh {
		t.Errorf("Expected priority high, got %s", item.Priority)
	}

	artifact, err := result.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}

	var parsed []map[string]any
	if err := json.Unmarshal(artifact, &parsed); err != nil {
		t.Fatalf("Artifact is not JSON: %v", err)
	}
	expected := []map[string]any{{"owner": "Alice", "action": "Send report", "due_date": nil, "priority": "high"}}
	if len(parsed) != 1 {
		t.Fatalf("Expected 1 artifact entry, got %d", len(parsed))
	}
	for k, v := range expected[0] {
		if parsed[0][k] != v {
			t.Errorf("Artifact key %s: expected %v, got %v", k, v, parsed[0][k])
		}
	}
}

func TestArtifactFormatting(t *testing.T) {
	result := Result{Items: []Item{{Owner: strPtr("Bob"), Action: "Deploy", DueDate: strPtr("2024-07-01"), Priority: PriorityLow}}}

	artifact, err := result.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}

	want := "[\n    {\n        \"owner\": \"Bob\",\n        \"action\": \"Deploy\",\n        \"due_date\": \"2024-07-01\",\n        \"priority\": \"low\"\n    }\n]"
	if string(artifact) != want {
		t.Errorf("Unexpected artifact:\n%s\nwant:\n%s", artifact, want)
	}
}

func TestArtifactEmptyList(t *testing.T) {
	result := NewPresenter().Present("[]")
	if !result.OK() {
		t.Fatalf("Expected empty array to be OK, got %s", result.Reason)
	}

	artifact, err := result.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}
	if string(artifact) != "[]" {
		t.Errorf("Expected [], got %s", artifact)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	raw := `[
		{"owner": null, "action": "Book room", "due_date": "next week", "priority": "medium"},
		{"owner": "Carol", "action": "Review PR", "due_date": null, "priority": "low"}
	]`

	presenter := NewPresenter()
	first := presenter.Present(raw)
	if !first.OK() {
		t.Fatalf("Expected OK, got %s", first.Reason)
	}

	artifact, err := first.Artifact()
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}

	second := presenter.Present(string(artifact))
	if !second.OK() {
		t.Fatalf("Expected artifact to re-parse, got %s", second.Reason)
	}
	if len(second.Items) != len(first.Items) {
		t.Fatalf("Expected %d items, got %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if !first.Items[i].Equal(second.Items[i]) {
			t.Errorf("Item %d differs after round trip: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}
}

func TestPresentFailures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    FailureKind
		inError string
	}{
		{"not json", "not json", FailureMalformedJSON, ""},
		{"code fence", "```json\n[]\n```", FailureMalformedJSON, ""},
		{"truncated", `[{"owner":"A"`, FailureMalformedJSON, ""},
		{"empty", "", FailureMalformedJSON, ""},
		{"object instead of array", `{"owner":"A","action":"x","due_date":null,"priority":"low"}`, FailureSchema, "array"},
		{"null", "null", FailureSchema, "array"},
		{"bad priority", `[{"owner":"A","action":"x","due_date":null,"priority":"urgent"}]`, FailureSchema, "priority"},
		{"missing key", `[{"owner":"A","action":"x","priority":"low"}]`, FailureSchema, "due_date"},
		{"extra key", `[{"owner":"A","action":"x","due_date":null,"priority":"low","notes":"n"}]`, FailureSchema, "notes"},
		{"empty action", `[{"owner":"A","action":"","due_date":null,"priority":"low"}]`, FailureSchema, "action"},
		{"wrong type", `[{"owner":7,"action":"x","due_date":null,"priority":"low"}]`, FailureSchema, "type"},
		{"non-object element", `["do the thing"]`, FailureSchema, "object"},
		{"null element", `[null]`, FailureSchema, "object"},
	}

	presenter := NewPresenter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := presenter.Present(tt.raw)
			if result.OK() {
				t.Fatalf("Expected failure, got %d items", len(result.Items))
			}
			if result.Failure != tt.kind {
				t.Errorf("Expected failure %s, got %s (%s)", tt.kind, result.Failure, result.Reason)
			}
			if result.Raw != tt.raw {
				t.Errorf("Expected raw text kept verbatim")
			}
			if result.Items != nil {
				t.Errorf("Expected no items on failure")
			}
			if tt.inError != "" && !strings.Contains(result.Reason, tt.inError) {
				t.Errorf("Expected reason to mention %q, got %q", tt.inError, result.Reason)
			}
			if result.Message() == "" {
				t.Errorf("Expected a user-facing message")
			}
			if _, err := result.Artifact(); !errors.Is(err, ErrNoArtifact) {
				t.Errorf("Expected ErrNoArtifact, got %v", err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	short := "hello"
	if Preview(short) != short {
		t.Errorf("Expected short transcript unchanged")
	}

	exact := strings.Repeat("a", 1000)
	if Preview(exact) != exact {
		t.Errorf("Expected 1000-char transcript unchanged")
	}

	long := strings.Repeat("é", 1001)
	got := Preview(long)
	if got != strings.Repeat("é", 1000)+"..." {
		t.Errorf("Expected truncation at 1000 characters with ellipsis, got %d runes", len([]rune(got)))
	}
}
