package clock

import (
	"context"
	"testing"
	"time"
)

func TestExecuteUTC(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tool := NewTool().WithNow(func() time.Time { return fixed })

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := out.(map[string]any)
	if got["time"] != "2025-06-01T12:00:00Z" {
		t.Errorf("time = %v", got["time"])
	}
	if got["timezone"] != "UTC" {
		t.Errorf("timezone = %v", got["timezone"])
	}
	if got["unix"] != fixed.Unix() {
		t.Errorf("unix = %v", got["unix"])
	}
}

func TestExecuteNamedZone(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tool := NewTool().WithNow(func() time.Time { return fixed })

	out, err := tool.Execute(context.Background(), map[string]any{"timezone": "Europe/Paris"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := out.(map[string]any)
	if got["timezone"] != "Europe/Paris" {
		t.Errorf("timezone = %v", got["timezone"])
	}
	if got["time"] != "2025-06-01T14:00:00+02:00" {
		t.Errorf("time = %v", got["time"])
	}
}

func TestExecuteUnknownZone(t *testing.T) {
	if _, err := NewTool().Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"}); err == nil {
		t.Fatal("want error for unknown timezone")
	}
}

func TestValidate(t *testing.T) {
	tool := NewTool()
	if err := tool.Validate(map[string]any{"timezone": 5}); err == nil {
		t.Error("want error for non-string timezone")
	}
	if err := tool.Validate(map[string]any{}); err != nil {
		t.Errorf("timezone is optional: %v", err)
	}
}
