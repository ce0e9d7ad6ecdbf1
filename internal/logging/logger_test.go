package logging

import (
	"context"
	"errors"
	"testing"
)

func TestFluentFields(t *testing.T) {
	logger := New("test-service")

	entry := logger.Plain().
		WithTraceID("trace-1").
		WithItem("X1").
		WithOrigin("wh-1").
		WithReceiver("SAP").
		WithTopic("items").
		WithNode("n-broker").
		WithField("attempt", 2)

	if entry.TraceID != "trace-1" {
		t.Errorf("TraceID = %q, want %q", entry.TraceID, "trace-1")
	}
	if entry.ItemID != "X1" {
		t.Errorf("ItemID = %q, want %q", entry.ItemID, "X1")
	}
	if entry.Origin != "wh-1" {
		t.Errorf("Origin = %q, want %q", entry.Origin, "wh-1")
	}
	if entry.Receiver != "SAP" {
		t.Errorf("Receiver = %q, want %q", entry.Receiver, "SAP")
	}
	if entry.Topic != "items" {
		t.Errorf("Topic = %q, want %q", entry.Topic, "items")
	}
	if entry.NodeID != "n-broker" {
		t.Errorf("NodeID = %q, want %q", entry.NodeID, "n-broker")
	}
	if got := entry.Fields["attempt"]; got != 2 {
		t.Errorf("Fields[attempt] = %v, want 2", got)
	}
}

func TestWithError(t *testing.T) {
	entry := New("test").Plain().WithError(errors.New("boom"))
	if got := entry.Fields["error"]; got != "boom" {
		t.Errorf("Fields[error] = %v, want %q", got, "boom")
	}

	entry = New("test").Plain().WithError(nil)
	if _, ok := entry.Fields["error"]; ok {
		t.Error("Fields[error] set for nil error, want absent")
	}
}

func TestWithFieldsMerges(t *testing.T) {
	entry := New("test").
		WithFields(map[string]any{"a": 1}).
		WithFields(map[string]any{"b": 2}).
		WithField("c", 3)

	for key, want := range map[string]any{"a": 1, "b": 2, "c": 3} {
		if got := entry.Fields[key]; got != want {
			t.Errorf("Fields[%s] = %v, want %v", key, got, want)
		}
	}
}

func TestWithContextNoSpan(t *testing.T) {
	entry := New("test").WithContext(context.Background())
	if entry.TraceID != "" {
		t.Errorf("TraceID = %q on bare context, want empty", entry.TraceID)
	}
	if entry.Service != "test" {
		t.Errorf("Service = %q, want %q", entry.Service, "test")
	}
}
