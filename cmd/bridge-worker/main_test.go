package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Xhuk/continuitybridge/internal/canonical"
)

func TestBuildRequestCanonicalItemPassthrough(t *testing.T) {
	received := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	item := canonical.Item{
		ID:         "ORD-77",
		Kind:       canonical.KindShipment,
		Payload:    map[string]any{"carrier": "dhl"},
		Source:     "edi-x12",
		ReceivedAt: received,
	}
	body, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}

	req, err := buildRequest(itemMessage{Item: body, TraceID: "trace-9"})
	if err != nil {
		t.Fatalf("buildRequest() unexpected error: %v", err)
	}

	if req.RawInput != nil {
		t.Error("buildRequest() RawInput set, want canonical path only")
	}
	if req.CanonicalItem == nil {
		t.Fatal("buildRequest() CanonicalItem = nil, want decoded item")
	}
	if req.CanonicalItem.ID != "ORD-77" {
		t.Errorf("CanonicalItem.ID = %q, want %q", req.CanonicalItem.ID, "ORD-77")
	}
	if req.CanonicalItem.Kind != canonical.KindShipment {
		t.Errorf("CanonicalItem.Kind = %q, want %q", req.CanonicalItem.Kind, canonical.KindShipment)
	}
	// Provenance and receive time must not be rewritten by a re-transform.
	if req.CanonicalItem.Source != "edi-x12" {
		t.Errorf("CanonicalItem.Source = %q, want %q", req.CanonicalItem.Source, "edi-x12")
	}
	if !req.CanonicalItem.ReceivedAt.Equal(received) {
		t.Errorf("CanonicalItem.ReceivedAt = %v, want %v", req.CanonicalItem.ReceivedAt, received)
	}
	if req.TraceID != "trace-9" {
		t.Errorf("TraceID = %q, want %q", req.TraceID, "trace-9")
	}
}

func TestBuildRequestRawInput(t *testing.T) {
	raw := json.RawMessage(`{"item_id":"X1"}`)

	req, err := buildRequest(itemMessage{Raw: raw, RawFormat: "json"})
	if err != nil {
		t.Fatalf("buildRequest() unexpected error: %v", err)
	}

	if req.CanonicalItem != nil {
		t.Error("buildRequest() CanonicalItem set, want raw path only")
	}
	if string(req.RawInput) != string(raw) {
		t.Errorf("RawInput = %s, want %s", req.RawInput, raw)
	}
	if req.RawFormat != "json" {
		t.Errorf("RawFormat = %q, want %q", req.RawFormat, "json")
	}
}

func TestBuildRequestUndecodableItem(t *testing.T) {
	if _, err := buildRequest(itemMessage{Item: json.RawMessage(`{`)}); err == nil {
		t.Fatal("buildRequest() error = nil for malformed item, want error")
	}
}
