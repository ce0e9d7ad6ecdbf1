package canonical

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    *Item
		wantErr bool
	}{
		{
			name: "valid order item",
			item: &Item{
				ID:         "X1",
				Kind:       KindOrder,
				Payload:    map[string]any{"total": 120.50},
				Source:     "json",
				ReceivedAt: time.Now().UTC(),
			},
			wantErr: false,
		},
		{
			name:    "valid with only id",
			item:    &Item{ID: "X2"},
			wantErr: false,
		},
		{
			name:    "missing id",
			item:    &Item{Kind: KindShipment},
			wantErr: true,
		},
		{
			name:    "nil item",
			item:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidItem) {
				t.Errorf("Validate() error = %v, want wrapped ErrInvalidItem", err)
			}
		})
	}
}

func TestJSONTransformer(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		format     string
		wantErr    bool
		wantID     string
		wantKind   Kind
		wantSource string
	}{
		{
			name:       "complete document",
			raw:        `{"item_id":"X1","kind":"shipment","payload":{"carrier":"dhl"}}`,
			format:     "json",
			wantID:     "X1",
			wantKind:   KindShipment,
			wantSource: "json",
		},
		{
			name:       "kind defaults to order",
			raw:        `{"item_id":"X2"}`,
			format:     "json",
			wantID:     "X2",
			wantKind:   KindOrder,
			wantSource: "json",
		},
		{
			name:       "empty format defaults to json",
			raw:        `{"item_id":"X3"}`,
			format:     "",
			wantID:     "X3",
			wantKind:   KindOrder,
			wantSource: "json",
		},
		{
			name:    "missing item id",
			raw:     `{"kind":"order"}`,
			format:  "json",
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"item_id":`,
			format:  "json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := JSONTransformer{}.Transform(context.Background(), []byte(tt.raw), tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Transform() error = nil, want error")
				}
				if !errors.Is(err, ErrTransform) {
					t.Errorf("Transform() error = %v, want wrapped ErrTransform", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transform() unexpected error: %v", err)
			}
			if item.ID != tt.wantID {
				t.Errorf("Transform() ID = %q, want %q", item.ID, tt.wantID)
			}
			if item.Kind != tt.wantKind {
				t.Errorf("Transform() Kind = %q, want %q", item.Kind, tt.wantKind)
			}
			if item.Source != tt.wantSource {
				t.Errorf("Transform() Source = %q, want %q", item.Source, tt.wantSource)
			}
			if item.ReceivedAt.IsZero() {
				t.Error("Transform() ReceivedAt is zero, want set")
			}
		})
	}
}
