package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies the business document a canonical item carries.
type Kind string

const (
	KindOrder    Kind = "order"
	KindShipment Kind = "shipment"
)

// Item is the format-neutral internal representation of one business
// document. Immutable once produced; owned by the pipeline invocation that
// created it.
type Item struct {
	ID         string         `json:"item_id"`
	Kind       Kind           `json:"kind"`
	Payload    map[string]any `json:"payload"`
	Source     string         `json:"source"` // provenance: source format, e.g. "edi-x12", "json"
	ReceivedAt time.Time      `json:"received_at"`
}

// Validate checks the fields required for a canonical item to enter the
// pipeline.
func (i *Item) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: canonical item is nil", ErrInvalidItem)
	}
	if i.ID == "" {
		return fmt.Errorf("%w: item_id is required", ErrInvalidItem)
	}
	return nil
}

// Transformer converts externally-supplied raw input in a named source
// format into a canonical item. The concrete normalization logic is an
// external collaborator; the pipeline depends on this contract only.
type Transformer interface {
	Transform(ctx context.Context, raw []byte, format string) (*Item, error)
}

// JSONTransformer is the reference transformer for raw JSON documents. It
// expects the document to carry at least an item id.
type JSONTransformer struct{}

func (JSONTransformer) Transform(_ context.Context, raw []byte, format string) (*Item, error) {
	var doc struct {
		ItemID  string         `json:"item_id"`
		Kind    Kind           `json:"kind"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if doc.ItemID == "" {
		return nil, fmt.Errorf("%w: item_id missing in source document", ErrTransform)
	}

	kind := doc.Kind
	if kind == "" {
		kind = KindOrder
	}
	if format == "" {
		format = "json"
	}

	return &Item{
		ID:         doc.ItemID,
		Kind:       kind,
		Payload:    doc.Payload,
		Source:     format,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
