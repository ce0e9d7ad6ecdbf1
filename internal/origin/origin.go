package origin

import (
	"context"
	"errors"
	"fmt"

	"github.com/Xhuk/continuitybridge/internal/canonical"
)

// ErrNoOriginAvailable is returned when no fulfillment origin can service an
// item. The pipeline treats this as failure, never as a fallback origin.
var ErrNoOriginAvailable = errors.New("no origin available")

// ScoredOrigin is one alternative the engine considered.
type ScoredOrigin struct {
	OriginID string  `json:"origin_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Decision is the outcome of origin selection for one canonical item.
// Produced once per item, consumed by the dispatcher, never mutated.
type Decision struct {
	OriginID     string         `json:"origin_id"`
	OriginName   string         `json:"origin_name"`
	Rationale    string         `json:"rationale"`
	Alternatives []ScoredOrigin `json:"alternatives,omitempty"`
}

// Engine selects the fulfillment origin for a canonical item.
//
// Implementations must be deterministic for identical input under identical
// configuration, must not perform I/O that can fail non-deterministically,
// and must return exactly one selected origin or ErrNoOriginAvailable.
type Engine interface {
	Decide(ctx context.Context, item *canonical.Item) (*Decision, error)
}

// StaticEngine always selects the same configured origin. It backs tests and
// emulation runs where the real rule engine is not wired.
type StaticEngine struct {
	OriginID   string
	OriginName string
}

func (e StaticEngine) Decide(_ context.Context, item *canonical.Item) (*Decision, error) {
	if e.OriginID == "" {
		return nil, ErrNoOriginAvailable
	}
	return &Decision{
		OriginID:   e.OriginID,
		OriginName: e.OriginName,
		Rationale:  fmt.Sprintf("static origin %s configured for all items (item %s)", e.OriginID, item.ID),
		Alternatives: []ScoredOrigin{
			{OriginID: e.OriginID, Name: e.OriginName, Score: 1.0},
		},
	}, nil
}
