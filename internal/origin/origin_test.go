package origin

import (
	"context"
	"errors"
	"testing"

	"github.com/Xhuk/continuitybridge/internal/canonical"
)

func TestStaticEngineDecide(t *testing.T) {
	item := &canonical.Item{ID: "X1", Kind: canonical.KindOrder}

	tests := []struct {
		name    string
		engine  StaticEngine
		wantErr error
		wantID  string
	}{
		{
			name:   "configured origin is selected",
			engine: StaticEngine{OriginID: "wh-madrid", OriginName: "Madrid Warehouse"},
			wantID: "wh-madrid",
		},
		{
			name:    "no configured origin",
			engine:  StaticEngine{},
			wantErr: ErrNoOriginAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := tt.engine.Decide(context.Background(), item)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decide() error = %v, want %v", err, tt.wantErr)
				}
				if decision != nil {
					t.Errorf("Decide() decision = %+v, want nil on error", decision)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decide() unexpected error: %v", err)
			}
			if decision.OriginID != tt.wantID {
				t.Errorf("Decide() OriginID = %q, want %q", decision.OriginID, tt.wantID)
			}
			if decision.Rationale == "" {
				t.Error("Decide() Rationale is empty, want populated")
			}
			if len(decision.Alternatives) == 0 {
				t.Error("Decide() Alternatives is empty, want at least the selected origin")
			}
		})
	}
}

func TestStaticEngineDeterministic(t *testing.T) {
	engine := StaticEngine{OriginID: "wh-1", OriginName: "Primary"}
	item := &canonical.Item{ID: "X9"}

	first, err := engine.Decide(context.Background(), item)
	if err != nil {
		t.Fatalf("Decide() unexpected error: %v", err)
	}
	second, err := engine.Decide(context.Background(), item)
	if err != nil {
		t.Fatalf("Decide() unexpected error: %v", err)
	}

	if first.OriginID != second.OriginID || first.Rationale != second.Rationale {
		t.Errorf("Decide() not deterministic: first %+v, second %+v", first, second)
	}
}
