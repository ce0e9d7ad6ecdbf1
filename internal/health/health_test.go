package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "healthy with database",
			db:         stubPinger{},
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "database ping fails",
			db:         stubPinger{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     false,
		},
		{
			name:       "no database wired",
			db:         nil,
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()

			HTTPHandler(tt.db)(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("handler status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var st Status
			if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if st.OK != tt.wantOK {
				t.Errorf("Status.OK = %v, want %v", st.OK, tt.wantOK)
			}
		})
	}
}
