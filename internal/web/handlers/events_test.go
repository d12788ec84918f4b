package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/staff-portal/internal/database"
)

func TestEventsHandler_Recent(t *testing.T) {
	p := newPortal()
	for _, reason := range []string{"wrong-password", "not-recognized", "ok"} {
		p.events.Record(context.Background(), database.LoginEvent{Reason: reason})
	}
	handler := NewEventsHandler(p.events, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLen    int
		wantFirst  string
	}{
		{"default limit", "", http.StatusOK, 3, "ok"},
		{"explicit limit", "?limit=2", http.StatusOK, 2, "ok"},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0, ""},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Recent(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/login-events"+tt.query, nil))
			assertStatusCode(t, recorder, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var events []database.LoginEvent
			parseJSONResponse(t, recorder, &events)
			if len(events) != tt.wantLen {
				t.Fatalf("expected %d events, got %d", tt.wantLen, len(events))
			}
			if events[0].Reason != tt.wantFirst {
				t.Errorf("newest event reason = %q, want %q", events[0].Reason, tt.wantFirst)
			}
		})
	}
}
