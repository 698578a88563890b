package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleListEvents(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"no filters", "", http.StatusOK, `"count":0`},
		{"limit", "?limit=10", http.StatusOK, `"events":[]`},
		{"composed filters", "?action=role.created&resource_type=role&source=api&actor_id=hr-1&limit=25", http.StatusOK, `"count":0`},
		{"before", "?before=2026-02-26T00:00:00Z", http.StatusOK, `"count":0`},
		{"limit too large", "?limit=500", http.StatusBadRequest, `"field":"limit"`},
		{"limit not a number", "?limit=ten", http.StatusBadRequest, `"field":"limit"`},
		{"bad after", "?after=yesterday", http.StatusBadRequest, `"field":"after"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil)
			w := httptest.NewRecorder()
			h.HandleListEvents(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit/events"+tt.query, nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
