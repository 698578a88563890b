package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/valinor-ai/rolegate/internal/platform/database"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves audit query endpoints.
type Handler struct {
	db    database.Querier
	store *Store
}

// NewHandler creates an audit query handler. A nil db serves an empty trail.
func NewHandler(db database.Querier) *Handler {
	return &Handler{db: db, store: NewStore()}
}

// HandleListEvents returns audit events, newest first.
// GET /api/v1/audit/events?limit=50&action=&resource_type=&resource_id=&actor_id=&source=&after=&before=
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ListEventsParams{Limit: defaultListLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeAuditError(w, "limit", "limit must be between 1 and 200")
			return
		}
		params.Limit = n
	}

	for name, dst := range map[string]**string{
		"action":        &params.Action,
		"resource_type": &params.ResourceType,
		"resource_id":   &params.ResourceID,
		"actor_id":      &params.ActorID,
		"source":        &params.Source,
	} {
		if v := q.Get(name); v != "" {
			*dst = &v
		}
	}

	for name, dst := range map[string]**time.Time{
		"after":  &params.After,
		"before": &params.Before,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAuditError(w, name, name+" must be an RFC 3339 timestamp")
			return
		}
		*dst = &t
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []StoredEvent{}, "count": 0})
		return
	}

	events, err := h.store.ListEvents(r.Context(), h.db, params)
	if err != nil {
		slog.Error("listing audit events", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditError(w http.ResponseWriter, field, msg string) {
	writeAuditJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
		"kind":  "validation",
		"field": field,
	})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
