package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/valinor-ai/rolegate/internal/auth"
)

// Handler serves the permission catalog and resolved permission views.
type Handler struct {
	engine  *Engine
	catalog Catalog
}

func NewHandler(engine *Engine, catalog Catalog) *Handler {
	return &Handler{engine: engine, catalog: catalog}
}

// HandleListPermissions returns the catalog grouped by category.
func (h *Handler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.ListCategories())
}

// HandleEmployeePermissions resolves the employee in the path. Query
// parameters department and program narrow the scope; at (YYYY-MM-DD or
// RFC 3339) picks the instant, defaulting to now.
func (h *Handler) HandleEmployeePermissions(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, r.PathValue("id"))
}

// HandleMyPermissions resolves the signed-in employee.
func (h *Handler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil || identity.EmployeeID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	h.resolve(w, r, identity.EmployeeID)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, employeeID string) {
	now := h.engine.Now()
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := parseInstant(at)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "at must be a date (YYYY-MM-DD) or RFC 3339 timestamp",
				"kind":  "validation",
				"field": "at",
			})
			return
		}
		now = t
	}

	view, err := h.engine.Resolve(r.Context(), employeeID, now, ScopeFromQuery(r))
	if err != nil {
		if errors.Is(err, ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "kind": "validation"})
			return
		}
		slog.Error("resolving permissions", "error", err, "employee_id", employeeID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving permissions failed"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
