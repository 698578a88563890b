package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/valinor-ai/rolegate/internal/auth"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

const maxBodyBytes = 16 << 10

// Handler serves the role and assignment HTTP endpoints.
type Handler struct {
	store    *Store
	validate *requestValidator
}

// NewHandler creates a handler over store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store, validate: newRequestValidator()}
}

type createRoleRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	Code          string   `json:"code" validate:"required,max=64"`
	Description   string   `json:"description" validate:"max=2000"`
	Level         *int     `json:"level" validate:"required,gte=0,lte=99"`
	ApprovalScope string   `json:"approval_scope" validate:"omitempty,oneof=none program department organization all"`
	IsActive      *bool    `json:"is_active"`
	CanBeAssigned *bool    `json:"can_be_assigned"`
	Permissions   []string `json:"permissions" validate:"dive,uuid"`
}

// updateRoleRequest is checked by the store only, so that a system role is
// reported as immutable whatever the body contains.
type updateRoleRequest struct {
	Name          *string   `json:"name"`
	Code          *string   `json:"code"`
	Description   *string   `json:"description"`
	Level         *int      `json:"level"`
	ApprovalScope *string   `json:"approval_scope"`
	IsActive      *bool     `json:"is_active"`
	CanBeAssigned *bool     `json:"can_be_assigned"`
	Permissions   *[]string `json:"permissions"`
}

type duplicateRoleRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Code string `json:"code" validate:"required,max=64"`
}

type assignRoleRequest struct {
	RoleID          string  `json:"role_id" validate:"required,uuid"`
	DepartmentScope *string `json:"department_scope" validate:"omitempty,max=64"`
	ProgramScope    *string `json:"program_scope" validate:"omitempty,max=64"`
	IsPrimary       bool    `json:"is_primary"`
	IsActive        *bool   `json:"is_active"`
	ValidFrom       *string `json:"valid_from" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil      *string `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	Notes           string  `json:"notes" validate:"max=2000"`
}

// updateAssignmentRequest replaces the whole assignment, so the flags must be
// sent explicitly.
type updateAssignmentRequest struct {
	DepartmentScope *string `json:"department_scope" validate:"omitempty,max=64"`
	ProgramScope    *string `json:"program_scope" validate:"omitempty,max=64"`
	IsPrimary       *bool   `json:"is_primary" validate:"required"`
	IsActive        *bool   `json:"is_active" validate:"required"`
	ValidFrom       *string `json:"valid_from" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil      *string `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	Notes           string  `json:"notes" validate:"max=2000"`
}

// HandleListRoles returns role summaries. Query: search, active, assignable,
// system (false hides system roles).
func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := RoleFilter{Search: q.Get("search")}
	filter.ActiveOnly, _ = strconv.ParseBool(q.Get("active"))
	filter.AssignableOnly, _ = strconv.ParseBool(q.Get("assignable"))
	if v := q.Get("system"); v != "" {
		system, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "system must be true or false",
				"kind":  "validation",
				"field": "system",
			})
			return
		}
		filter.IncludeSystem = &system
	}

	roles, err := h.store.ListRoles(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// HandleCreateRole creates a custom role.
func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := RoleInput{
		Name:          req.Name,
		Code:          req.Code,
		Description:   req.Description,
		Level:         *req.Level,
		ApprovalScope: rbac.ApprovalScope(req.ApprovalScope),
		IsActive:      boolOr(req.IsActive, true),
		CanBeAssigned: boolOr(req.CanBeAssigned, true),
		Permissions:   req.Permissions,
	}
	role, err := h.store.CreateRole(actorContext(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// HandleGetRole returns one role with its permissions.
func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.store.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// HandleUpdateRole applies a partial update to a custom role.
func (h *Handler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "kind": "validation"})
		return
	}

	upd := RoleUpdate{
		Name:          req.Name,
		Code:          req.Code,
		Description:   req.Description,
		Level:         req.Level,
		IsActive:      req.IsActive,
		CanBeAssigned: req.CanBeAssigned,
		Permissions:   req.Permissions,
	}
	if req.ApprovalScope != nil {
		scope := rbac.ApprovalScope(*req.ApprovalScope)
		upd.ApprovalScope = &scope
	}

	role, err := h.store.UpdateRole(actorContext(r), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// HandleDeleteRole deletes a custom role without active assignments.
func (h *Handler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRole(actorContext(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDuplicateRole copies a role under a new name and code.
func (h *Handler) HandleDuplicateRole(w http.ResponseWriter, r *http.Request) {
	var req duplicateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.store.DuplicateRole(actorContext(r), r.PathValue("id"), req.Name, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// HandleListAssignments returns every assignment of the employee in the path.
func (h *Handler) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.store.GetEmployeeAssignments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// HandleAssignRole grants a role to the employee in the path.
func (h *Handler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, until, err := parseValidity(req.ValidFrom, req.ValidUntil)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.store.AssignRole(actorContext(r), AssignmentInput{
		EmployeeID:      r.PathValue("id"),
		RoleID:          req.RoleID,
		DepartmentScope: req.DepartmentScope,
		ProgramScope:    req.ProgramScope,
		IsPrimary:       req.IsPrimary,
		IsActive:        boolOr(req.IsActive, true),
		ValidFrom:       from,
		ValidUntil:      until,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleUpdateAssignment replaces the mutable fields of an assignment.
func (h *Handler) HandleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req updateAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, until, err := parseValidity(req.ValidFrom, req.ValidUntil)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.store.UpdateAssignment(actorContext(r), r.PathValue("id"), AssignmentUpdate{
		DepartmentScope: req.DepartmentScope,
		ProgramScope:    req.ProgramScope,
		IsPrimary:       *req.IsPrimary,
		IsActive:        *req.IsActive,
		ValidFrom:       from,
		ValidUntil:      until,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleRemoveAssignment hard-deletes an assignment.
func (h *Handler) HandleRemoveAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveRoleAssignment(actorContext(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPrimary marks an assignment as its employee's primary one.
func (h *Handler) HandleSetPrimary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.SetRolePrimary(actorContext(r), id); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.store.GetAssignment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "kind": "validation"})
		return false
	}
	if err := h.validate.Validate(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// actorContext records the signed-in employee as the actor of a mutation.
func actorContext(r *http.Request) context.Context {
	ctx := r.Context()
	if identity := auth.GetIdentity(ctx); identity != nil {
		ctx = rbac.WithActor(ctx, identity.EmployeeID)
	}
	return ctx
}

func parseValidity(from, until *string) (*time.Time, *time.Time, error) {
	f, err := parseDate("valid_from", from)
	if err != nil {
		return nil, nil, err
	}
	u, err := parseDate("valid_until", until)
	if err != nil {
		return nil, nil, err
	}
	return f, u, nil
}

func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil, rbac.WithField(fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", rbac.ErrValidation, field), field, "")
	}
	return &t, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch rbac.KindOf(err) {
	case "validation":
		return http.StatusBadRequest
	case "conflict", "dependency":
		return http.StatusConflict
	case "referential":
		return http.StatusNotFound
	case "immutable":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("staff request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}

	body := map[string]string{"error": err.Error(), "kind": rbac.KindOf(err)}
	var fe *rbac.FieldError
	if errors.As(err, &fe) {
		body["error"] = fe.Err.Error()
		if fe.Field != "" {
			body["field"] = fe.Field
		}
		if fe.ID != "" {
			body["id"] = fe.ID
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
