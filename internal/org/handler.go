package org

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

const maxBodyBytes = 4 << 10

// Handler serves the department and program endpoints.
type Handler struct {
	store    Store
	validate *validator.Validate
}

func NewHandler(store Store) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return &Handler{store: store, validate: v}
}

type createUnitRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

func (h *Handler) HandleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (h *Handler) HandleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	dept, err := h.store.CreateDepartment(r.Context(), req.ID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("department created", "department_id", dept.ID)
	writeJSON(w, http.StatusCreated, dept)
}

// HandleListPrograms lists the programs of the department in the path.
func (h *Handler) HandleListPrograms(w http.ResponseWriter, r *http.Request) {
	departmentID := r.PathValue("id")
	if _, err := h.store.Department(r.Context(), departmentID); err != nil {
		writeError(w, err)
		return
	}
	programs, err := h.store.ListPrograms(r.Context(), departmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programs)
}

// HandleCreateProgram creates a program under the department in the path.
func (h *Handler) HandleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	prog, err := h.store.CreateProgram(r.Context(), req.ID, r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("program created", "program_id", prog.ID, "department_id", prog.DepartmentID)
	writeJSON(w, http.StatusCreated, prog)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "kind": "validation"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		field := ""
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": field + " is missing or too long",
			"kind":  "validation",
			"field": field,
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var status int
	switch rbac.KindOf(err) {
	case "validation":
		status = http.StatusBadRequest
	case "conflict":
		status = http.StatusConflict
	case "referential":
		status = http.StatusNotFound
	default:
		slog.Error("org request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
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
