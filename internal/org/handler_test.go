package org_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/org"
)

func newOrgMux() *http.ServeMux {
	h := org.NewHandler(org.NewMemoryDirectory())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/departments", h.HandleListDepartments)
	mux.HandleFunc("POST /api/v1/departments", h.HandleCreateDepartment)
	mux.HandleFunc("GET /api/v1/departments/{id}/programs", h.HandleListPrograms)
	mux.HandleFunc("POST /api/v1/departments/{id}/programs", h.HandleCreateProgram)
	return mux
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_Provisioning(t *testing.T) {
	mux := newOrgMux()

	w := serve(mux, http.MethodGet, "/api/v1/departments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(mux, http.MethodPost, "/api/v1/departments", `{"id": "dept-eng", "name": "Engineering"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dept org.Department
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dept))
	assert.Equal(t, "dept-eng", dept.ID)

	w = serve(mux, http.MethodPost, "/api/v1/departments/dept-eng/programs", `{"id": "prog-platform", "name": "Platform"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(mux, http.MethodGet, "/api/v1/departments/dept-eng/programs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var programs []org.Program
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &programs))
	require.Len(t, programs, 1)
	assert.Equal(t, "dept-eng", programs[0].DepartmentID)
}

func TestHandler_ProvisioningRejects(t *testing.T) {
	mux := newOrgMux()
	require.Equal(t, http.StatusCreated,
		serve(mux, http.MethodPost, "/api/v1/departments", `{"id": "dept-eng", "name": "Engineering"}`).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		field  string
	}{
		{"missing name", http.MethodPost, "/api/v1/departments", `{"id": "dept-ops"}`, http.StatusBadRequest, "name"},
		{"bad id", http.MethodPost, "/api/v1/departments", `{"id": "dept ops", "name": "Operations"}`, http.StatusBadRequest, "id"},
		{"duplicate", http.MethodPost, "/api/v1/departments", `{"id": "dept-eng", "name": "Eng"}`, http.StatusConflict, "id"},
		{"program of unknown department", http.MethodPost, "/api/v1/departments/dept-nope/programs", `{"id": "prog-x", "name": "X"}`, http.StatusNotFound, "department_id"},
		{"programs of unknown department", http.MethodGet, "/api/v1/departments/dept-nope/programs", "", http.StatusNotFound, "department_scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.field, body["field"])
		})
	}

	w := serve(mux, http.MethodPost, "/api/v1/departments", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
