package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/auth"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []rbac.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, event rbac.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func setIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	ctx := context.WithValue(r.Context(), auth.IdentityContextKey(), identity)
	return r.WithContext(ctx)
}

func newTestEngine(t *testing.T) *rbac.Engine {
	t.Helper()
	return rbac.NewEngine(newFakeState(), testCatalog(t), rbac.WithClock(fixedClock))
}

func TestRequirePermission_Allowed(t *testing.T) {
	var got *rbac.EffectiveView
	handler := rbac.RequirePermission(newTestEngine(t), rbac.Single("leave_request"), rbac.WithJSONErrors())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = rbac.ViewFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	req := setIdentity(httptest.NewRequest(http.MethodGet, "/", nil), &auth.Identity{EmployeeID: "emp-1"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "emp-1", got.EmployeeID)
}

func TestRequirePermission_DeniedJSON(t *testing.T) {
	audit := &recordingAudit{}
	handler := rbac.RequirePermission(newTestEngine(t), rbac.Single("audit_view"), rbac.WithJSONErrors(), rbac.WithAuditLogger(audit))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach handler")
		}))

	req := setIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil), &auth.Identity{EmployeeID: "emp-1"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Contains(t, body["reason"], "audit_view")

	require.Len(t, audit.events, 1)
	evt := audit.events[0]
	assert.Equal(t, "access.denied", evt.Action)
	assert.Equal(t, "emp-1", evt.ActorID)
	assert.Equal(t, "/api/v1/roles", evt.ResourceID)
	assert.Equal(t, "unauthorized", evt.Metadata["state"])
}

func TestRequirePermission_NoIdentityJSON(t *testing.T) {
	audit := &recordingAudit{}
	handler := rbac.RequirePermission(newTestEngine(t), rbac.None(), rbac.WithJSONErrors(), rbac.WithAuditLogger(audit))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach handler")
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, audit.events)
}

func TestRequirePermission_Redirects(t *testing.T) {
	engine := rbac.NewEngine(newFakeState(), testCatalog(t),
		rbac.WithClock(fixedClock),
		rbac.WithSignInURL("/signin"),
		rbac.WithFallbackURL("/home"),
	)
	handler := rbac.RequirePermission(engine, rbac.Single("audit_view"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach handler")
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/signin", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	req := setIdentity(httptest.NewRequest(http.MethodGet, "/audit", nil), &auth.Identity{EmployeeID: "emp-1"})
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))
}

func TestRequirePermission_ScopeFromQuery(t *testing.T) {
	state := newFakeState()
	scoped := makeAssignment("as-3", "emp-3", "role-approver")
	scoped.DepartmentScope = ptr("dept-1")
	state.assignments = append(state.assignments, scoped)
	engine := rbac.NewEngine(state, testCatalog(t), rbac.WithClock(fixedClock))

	handler := rbac.RequirePermission(engine, rbac.Single("leave_approve_department"), rbac.WithJSONErrors(), rbac.WithScope(rbac.ScopeFromQuery))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		url  string
		want int
	}{
		{"/leave?department=dept-1", http.StatusOK},
		{"/leave?department=dept-2", http.StatusForbidden},
		{"/leave", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := setIdentity(httptest.NewRequest(http.MethodGet, tt.url, nil), &auth.Identity{EmployeeID: "emp-3"})
		handler.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, tt.url)
	}
}

func TestScopeFromQuery(t *testing.T) {
	assert.Nil(t, rbac.ScopeFromQuery(httptest.NewRequest(http.MethodGet, "/x", nil)))

	scope := rbac.ScopeFromQuery(httptest.NewRequest(http.MethodGet, "/x?program=p1", nil))
	require.NotNil(t, scope)
	assert.Equal(t, "", scope.DepartmentID)
	assert.Equal(t, "p1", scope.ProgramID)
}
