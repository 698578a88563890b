package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valinor-ai/rolegate/internal/audit"
	"github.com/valinor-ai/rolegate/internal/auth"
	"github.com/valinor-ai/rolegate/internal/org"
	"github.com/valinor-ai/rolegate/internal/platform/middleware"
	"github.com/valinor-ai/rolegate/internal/rbac"
	"github.com/valinor-ai/rolegate/internal/staff"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Ready             Pinger
	Auth              *auth.TokenService
	AuthHandler       *auth.Handler
	Engine            *rbac.Engine
	PermissionHandler *rbac.Handler
	StaffHandler      *staff.Handler
	OrgHandler        *org.Handler
	AuditHandler      *audit.Handler
	GuardAuditLogger  rbac.AuditLogger
	Gatherer          prometheus.Gatherer
	// App is served under /app/ behind a redirecting guard.
	App                http.Handler
	DevMode            bool
	DevIdentity        *auth.Identity
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	ready        Pinger
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	// Routes behind identity extraction.
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	if deps.Auth != nil {
		if deps.DevMode && deps.DevIdentity != nil {
			protectedHandler = auth.MiddlewareWithDevMode(deps.Auth, deps.DevIdentity)(protectedHandler)
		} else {
			protectedHandler = auth.Middleware(deps.Auth)(protectedHandler)
		}
	}

	// Top-level mux: public routes + protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		ready:        deps.Ready,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Gatherer != nil {
		topMux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(topMux)
	}

	if deps.Engine != nil {
		apiOpts := []rbac.MiddlewareOption{rbac.WithJSONErrors()}
		if deps.GuardAuditLogger != nil {
			apiOpts = append(apiOpts, rbac.WithAuditLogger(deps.GuardAuditLogger))
		}
		guard := func(req rbac.Requirement, h http.HandlerFunc, extra ...rbac.MiddlewareOption) http.Handler {
			return rbac.RequirePermission(deps.Engine, req, append(apiOpts, extra...)...)(h)
		}

		if h := deps.PermissionHandler; h != nil {
			protectedMux.Handle("GET /api/v1/permissions",
				guard(rbac.AnyOf("role_view", "role_manage"), h.HandleListPermissions))
			protectedMux.Handle("GET /api/v1/employees/{id}/permissions",
				guard(rbac.Single("employee_view"), h.HandleEmployeePermissions, rbac.WithScope(rbac.ScopeFromQuery)))
			protectedMux.Handle("GET /api/v1/me/permissions",
				guard(rbac.None(), h.HandleMyPermissions))
		}

		if h := deps.StaffHandler; h != nil {
			protectedMux.Handle("GET /api/v1/roles", guard(rbac.Single("role_view"), h.HandleListRoles))
			protectedMux.Handle("POST /api/v1/roles", guard(rbac.Single("role_manage"), h.HandleCreateRole))
			protectedMux.Handle("GET /api/v1/roles/{id}", guard(rbac.Single("role_view"), h.HandleGetRole))
			protectedMux.Handle("PUT /api/v1/roles/{id}", guard(rbac.Single("role_manage"), h.HandleUpdateRole))
			protectedMux.Handle("DELETE /api/v1/roles/{id}", guard(rbac.Single("role_manage"), h.HandleDeleteRole))
			protectedMux.Handle("POST /api/v1/roles/{id}/duplicate", guard(rbac.Single("role_manage"), h.HandleDuplicateRole))

			protectedMux.Handle("GET /api/v1/employees/{id}/roles",
				guard(rbac.AnyOf("role_view", "role_assign"), h.HandleListAssignments))
			protectedMux.Handle("POST /api/v1/employees/{id}/roles", guard(rbac.Single("role_assign"), h.HandleAssignRole))
			protectedMux.Handle("PUT /api/v1/assignments/{id}", guard(rbac.Single("role_assign"), h.HandleUpdateAssignment))
			protectedMux.Handle("DELETE /api/v1/assignments/{id}", guard(rbac.Single("role_assign"), h.HandleRemoveAssignment))
			protectedMux.Handle("POST /api/v1/assignments/{id}/primary", guard(rbac.Single("role_assign"), h.HandleSetPrimary))
		}

		if h := deps.OrgHandler; h != nil {
			unitReaders := rbac.AnyOf("employee_view", "role_assign", "org_manage")
			protectedMux.Handle("GET /api/v1/departments", guard(unitReaders, h.HandleListDepartments))
			protectedMux.Handle("POST /api/v1/departments", guard(rbac.Single("org_manage"), h.HandleCreateDepartment))
			protectedMux.Handle("GET /api/v1/departments/{id}/programs", guard(unitReaders, h.HandleListPrograms))
			protectedMux.Handle("POST /api/v1/departments/{id}/programs", guard(rbac.Single("org_manage"), h.HandleCreateProgram))
		}

		if h := deps.AuditHandler; h != nil {
			protectedMux.Handle("GET /api/v1/audit/events", guard(rbac.Single("audit_view"), h.HandleListEvents))
		}

		// Navigation guards redirect to the sign-in or fallback page.
		if deps.App != nil {
			var navOpts []rbac.MiddlewareOption
			if deps.GuardAuditLogger != nil {
				navOpts = append(navOpts, rbac.WithAuditLogger(deps.GuardAuditLogger))
			}
			protectedMux.Handle("GET /app/",
				rbac.RequirePermission(deps.Engine, rbac.Single("dashboard_view"), navOpts...)(deps.App))
		}
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
// Use this to register routes that require authentication.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ready.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
