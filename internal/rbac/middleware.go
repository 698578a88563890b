package rbac

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valinor-ai/rolegate/internal/auth"
)

// AuditLogger is the audit interface for guard denial logging.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent captures an auditable guard outcome.
type AuditEvent struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	Source       string
}

// ScopeFunc extracts the scope context of a request. Returning nil disables
// scope filtering.
type ScopeFunc func(r *http.Request) *ScopeContext

// MiddlewareOption configures guard middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit      AuditLogger
	jsonErrors bool
	scope      ScopeFunc
}

// WithAuditLogger attaches an audit logger to log guard denials.
func WithAuditLogger(logger AuditLogger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// WithJSONErrors answers denials with 401/403 JSON bodies instead of redirects.
func WithJSONErrors() MiddlewareOption {
	return func(c *middlewareConfig) {
		c.jsonErrors = true
	}
}

// WithScope sets how the request's scope context is derived.
func WithScope(fn ScopeFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.scope = fn
	}
}

// ScopeFromQuery reads the department and program query parameters. When
// both are absent the request is unscoped.
func ScopeFromQuery(r *http.Request) *ScopeContext {
	q := r.URL.Query()
	dept, prog := q.Get("department"), q.Get("program")
	if dept == "" && prog == "" {
		return nil
	}
	return &ScopeContext{DepartmentID: dept, ProgramID: prog}
}

// RequirePermission returns middleware that lets a request through only when
// the guard reaches Authorized. The resolved view is attached to the request
// context for downstream handlers.
func RequirePermission(engine *Engine, req Requirement, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var scope *ScopeContext
			if mc.scope != nil {
				scope = mc.scope(r)
			}

			identity := auth.GetIdentity(r.Context())
			decision, err := engine.Authorize(r.Context(), identity, req, scope)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "authorization check failed",
				})
				return
			}

			switch decision.State {
			case Authorized:
				next.ServeHTTP(w, r.WithContext(WithView(r.Context(), decision.View)))
				return
			case Unauthenticated:
				if mc.jsonErrors {
					writeJSON(w, http.StatusUnauthorized, map[string]string{
						"error": "authentication required",
					})
					return
				}
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}

			if mc.audit != nil {
				evt := AuditEvent{
					Action:       "access.denied",
					ResourceType: "route",
					ResourceID:   r.URL.Path,
					Metadata: map[string]any{
						"required": req.String(),
						"state":    decision.State.String(),
						"reason":   decision.Reason,
					},
					Source: "api",
				}
				if identity != nil {
					evt.ActorID = identity.EmployeeID
				}
				mc.audit.Log(r.Context(), evt)
			}

			if mc.jsonErrors {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":  "forbidden",
					"reason": decision.Reason,
				})
				return
			}
			http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
		})
	}
}

type viewContextKey struct{}

// WithView attaches a resolved view to ctx.
func WithView(ctx context.Context, view *EffectiveView) context.Context {
	return context.WithValue(ctx, viewContextKey{}, view)
}

// ViewFromContext returns the view attached by WithView, or nil.
func ViewFromContext(ctx context.Context) *EffectiveView {
	view, _ := ctx.Value(viewContextKey{}).(*EffectiveView)
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
