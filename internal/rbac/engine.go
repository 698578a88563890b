package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/valinor-ai/rolegate/internal/auth"
)

// StateReader supplies the role and assignment state a resolution reads.
type StateReader interface {
	ListAssignments(ctx context.Context, employeeID string) ([]Assignment, error)
	GetRoles(ctx context.Context, ids []string) (map[string]Role, error)
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithCache memoizes resolved views.
func WithCache(cache *ViewCache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithMetrics records guard and cache metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSignInURL sets the redirect target for unauthenticated callers.
func WithSignInURL(url string) EngineOption {
	return func(e *Engine) {
		e.signInURL = url
	}
}

// WithFallbackURL sets the redirect target for unauthorized callers.
func WithFallbackURL(url string) EngineOption {
	return func(e *Engine) {
		e.fallbackURL = url
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine loads state, resolves effective views and runs the access guard.
// It holds no mutable state besides the optional cache and is safe for
// concurrent use.
type Engine struct {
	state       StateReader
	catalog     Catalog
	cache       *ViewCache
	metrics     *Metrics
	signInURL   string
	fallbackURL string
	now         func() time.Time
}

func NewEngine(state StateReader, catalog Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		state:       state,
		catalog:     catalog,
		signInURL:   "/signin",
		fallbackURL: "/",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Resolve returns the effective view of employeeID at now within scope.
func (e *Engine) Resolve(ctx context.Context, employeeID string, now time.Time, scope *ScopeContext) (*EffectiveView, error) {
	if employeeID == "" {
		return nil, ErrEmployeeIDEmpty
	}

	var epoch uint64
	if e.cache != nil {
		if view, ok := e.cache.Get(employeeID, scope, now); ok {
			e.metrics.recordCache(true)
			return view, nil
		}
		e.metrics.recordCache(false)
		epoch = e.cache.Epoch()
	}

	start := time.Now()
	assignments, err := e.state.ListAssignments(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.RoleID)
	}
	roles, err := e.state.GetRoles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}

	view := Resolve(ResolveInput{
		EmployeeID:  employeeID,
		Now:         now,
		Roles:       roles,
		Assignments: assignments,
		Catalog:     e.catalog,
		Scope:       scope,
	})
	e.metrics.observeResolve(start)

	if e.cache != nil {
		e.cache.Put(epoch, view)
	}
	return view, nil
}

// Authorize runs the access guard for identity against req at the engine's
// current time. Resolution failures are returned as errors, never as denials.
func (e *Engine) Authorize(ctx context.Context, identity *auth.Identity, req Requirement, scope *ScopeContext) (Decision, error) {
	decision := Decide(identity, nil, req, e.signInURL, e.fallbackURL)
	if decision.State == Unauthenticated {
		e.metrics.recordDecision(decision.State)
		return decision, nil
	}

	view, err := e.Resolve(ctx, identity.EmployeeID, e.now(), scope)
	if err != nil {
		return Decision{State: Pending}, fmt.Errorf("resolving permissions: %w", err)
	}

	decision = Decide(identity, view, req, e.signInURL, e.fallbackURL)
	e.metrics.recordDecision(decision.State)
	return decision, nil
}

// CanApprove reports whether employeeID may approve requests within scope at
// now, and the broadest approval scope held.
func (e *Engine) CanApprove(ctx context.Context, employeeID string, now time.Time, scope *ScopeContext) (bool, ApprovalScope, error) {
	view, err := e.Resolve(ctx, employeeID, now, scope)
	if err != nil {
		return false, ApprovalNone, err
	}
	return view.CanApprove, view.ApprovalScope, nil
}
