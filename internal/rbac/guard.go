package rbac

import (
	"strings"

	"github.com/valinor-ai/rolegate/internal/auth"
)

type requirementKind int

const (
	requireNone requirementKind = iota
	requireSingle
	requireAnyOf
)

// Requirement is the permission specification a protected operation demands.
// The zero value is None.
type Requirement struct {
	kind  requirementKind
	codes []string
}

// None is satisfied by any authenticated identity.
func None() Requirement {
	return Requirement{kind: requireNone}
}

// Single requires one permission code.
func Single(code string) Requirement {
	return Requirement{kind: requireSingle, codes: []string{code}}
}

// AnyOf is satisfied when at least one of codes is granted. An empty list is
// never satisfied.
func AnyOf(codes ...string) Requirement {
	return Requirement{kind: requireAnyOf, codes: append([]string(nil), codes...)}
}

// Codes returns the permission codes named by the requirement.
func (r Requirement) Codes() []string {
	return append([]string(nil), r.codes...)
}

// SatisfiedBy reports whether view meets the requirement.
func (r Requirement) SatisfiedBy(view *EffectiveView) bool {
	switch r.kind {
	case requireNone:
		return true
	default:
		return view.HasAny(r.codes...)
	}
}

func (r Requirement) String() string {
	switch r.kind {
	case requireNone:
		return "none"
	case requireSingle:
		return r.codes[0]
	default:
		return "any(" + strings.Join(r.codes, ",") + ")"
	}
}

// State is the guard's per-request state. Pending is the only non-terminal
// state; only Authorized permits access.
type State int

const (
	Pending State = iota
	Authorized
	Unauthorized
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends the request's guard evaluation.
func (s State) Terminal() bool {
	return s != Pending
}

// Decision is the outcome of one guard evaluation.
type Decision struct {
	State    State
	Reason   string
	Redirect string
	View     *EffectiveView
}

// Allowed reports whether the decision permits access.
func (d Decision) Allowed() bool {
	return d.State == Authorized
}

// Decide runs the guard state machine. A missing identity is Unauthenticated
// before any permission is considered.
func Decide(identity *auth.Identity, view *EffectiveView, req Requirement, signInURL, fallbackURL string) Decision {
	if identity == nil || identity.EmployeeID == "" {
		return Decision{
			State:    Unauthenticated,
			Reason:   "authentication required",
			Redirect: signInURL,
		}
	}
	if view == nil {
		return Decision{State: Pending, Reason: "resolution pending"}
	}
	if !req.SatisfiedBy(view) {
		return Decision{
			State:    Unauthorized,
			Reason:   "missing permission " + req.String(),
			Redirect: fallbackURL,
			View:     view,
		}
	}
	return Decision{State: Authorized, View: view}
}
