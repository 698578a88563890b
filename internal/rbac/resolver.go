package rbac

import (
	"sort"
	"time"
)

// EffectiveView is the resolved, time- and scope-filtered permission state of
// one employee. Views are immutable once built and safe to share.
type EffectiveView struct {
	EmployeeID          string        `json:"employee_id"`
	At                  time.Time     `json:"at"`
	Scope               *ScopeContext `json:"scope,omitempty"`
	Permissions         []string      `json:"permissions"` // codes, sorted
	CanApprove          bool          `json:"can_approve"`
	ApprovalScope       ApprovalScope `json:"approval_scope"`
	PrimaryRole         *RoleSummary  `json:"primary_role,omitempty"`
	PrimaryAssignmentID string        `json:"primary_assignment_id,omitempty"`
	AssignmentIDs       []string      `json:"assignment_ids"`

	// The view is constant for any instant in [StableFrom, StableUntil).
	// A zero StableUntil means no upcoming validity boundary.
	StableFrom  time.Time `json:"-"`
	StableUntil time.Time `json:"-"`
}

// Has reports whether the view grants the permission code.
func (v *EffectiveView) Has(code string) bool {
	if v == nil {
		return false
	}
	i := sort.SearchStrings(v.Permissions, code)
	return i < len(v.Permissions) && v.Permissions[i] == code
}

// HasAny reports whether the view grants at least one of codes.
func (v *EffectiveView) HasAny(codes ...string) bool {
	for _, code := range codes {
		if v.Has(code) {
			return true
		}
	}
	return false
}

// CoversInstant reports whether the view is still exact at now.
func (v *EffectiveView) CoversInstant(now time.Time) bool {
	if now.Before(v.StableFrom) {
		return false
	}
	return v.StableUntil.IsZero() || now.Before(v.StableUntil)
}

// ResolveInput is the explicit state a resolution runs over.
type ResolveInput struct {
	EmployeeID  string
	Now         time.Time
	Roles       map[string]Role // by role id
	Assignments []Assignment
	Catalog     Catalog
	Scope       *ScopeContext
}

type survivor struct {
	assignment *Assignment
	role       *Role
}

// Resolve computes the effective permission view for in.EmployeeID. It reads
// only its input and never fails: missing or deactivated roles grant nothing.
func Resolve(in ResolveInput) *EffectiveView {
	view := &EffectiveView{
		EmployeeID:    in.EmployeeID,
		At:            in.Now,
		Scope:         in.Scope,
		Permissions:   []string{},
		ApprovalScope: ApprovalNone,
		AssignmentIDs: []string{},
		StableFrom:    DayOf(in.Now),
	}

	var survivors []survivor
	for i := range in.Assignments {
		a := &in.Assignments[i]
		if a.EmployeeID != in.EmployeeID || !a.IsActive {
			continue
		}
		role, ok := in.Roles[a.RoleID]
		if !ok || !role.IsActive {
			continue
		}
		if !a.InScope(in.Scope) {
			continue
		}
		view.StableUntil = earliest(view.StableUntil, nextBoundary(a, in.Now))
		if !a.ValidAt(in.Now) {
			continue
		}
		survivors = append(survivors, survivor{assignment: a, role: &role})
	}

	codes := make(map[string]bool)
	for _, s := range survivors {
		view.AssignmentIDs = append(view.AssignmentIDs, s.assignment.ID)
		for _, id := range s.role.Permissions {
			if in.Catalog == nil {
				continue
			}
			if p, ok := in.Catalog.PermissionByID(id); ok {
				codes[p.Code] = true
			}
		}
		if s.role.ApprovalScope != ApprovalNone && s.role.ApprovalScope.Valid() {
			view.CanApprove = true
		}
		if s.role.ApprovalScope.Rank() > view.ApprovalScope.Rank() {
			view.ApprovalScope = s.role.ApprovalScope
		}
	}
	for code := range codes {
		view.Permissions = append(view.Permissions, code)
	}
	sort.Strings(view.Permissions)
	sort.Strings(view.AssignmentIDs)

	if primary := pickPrimary(survivors); primary != nil {
		summary := primary.role.Summary()
		view.PrimaryRole = &summary
		view.PrimaryAssignmentID = primary.assignment.ID
	}
	return view
}

// pickPrimary prefers the flagged assignment, then the most authoritative
// (lowest level) role, ties broken by role name then assignment id.
func pickPrimary(survivors []survivor) *survivor {
	var best *survivor
	for i := range survivors {
		s := &survivors[i]
		if s.assignment.IsPrimary {
			return s
		}
		if best == nil || ranksAbove(s, best) {
			best = s
		}
	}
	return best
}

func ranksAbove(a, b *survivor) bool {
	if a.role.Level != b.role.Level {
		return a.role.Level < b.role.Level
	}
	if a.role.Name != b.role.Name {
		return a.role.Name < b.role.Name
	}
	return a.assignment.ID < b.assignment.ID
}

// nextBoundary returns the first instant after now at which a's validity
// flips, or zero if it never does.
func nextBoundary(a *Assignment, now time.Time) time.Time {
	var next time.Time
	if a.ValidFrom != nil {
		start := DayOf(*a.ValidFrom)
		if start.After(now) {
			next = earliest(next, start)
		}
	}
	if a.ValidUntil != nil {
		end := DayOf(*a.ValidUntil).AddDate(0, 0, 1)
		if end.After(now) {
			next = earliest(next, end)
		}
	}
	return next
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
