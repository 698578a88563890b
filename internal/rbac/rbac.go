package rbac

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ApprovalScope is the breadth within which a role's holder may approve requests.
type ApprovalScope string

const (
	ApprovalNone         ApprovalScope = "none"
	ApprovalProgram      ApprovalScope = "program"
	ApprovalDepartment   ApprovalScope = "department"
	ApprovalOrganization ApprovalScope = "organization"
	ApprovalAll          ApprovalScope = "all"
)

// Rank orders approval scopes: none < program < department < organization < all.
// Unknown scopes rank below none.
func (s ApprovalScope) Rank() int {
	switch s {
	case ApprovalNone:
		return 0
	case ApprovalProgram:
		return 1
	case ApprovalDepartment:
		return 2
	case ApprovalOrganization:
		return 3
	case ApprovalAll:
		return 4
	default:
		return -1
	}
}

// Valid reports whether s is one of the known approval scopes.
func (s ApprovalScope) Valid() bool {
	return s.Rank() >= 0
}

// ParseApprovalScope normalizes s and returns the matching scope. An empty
// string parses as ApprovalNone.
func ParseApprovalScope(s string) (ApprovalScope, error) {
	scope := ApprovalScope(strings.ToLower(strings.TrimSpace(s)))
	if scope == "" {
		return ApprovalNone, nil
	}
	if !scope.Valid() {
		return "", &FieldError{Err: ErrApprovalScopeInvalid, Field: "approval_scope", ID: s}
	}
	return scope, nil
}

// Permission is an atomic capability. The catalog owns permissions; they are
// immutable once defined.
type Permission struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// PermissionCategory groups permissions for presentation only.
type PermissionCategory struct {
	Key         string       `json:"key"`
	DisplayName string       `json:"display_name"`
	Permissions []Permission `json:"permissions"`
}

// Role is a named bundle of permissions plus an authority level and an
// approval scope. Lower Level values carry more authority.
type Role struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Code          string        `json:"code"`
	Description   string        `json:"description"`
	Level         int           `json:"level"`
	ApprovalScope ApprovalScope `json:"approval_scope"`
	IsActive      bool          `json:"is_active"`
	CanBeAssigned bool          `json:"can_be_assigned"`
	IsSystem      bool          `json:"is_system"`
	Permissions   []string      `json:"permissions"` // permission ids, sorted
	EmployeeCount int           `json:"employee_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// HasPermission reports whether the role grants the permission id.
func (r *Role) HasPermission(id string) bool {
	i := sort.SearchStrings(r.Permissions, id)
	return i < len(r.Permissions) && r.Permissions[i] == id
}

// Summary returns the listing projection of the role.
func (r *Role) Summary() RoleSummary {
	return RoleSummary{
		ID:              r.ID,
		Name:            r.Name,
		Code:            r.Code,
		Level:           r.Level,
		ApprovalScope:   r.ApprovalScope,
		IsActive:        r.IsActive,
		CanBeAssigned:   r.CanBeAssigned,
		IsSystem:        r.IsSystem,
		PermissionCount: len(r.Permissions),
		EmployeeCount:   r.EmployeeCount,
	}
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	c := *r
	c.Permissions = append([]string(nil), r.Permissions...)
	return &c
}

// RoleSummary is the listing projection of a Role, without permission detail.
type RoleSummary struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Code            string        `json:"code"`
	Level           int           `json:"level"`
	ApprovalScope   ApprovalScope `json:"approval_scope"`
	IsActive        bool          `json:"is_active"`
	CanBeAssigned   bool          `json:"can_be_assigned"`
	IsSystem        bool          `json:"is_system"`
	PermissionCount int           `json:"permission_count"`
	EmployeeCount   int           `json:"employee_count"`
}

// NormalizeCode returns the canonical (trimmed, upper-case) form of a role code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizePermissionIDs returns ids sorted with duplicates removed.
func NormalizePermissionIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Assignment grants one Role to one employee, optionally narrowed to a
// department and/or program and bounded by a validity window.
type Assignment struct {
	ID              string     `json:"id"`
	EmployeeID      string     `json:"employee_id"`
	RoleID          string     `json:"role_id"`
	DepartmentScope *string    `json:"department_scope,omitempty"`
	ProgramScope    *string    `json:"program_scope,omitempty"`
	IsPrimary       bool       `json:"is_primary"`
	IsActive        bool       `json:"is_active"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the assignment.
func (a *Assignment) Clone() *Assignment {
	c := *a
	c.DepartmentScope = cloneString(a.DepartmentScope)
	c.ProgramScope = cloneString(a.ProgramScope)
	c.ValidFrom = cloneTime(a.ValidFrom)
	c.ValidUntil = cloneTime(a.ValidUntil)
	return &c
}

// ValidAt reports whether the assignment is active and inside its validity
// window on the calendar day of now. Both bounds are inclusive.
func (a *Assignment) ValidAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	day := DayOf(now)
	if a.ValidFrom != nil && DayOf(*a.ValidFrom).After(day) {
		return false
	}
	if a.ValidUntil != nil && DayOf(*a.ValidUntil).Before(day) {
		return false
	}
	return true
}

// InScope reports whether the assignment applies to the requested scope.
// A nil scope matches everything. Otherwise each assignment scope must be
// unset or equal to the corresponding context value.
func (a *Assignment) InScope(scope *ScopeContext) bool {
	if scope == nil {
		return true
	}
	if a.DepartmentScope != nil && *a.DepartmentScope != scope.DepartmentID {
		return false
	}
	if a.ProgramScope != nil && *a.ProgramScope != scope.ProgramID {
		return false
	}
	return true
}

// Overlaps reports whether the validity windows of a and b share a day.
func (a *Assignment) Overlaps(b *Assignment) bool {
	if a.ValidUntil != nil && b.ValidFrom != nil && DayOf(*a.ValidUntil).Before(DayOf(*b.ValidFrom)) {
		return false
	}
	if b.ValidUntil != nil && a.ValidFrom != nil && DayOf(*b.ValidUntil).Before(DayOf(*a.ValidFrom)) {
		return false
	}
	return true
}

// SameScope reports whether a and b narrow to the same department and program.
func (a *Assignment) SameScope(b *Assignment) bool {
	return equalString(a.DepartmentScope, b.DepartmentScope) && equalString(a.ProgramScope, b.ProgramScope)
}

// ScopeContext restricts resolution to one department and/or program.
type ScopeContext struct {
	DepartmentID string `json:"department_id,omitempty"`
	ProgramID    string `json:"program_id,omitempty"`
}

func (s *ScopeContext) String() string {
	if s == nil {
		return "*"
	}
	return fmt.Sprintf("department=%s program=%s", s.DepartmentID, s.ProgramID)
}

// DayOf truncates t to the start of its UTC calendar day. Validity windows are
// compared at day granularity.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
