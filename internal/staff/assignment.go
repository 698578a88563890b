package staff

import (
	"context"
	"strings"
	"time"

	"github.com/valinor-ai/rolegate/internal/org"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// AssignmentInput carries the fields of a new assignment. Empty scope
// strings are treated as unset. Validity dates are truncated to their UTC day.
type AssignmentInput struct {
	EmployeeID      string
	RoleID          string
	DepartmentScope *string
	ProgramScope    *string
	IsPrimary       bool
	IsActive        bool
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Notes           string
}

// AssignmentUpdate replaces the mutable fields of an assignment. The employee
// and role of an assignment never change.
type AssignmentUpdate struct {
	DepartmentScope *string
	ProgramScope    *string
	IsPrimary       bool
	IsActive        bool
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Notes           string
}

func normalizeScope(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := rbac.DayOf(*t)
	return &d
}

func validateValidity(from, until *time.Time) error {
	if from != nil && until != nil && from.After(*until) {
		return rbac.WithField(rbac.ErrValidityRange, "valid_from", "")
	}
	return nil
}

// checkScope enforces that an assignment's narrowing fits the role's approval
// scope and that every referenced unit exists:
//   - program roles carry no department scope
//   - department roles carry no program scope
//   - a program scope must belong to the department scope when both are set
func checkScope(ctx context.Context, dir org.Directory, role *rbac.Role, dept, prog *string) error {
	switch role.ApprovalScope {
	case rbac.ApprovalProgram:
		if dept != nil {
			return rbac.WithField(rbac.ErrScopeMismatch, "department_scope", *dept)
		}
	case rbac.ApprovalDepartment:
		if prog != nil {
			return rbac.WithField(rbac.ErrScopeMismatch, "program_scope", *prog)
		}
	}

	if dept != nil {
		if _, err := dir.Department(ctx, *dept); err != nil {
			return err
		}
	}
	if prog != nil {
		p, err := dir.Program(ctx, *prog)
		if err != nil {
			return err
		}
		if dept != nil && p.DepartmentID != *dept {
			return rbac.WithField(rbac.ErrScopeMismatch, "program_scope", *prog)
		}
	}
	return nil
}

// findOverlap returns the first active assignment in existing that grants
// the same role over the same scope for an overlapping period as a.
func findOverlap(existing []rbac.Assignment, a *rbac.Assignment) *rbac.Assignment {
	if !a.IsActive {
		return nil
	}
	for i := range existing {
		e := &existing[i]
		if e.ID == a.ID || !e.IsActive || e.RoleID != a.RoleID {
			continue
		}
		if e.SameScope(a) && e.Overlaps(a) {
			return e
		}
	}
	return nil
}
