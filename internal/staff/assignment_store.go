package staff

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// AssignRole grants a role to an employee. A primary grant clears the
// employee's other primary flags in the same unit of work.
func (s *Store) AssignRole(ctx context.Context, in AssignmentInput) (*rbac.Assignment, error) {
	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		return nil, rbac.WithField(rbac.ErrEmployeeIDEmpty, "employee_id", "")
	}
	if strings.TrimSpace(in.RoleID) == "" {
		return nil, rbac.WithField(rbac.ErrRoleNotFound, "role_id", "")
	}

	now := s.now()
	a := &rbac.Assignment{
		ID:              uuid.NewString(),
		EmployeeID:      employeeID,
		RoleID:          in.RoleID,
		DepartmentScope: normalizeScope(in.DepartmentScope),
		ProgramScope:    normalizeScope(in.ProgramScope),
		IsPrimary:       in.IsPrimary,
		IsActive:        in.IsActive,
		ValidFrom:       normalizeDay(in.ValidFrom),
		ValidUntil:      normalizeDay(in.ValidUntil),
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateValidity(a.ValidFrom, a.ValidUntil); err != nil {
		return nil, err
	}

	unlock := s.locks.lockAll(employeeKey(employeeID), roleKey(a.RoleID))
	defer unlock()

	err := s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := lockAssignment(ctx, tx, a); err != nil {
			return err
		}
		role, err := tx.GetRole(ctx, a.RoleID)
		if err != nil {
			return err
		}
		if !role.CanBeAssigned {
			return rbac.WithField(rbac.ErrRoleNotAssignable, "role_id", role.ID)
		}
		if err := s.checkAssignment(ctx, tx, role, a); err != nil {
			return err
		}
		if a.IsPrimary {
			if err := tx.ClearPrimary(ctx, a.EmployeeID, a.ID); err != nil {
				return err
			}
		}
		return tx.InsertAssignment(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("role assigned", "assignment_id", a.ID, "employee_id", a.EmployeeID, "role_id", a.RoleID)
	s.emit(ctx, rbac.ChangeEvent{
		Kind:         rbac.AssignmentCreated,
		EmployeeID:   a.EmployeeID,
		RoleID:       a.RoleID,
		AssignmentID: a.ID,
	})
	return a, nil
}

// UpdateAssignment replaces the scope, validity, flags and notes of an
// assignment, re-running the checks AssignRole applies.
func (s *Store) UpdateAssignment(ctx context.Context, id string, upd AssignmentUpdate) (*rbac.Assignment, error) {
	from, until := normalizeDay(upd.ValidFrom), normalizeDay(upd.ValidUntil)
	if err := validateValidity(from, until); err != nil {
		return nil, err
	}

	current, err := s.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lockAll(employeeKey(current.EmployeeID), roleKey(current.RoleID))
	defer unlock()

	var updated *rbac.Assignment
	err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := lockAssignment(ctx, tx, current); err != nil {
			return err
		}
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		a.DepartmentScope = normalizeScope(upd.DepartmentScope)
		a.ProgramScope = normalizeScope(upd.ProgramScope)
		a.IsPrimary = upd.IsPrimary
		a.IsActive = upd.IsActive
		a.ValidFrom = from
		a.ValidUntil = until
		a.Notes = upd.Notes
		a.UpdatedAt = s.now()

		role, err := tx.GetRole(ctx, a.RoleID)
		if err != nil {
			return err
		}
		if err := s.checkAssignment(ctx, tx, role, a); err != nil {
			return err
		}
		if a.IsPrimary {
			if err := tx.ClearPrimary(ctx, a.EmployeeID, a.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("assignment updated", "assignment_id", id, "employee_id", updated.EmployeeID)
	s.emit(ctx, rbac.ChangeEvent{
		Kind:         rbac.AssignmentUpdated,
		EmployeeID:   updated.EmployeeID,
		RoleID:       updated.RoleID,
		AssignmentID: id,
	})
	return updated, nil
}

// SetRolePrimary makes the assignment its employee's only primary one.
func (s *Store) SetRolePrimary(ctx context.Context, id string) error {
	current, err := s.GetAssignment(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(employeeKey(current.EmployeeID))
	defer unlock()

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockEmployee(ctx, current.EmployeeID); err != nil {
			return err
		}
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.ClearPrimary(ctx, a.EmployeeID, a.ID); err != nil {
			return err
		}
		if a.IsPrimary {
			return nil
		}
		a.IsPrimary = true
		a.UpdatedAt = s.now()
		return tx.UpdateAssignment(ctx, a)
	})
	if err != nil {
		return err
	}

	slog.Debug("primary role set", "assignment_id", id, "employee_id", current.EmployeeID)
	s.emit(ctx, rbac.ChangeEvent{
		Kind:         rbac.AssignmentPrimarySet,
		EmployeeID:   current.EmployeeID,
		RoleID:       current.RoleID,
		AssignmentID: id,
	})
	return nil
}

// RemoveRoleAssignment hard-deletes an assignment.
func (s *Store) RemoveRoleAssignment(ctx context.Context, id string) error {
	current, err := s.GetAssignment(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.lockAll(employeeKey(current.EmployeeID), roleKey(current.RoleID))
	defer unlock()

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := lockAssignment(ctx, tx, current); err != nil {
			return err
		}
		return tx.DeleteAssignment(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.Debug("assignment removed", "assignment_id", id, "employee_id", current.EmployeeID)
	s.emit(ctx, rbac.ChangeEvent{
		Kind:         rbac.AssignmentRemoved,
		EmployeeID:   current.EmployeeID,
		RoleID:       current.RoleID,
		AssignmentID: id,
	})
	return nil
}

// GetEmployeeAssignments returns every assignment of the employee regardless
// of validity, oldest first.
func (s *Store) GetEmployeeAssignments(ctx context.Context, employeeID string) ([]rbac.Assignment, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, rbac.WithField(rbac.ErrEmployeeIDEmpty, "employee_id", "")
	}
	out, err := s.ListAssignments(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []rbac.Assignment{}
	}
	return out, nil
}

// GetAssignment returns one assignment.
func (s *Store) GetAssignment(ctx context.Context, id string) (*rbac.Assignment, error) {
	var a *rbac.Assignment
	err := s.repo.Read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		a, err = tx.GetAssignment(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func lockAssignment(ctx context.Context, tx Tx, a *rbac.Assignment) error {
	if err := tx.LockEmployee(ctx, a.EmployeeID); err != nil {
		return err
	}
	return tx.LockRole(ctx, a.RoleID)
}

// checkAssignment validates scope compatibility and rejects overlapping grants.
func (s *Store) checkAssignment(ctx context.Context, tx Tx, role *rbac.Role, a *rbac.Assignment) error {
	if err := checkScope(ctx, s.dir, role, a.DepartmentScope, a.ProgramScope); err != nil {
		return err
	}
	existing, err := tx.ListAssignments(ctx, a.EmployeeID)
	if err != nil {
		return err
	}
	if other := findOverlap(existing, a); other != nil {
		return rbac.WithField(rbac.ErrAssignmentOverlap, "role_id", other.ID)
	}
	return nil
}
