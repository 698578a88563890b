package staff

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// CreateRole validates in and inserts a new, non-system role.
func (s *Store) CreateRole(ctx context.Context, in RoleInput) (*rbac.Role, error) {
	name, err := validateRoleName(in.Name)
	if err != nil {
		return nil, err
	}
	code, err := validateRoleCode(in.Code)
	if err != nil {
		return nil, err
	}
	if err := validateRoleLevel(in.Level); err != nil {
		return nil, err
	}
	scope, err := validateApprovalScope(in.ApprovalScope)
	if err != nil {
		return nil, err
	}
	perms, err := validatePermissions(s.catalog, in.Permissions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	role := &rbac.Role{
		ID:            uuid.NewString(),
		Name:          name,
		Code:          code,
		Description:   in.Description,
		Level:         in.Level,
		ApprovalScope: scope,
		IsActive:      in.IsActive,
		CanBeAssigned: in.CanBeAssigned,
		Permissions:   perms,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		return s.insertRole(ctx, tx, role)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("role created", "role_id", role.ID, "code", role.Code)
	s.emit(ctx, rbac.ChangeEvent{Kind: rbac.RoleCreated, RoleID: role.ID})
	return role, nil
}

func (s *Store) insertRole(ctx context.Context, tx Tx, role *rbac.Role) error {
	existing, err := tx.FindRoleByCode(ctx, role.Code)
	if err != nil {
		return err
	}
	if existing != nil {
		return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
	}
	return tx.InsertRole(ctx, role)
}

// UpdateRole applies upd to a non-system role. System roles fail with
// rbac.ErrRoleIsSystem before any field is validated.
func (s *Store) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*rbac.Role, error) {
	unlock := s.locks.lock(roleKey(id))
	defer unlock()

	var updated *rbac.Role
	err := s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockRole(ctx, id); err != nil {
			return err
		}
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return rbac.WithField(rbac.ErrRoleIsSystem, "", id)
		}

		if err := s.applyRoleUpdate(role, upd); err != nil {
			return err
		}
		if upd.Code != nil {
			existing, err := tx.FindRoleByCode(ctx, role.Code)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != role.ID {
				return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
			}
		}
		role.UpdatedAt = s.now()
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		updated = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("role updated", "role_id", id)
	s.emit(ctx, rbac.ChangeEvent{Kind: rbac.RoleUpdated, RoleID: id})
	return updated, nil
}

func (s *Store) applyRoleUpdate(role *rbac.Role, upd RoleUpdate) error {
	if upd.Name != nil {
		name, err := validateRoleName(*upd.Name)
		if err != nil {
			return err
		}
		role.Name = name
	}
	if upd.Code != nil {
		code, err := validateRoleCode(*upd.Code)
		if err != nil {
			return err
		}
		role.Code = code
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Level != nil {
		if err := validateRoleLevel(*upd.Level); err != nil {
			return err
		}
		role.Level = *upd.Level
	}
	if upd.ApprovalScope != nil {
		scope, err := validateApprovalScope(*upd.ApprovalScope)
		if err != nil {
			return err
		}
		role.ApprovalScope = scope
	}
	if upd.IsActive != nil {
		role.IsActive = *upd.IsActive
	}
	if upd.CanBeAssigned != nil {
		role.CanBeAssigned = *upd.CanBeAssigned
	}
	if upd.Permissions != nil {
		perms, err := validatePermissions(s.catalog, *upd.Permissions)
		if err != nil {
			return err
		}
		role.Permissions = perms
	}
	return nil
}

// DeleteRole removes a non-system role with no active assignments, along
// with its inactive assignments. System roles fail with rbac.ErrRoleIsSystem
// regardless of their assignments.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	unlock := s.locks.lock(roleKey(id))
	defer unlock()

	var removed int
	err := s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockRole(ctx, id); err != nil {
			return err
		}
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return rbac.WithField(rbac.ErrRoleIsSystem, "", id)
		}
		active, err := tx.CountActiveAssignments(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return rbac.WithField(rbac.ErrRoleHasEmployees, "", id)
		}
		if removed, err = tx.DeleteInactiveAssignments(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRole(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.Debug("role deleted", "role_id", id, "inactive_assignments_removed", removed)
	s.emit(ctx, rbac.ChangeEvent{Kind: rbac.RoleDeleted, RoleID: id})
	return nil
}

// DuplicateRole copies the description, level, approval scope and
// permissions of sourceID into a new active, assignable, non-system role.
func (s *Store) DuplicateRole(ctx context.Context, sourceID, name, code string) (*rbac.Role, error) {
	name, err := validateRoleName(name)
	if err != nil {
		return nil, err
	}
	code, err = validateRoleCode(code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roleKey(sourceID))
	defer unlock()

	var dup *rbac.Role
	err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockRole(ctx, sourceID); err != nil {
			return err
		}
		src, err := tx.GetRole(ctx, sourceID)
		if err != nil {
			return err
		}

		now := s.now()
		dup = &rbac.Role{
			ID:            uuid.NewString(),
			Name:          name,
			Code:          code,
			Description:   src.Description,
			Level:         src.Level,
			ApprovalScope: src.ApprovalScope,
			IsActive:      true,
			CanBeAssigned: true,
			IsSystem:      false,
			Permissions:   append([]string(nil), src.Permissions...),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.insertRole(ctx, tx, dup)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("role duplicated", "role_id", dup.ID, "source_role_id", sourceID)
	s.emit(ctx, rbac.ChangeEvent{Kind: rbac.RoleDuplicated, RoleID: dup.ID})
	return dup, nil
}

// GetRole returns a role with its current employee count.
func (s *Store) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	var role *rbac.Role
	err := s.repo.Read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		role, err = tx.GetRole(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns role summaries ordered by level then name.
func (s *Store) ListRoles(ctx context.Context, filter RoleFilter) ([]rbac.RoleSummary, error) {
	var roles []rbac.Role
	err := s.repo.Read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		roles, err = tx.ListRoles(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]rbac.RoleSummary, 0, len(roles))
	for i := range roles {
		if filter.match(&roles[i]) {
			out = append(out, roles[i].Summary())
		}
	}
	return out, nil
}
