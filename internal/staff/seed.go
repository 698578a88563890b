package staff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// SeedSystemRoles inserts the catalog's system roles whose codes are not yet
// taken and returns how many were inserted. Existing roles are left as they are.
func (s *Store) SeedSystemRoles(ctx context.Context, catalog *rbac.MemoryCatalog) (int, error) {
	inserted := 0
	for _, def := range catalog.SystemRoles() {
		perms, err := catalog.ExpandCodes(def.Permissions)
		if err != nil {
			return inserted, fmt.Errorf("expanding permissions of %s: %w", def.Code, err)
		}
		scope, err := rbac.ParseApprovalScope(string(def.ApprovalScope))
		if err != nil {
			return inserted, fmt.Errorf("system role %s: %w", def.Code, err)
		}

		now := s.now()
		role := &rbac.Role{
			ID:            uuid.NewString(),
			Name:          def.Name,
			Code:          rbac.NormalizeCode(def.Code),
			Description:   def.Description,
			Level:         def.Level,
			ApprovalScope: scope,
			IsActive:      true,
			CanBeAssigned: true,
			IsSystem:      true,
			Permissions:   perms,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		created := false
		err = s.repo.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			existing, err := tx.FindRoleByCode(ctx, role.Code)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			created = true
			return tx.InsertRole(ctx, role)
		})
		if err != nil {
			return inserted, fmt.Errorf("seeding system role %s: %w", def.Code, err)
		}
		if !created {
			continue
		}

		inserted++
		slog.Info("system role seeded", "role_id", role.ID, "code", role.Code)
		s.emit(ctx, rbac.ChangeEvent{Kind: rbac.RoleCreated, RoleID: role.ID})
	}
	return inserted, nil
}
