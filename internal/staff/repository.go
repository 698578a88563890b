package staff

import (
	"context"

	"github.com/valinor-ai/rolegate/internal/rbac"
)

// Tx is the set of primitives a Store composes into one atomic unit. Reads
// return copies; writes take effect only if the enclosing unit succeeds.
type Tx interface {
	// LockEmployee and LockRole serialize units touching the same entity
	// across processes sharing the backend. Callers lock employees before roles.
	LockEmployee(ctx context.Context, employeeID string) error
	LockRole(ctx context.Context, roleID string) error

	GetRole(ctx context.Context, id string) (*rbac.Role, error)
	FindRoleByCode(ctx context.Context, code string) (*rbac.Role, error)
	GetRoles(ctx context.Context, ids []string) (map[string]rbac.Role, error)
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	InsertRole(ctx context.Context, role *rbac.Role) error
	UpdateRole(ctx context.Context, role *rbac.Role) error
	DeleteRole(ctx context.Context, id string) error

	GetAssignment(ctx context.Context, id string) (*rbac.Assignment, error)
	ListAssignments(ctx context.Context, employeeID string) ([]rbac.Assignment, error)
	CountActiveAssignments(ctx context.Context, roleID string) (int, error)
	InsertAssignment(ctx context.Context, a *rbac.Assignment) error
	UpdateAssignment(ctx context.Context, a *rbac.Assignment) error
	DeleteAssignment(ctx context.Context, id string) error
	DeleteInactiveAssignments(ctx context.Context, roleID string) (int, error)
	// ClearPrimary unsets isPrimary on every assignment of employeeID except exceptID.
	ClearPrimary(ctx context.Context, employeeID, exceptID string) error
}

// Repository runs units of work against role and assignment state.
type Repository interface {
	// Atomic runs fn so that either all of its writes become visible at once
	// or none do.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Read runs fn against a consistent view for lookups only.
	Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
