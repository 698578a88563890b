package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/valinor-ai/rolegate/internal/platform/database"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// PostgresRepository stores roles and assignments in Postgres. Units of work
// are read-committed transactions; per-entity locks are transaction-scoped
// advisory and row locks.
type PostgresRepository struct {
	pool *database.Pool
}

func NewPostgresRepository(pool *database.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, q database.Querier) error {
		return fn(ctx, &pgTx{q: q})
	})
}

func (r *PostgresRepository) Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, &pgTx{q: r.pool})
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type pgTx struct {
	q database.Querier
}

const roleColumns = `r.id, r.name, r.code, r.description, r.level, r.approval_scope,
	r.is_active, r.can_be_assigned, r.is_system, r.permissions, r.created_at, r.updated_at,
	(SELECT count(*) FROM role_assignments a WHERE a.role_id = r.id AND a.is_active)`

const assignmentColumns = `id, employee_id, role_id, department_scope, program_scope,
	is_primary, is_active, valid_from, valid_until, notes, created_at, updated_at`

// isUUID reports whether id can match a uuid key column. Other ids would make
// Postgres fail with invalid_text_representation, so callers treat them as
// not found.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanRole(row pgx.Row) (*rbac.Role, error) {
	var role rbac.Role
	var scope string
	err := row.Scan(&role.ID, &role.Name, &role.Code, &role.Description, &role.Level, &scope,
		&role.IsActive, &role.CanBeAssigned, &role.IsSystem, &role.Permissions,
		&role.CreatedAt, &role.UpdatedAt, &role.EmployeeCount)
	if err != nil {
		return nil, err
	}
	role.ApprovalScope = rbac.ApprovalScope(scope)
	role.Permissions = rbac.NormalizePermissionIDs(role.Permissions)
	return &role, nil
}

func scanAssignment(row pgx.Row) (*rbac.Assignment, error) {
	var a rbac.Assignment
	err := row.Scan(&a.ID, &a.EmployeeID, &a.RoleID, &a.DepartmentScope, &a.ProgramScope,
		&a.IsPrimary, &a.IsActive, &a.ValidFrom, &a.ValidUntil, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) LockEmployee(ctx context.Context, employeeID string) error {
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('employee:' || $1, 0))`, employeeID)
	if err != nil {
		return fmt.Errorf("locking employee: %w", err)
	}
	return nil
}

func (t *pgTx) LockRole(ctx context.Context, roleID string) error {
	if !isUUID(roleID) {
		return nil
	}
	_, err := t.q.Exec(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID)
	if err != nil {
		return fmt.Errorf("locking role: %w", err)
	}
	return nil
}

func (t *pgTx) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	if !isUUID(id) {
		return nil, rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
	}
	role, err := scanRole(t.q.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
		}
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return role, nil
}

func (t *pgTx) FindRoleByCode(ctx context.Context, code string) (*rbac.Role, error) {
	role, err := scanRole(t.q.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.code = $1`, rbac.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding role by code: %w", err)
	}
	return role, nil
}

func (t *pgTx) GetRoles(ctx context.Context, ids []string) (map[string]rbac.Role, error) {
	out := make(map[string]rbac.Role, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT `+roleColumns+` FROM roles r WHERE r.id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("getting roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		out[role.ID] = *role
	}
	return out, rows.Err()
}

func (t *pgTx) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+roleColumns+` FROM roles r ORDER BY r.level, r.name`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

func (t *pgTx) InsertRole(ctx context.Context, role *rbac.Role) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO roles (id, name, code, description, level, approval_scope,
			is_active, can_be_assigned, is_system, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		role.ID, role.Name, role.Code, role.Description, role.Level, string(role.ApprovalScope),
		role.IsActive, role.CanBeAssigned, role.IsSystem, role.Permissions, role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "roles_code_key") {
			return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRole(ctx context.Context, role *rbac.Role) error {
	if !isUUID(role.ID) {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", role.ID)
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE roles SET name = $2, code = $3, description = $4, level = $5, approval_scope = $6,
			is_active = $7, can_be_assigned = $8, permissions = $9, updated_at = $10
		 WHERE id = $1`,
		role.ID, role.Name, role.Code, role.Description, role.Level, string(role.ApprovalScope),
		role.IsActive, role.CanBeAssigned, role.Permissions, role.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "roles_code_key") {
			return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
		}
		return fmt.Errorf("updating role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", role.ID)
	}
	return nil
}

func (t *pgTx) DeleteRole(ctx context.Context, id string) error {
	if !isUUID(id) {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err, "") {
			return rbac.WithField(rbac.ErrRoleHasEmployees, "role_id", id)
		}
		return fmt.Errorf("deleting role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
	}
	return nil
}

func (t *pgTx) GetAssignment(ctx context.Context, id string) (*rbac.Assignment, error) {
	if !isUUID(id) {
		return nil, rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
	}
	a, err := scanAssignment(t.q.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
		}
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return a, nil
}

func (t *pgTx) ListAssignments(ctx context.Context, employeeID string) ([]rbac.Assignment, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments
		 WHERE employee_id = $1
		 ORDER BY created_at, id`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var assignments []rbac.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (t *pgTx) CountActiveAssignments(ctx context.Context, roleID string) (int, error) {
	if !isUUID(roleID) {
		return 0, nil
	}
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT count(*) FROM role_assignments WHERE role_id = $1 AND is_active`, roleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting assignments: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertAssignment(ctx context.Context, a *rbac.Assignment) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO role_assignments (id, employee_id, role_id, department_scope, program_scope,
			is_primary, is_active, valid_from, valid_until, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.EmployeeID, a.RoleID, a.DepartmentScope, a.ProgramScope,
		a.IsPrimary, a.IsActive, a.ValidFrom, a.ValidUntil, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return assignmentWriteError(err, a, "creating assignment")
	}
	return nil
}

func (t *pgTx) UpdateAssignment(ctx context.Context, a *rbac.Assignment) error {
	if !isUUID(a.ID) {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", a.ID)
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE role_assignments SET department_scope = $2, program_scope = $3, is_primary = $4,
			is_active = $5, valid_from = $6, valid_until = $7, notes = $8, updated_at = $9
		 WHERE id = $1`,
		a.ID, a.DepartmentScope, a.ProgramScope, a.IsPrimary,
		a.IsActive, a.ValidFrom, a.ValidUntil, a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return assignmentWriteError(err, a, "updating assignment")
	}
	if tag.RowsAffected() == 0 {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", a.ID)
	}
	return nil
}

func assignmentWriteError(err error, a *rbac.Assignment, action string) error {
	switch {
	case database.IsForeignKeyViolation(err, "role_assignments_role_id_fkey"):
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", a.RoleID)
	case database.IsForeignKeyViolation(err, "role_assignments_department_scope_fkey"):
		return rbac.WithField(rbac.ErrDepartmentNotFound, "department_scope", deref(a.DepartmentScope))
	case database.IsForeignKeyViolation(err, "role_assignments_program_scope_fkey"):
		return rbac.WithField(rbac.ErrProgramNotFound, "program_scope", deref(a.ProgramScope))
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func (t *pgTx) DeleteAssignment(ctx context.Context, id string) error {
	if !isUUID(id) {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
	}
	return nil
}

func (t *pgTx) DeleteInactiveAssignments(ctx context.Context, roleID string) (int, error) {
	if !isUUID(roleID) {
		return 0, nil
	}
	tag, err := t.q.Exec(ctx,
		`DELETE FROM role_assignments WHERE role_id = $1 AND NOT is_active`, roleID)
	if err != nil {
		return 0, fmt.Errorf("deleting inactive assignments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) ClearPrimary(ctx context.Context, employeeID, exceptID string) error {
	_, err := t.q.Exec(ctx,
		`UPDATE role_assignments SET is_primary = false, updated_at = now()
		 WHERE employee_id = $1 AND is_primary AND id::text <> $2`,
		employeeID, exceptID,
	)
	if err != nil {
		return fmt.Errorf("clearing primary: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
