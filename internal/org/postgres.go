package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/valinor-ai/rolegate/internal/platform/database"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// PostgresDirectory stores departments and programs in Postgres.
type PostgresDirectory struct {
	q database.Querier
}

var _ Store = (*PostgresDirectory)(nil)

// NewPostgresDirectory creates a directory over q, usually the pool.
func NewPostgresDirectory(q database.Querier) *PostgresDirectory {
	return &PostgresDirectory{q: q}
}

// Department retrieves a department by ID.
func (d *PostgresDirectory) Department(ctx context.Context, id string) (*Department, error) {
	var dept Department
	err := d.q.QueryRow(ctx,
		`SELECT id, name, created_at FROM departments WHERE id = $1`,
		id,
	).Scan(&dept.ID, &dept.Name, &dept.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.WithField(rbac.ErrDepartmentNotFound, "department_scope", id)
		}
		return nil, fmt.Errorf("getting department: %w", err)
	}
	return &dept, nil
}

// Program retrieves a program by ID.
func (d *PostgresDirectory) Program(ctx context.Context, id string) (*Program, error) {
	var prog Program
	err := d.q.QueryRow(ctx,
		`SELECT id, department_id, name, created_at FROM programs WHERE id = $1`,
		id,
	).Scan(&prog.ID, &prog.DepartmentID, &prog.Name, &prog.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.WithField(rbac.ErrProgramNotFound, "program_scope", id)
		}
		return nil, fmt.Errorf("getting program: %w", err)
	}
	return &prog, nil
}

// ListDepartments returns all departments ordered by name.
func (d *PostgresDirectory) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := d.q.Query(ctx, `SELECT id, name, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	departments := []Department{}
	for rows.Next() {
		var dept Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		departments = append(departments, dept)
	}
	return departments, rows.Err()
}

// ListPrograms returns the programs of one department ordered by name.
func (d *PostgresDirectory) ListPrograms(ctx context.Context, departmentID string) ([]Program, error) {
	rows, err := d.q.Query(ctx,
		`SELECT id, department_id, name, created_at
		 FROM programs WHERE department_id = $1 ORDER BY name`,
		departmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	programs := []Program{}
	for rows.Next() {
		var prog Program
		if err := rows.Scan(&prog.ID, &prog.DepartmentID, &prog.Name, &prog.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		programs = append(programs, prog)
	}
	return programs, rows.Err()
}

// CreateDepartment inserts a department.
func (d *PostgresDirectory) CreateDepartment(ctx context.Context, id, name string) (*Department, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var dept Department
	err := d.q.QueryRow(ctx,
		`INSERT INTO departments (id, name) VALUES ($1, $2)
		 RETURNING id, name, created_at`,
		id, strings.TrimSpace(name),
	).Scan(&dept.ID, &dept.Name, &dept.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "departments_pkey") {
			return nil, rbac.WithField(ErrDepartmentExists, "id", id)
		}
		return nil, fmt.Errorf("creating department: %w", err)
	}
	return &dept, nil
}

// CreateProgram inserts a program under an existing department.
func (d *PostgresDirectory) CreateProgram(ctx context.Context, id, departmentID, name string) (*Program, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var prog Program
	err := d.q.QueryRow(ctx,
		`INSERT INTO programs (id, department_id, name) VALUES ($1, $2, $3)
		 RETURNING id, department_id, name, created_at`,
		id, departmentID, strings.TrimSpace(name),
	).Scan(&prog.ID, &prog.DepartmentID, &prog.Name, &prog.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "programs_pkey") {
			return nil, rbac.WithField(ErrProgramExists, "id", id)
		}
		if database.IsForeignKeyViolation(err, "") {
			return nil, rbac.WithField(rbac.ErrDepartmentNotFound, "department_id", departmentID)
		}
		return nil, fmt.Errorf("creating program: %w", err)
	}
	return &prog, nil
}
