// Package org holds the organizational units role assignments can be
// narrowed to: departments and the programs they own.
package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valinor-ai/rolegate/internal/rbac"
)

const maxIDLength = 64

var (
	ErrNameEmpty = fmt.Errorf("%w: name is required", rbac.ErrValidation)
	ErrIDInvalid = fmt.Errorf("%w: id must be 1 to %d characters without spaces", rbac.ErrValidation, maxIDLength)

	ErrDepartmentExists = fmt.Errorf("%w: department already exists", rbac.ErrConflict)
	ErrProgramExists    = fmt.Errorf("%w: program already exists", rbac.ErrConflict)
)

// Department is a top-level organizational unit.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Program is an organizational unit owned by one department.
type Program struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Directory looks organizational units up by id. Missing units are reported
// with rbac.ErrDepartmentNotFound or rbac.ErrProgramNotFound.
type Directory interface {
	Department(ctx context.Context, id string) (*Department, error)
	Program(ctx context.Context, id string) (*Program, error)
}

// Store is a Directory that can also list and provision units.
type Store interface {
	Directory
	ListDepartments(ctx context.Context) ([]Department, error)
	ListPrograms(ctx context.Context, departmentID string) ([]Program, error)
	CreateDepartment(ctx context.Context, id, name string) (*Department, error)
	CreateProgram(ctx context.Context, id, departmentID, name string) (*Program, error)
}

// ValidateName checks that a unit name is non-empty and within length limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return rbac.WithField(ErrNameEmpty, "name", "")
	}
	if len(trimmed) > 255 {
		return rbac.WithField(fmt.Errorf("%w: must not exceed 255 characters", ErrNameEmpty), "name", "")
	}
	return nil
}

// ValidateID checks a unit id. Ids are chosen by the caller, usually an
// upstream HR system key.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength || strings.ContainsAny(id, " \t\r\n/") {
		return rbac.WithField(ErrIDInvalid, "id", id)
	}
	return nil
}

// DepartmentSeed describes a department and its programs to provision.
type DepartmentSeed struct {
	ID       string
	Name     string
	Programs []ProgramSeed
}

type ProgramSeed struct {
	ID   string
	Name string
}

// Seed provisions the given units, skipping any that already exist. It
// returns the number of units created.
func Seed(ctx context.Context, store Store, seeds []DepartmentSeed) (int, error) {
	created := 0
	for _, d := range seeds {
		_, err := store.CreateDepartment(ctx, d.ID, d.Name)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDepartmentExists):
		default:
			return created, fmt.Errorf("seeding department %s: %w", d.ID, err)
		}

		for _, p := range d.Programs {
			_, err := store.CreateProgram(ctx, p.ID, d.ID, p.Name)
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrProgramExists):
			default:
				return created, fmt.Errorf("seeding program %s: %w", p.ID, err)
			}
		}
	}
	return created, nil
}
