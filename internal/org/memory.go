package org

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valinor-ai/rolegate/internal/rbac"
)

// MemoryDirectory is an in-memory Store for tests and local runs.
type MemoryDirectory struct {
	mu          sync.RWMutex
	departments map[string]Department
	programs    map[string]Program
}

var _ Store = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		departments: make(map[string]Department),
		programs:    make(map[string]Program),
	}
}

func (d *MemoryDirectory) CreateDepartment(_ context.Context, id, name string) (*Department, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.departments[id]; ok {
		return nil, rbac.WithField(ErrDepartmentExists, "id", id)
	}
	dept := Department{ID: id, Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	d.departments[id] = dept
	return &dept, nil
}

func (d *MemoryDirectory) CreateProgram(_ context.Context, id, departmentID, name string) (*Program, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.departments[departmentID]; !ok {
		return nil, rbac.WithField(rbac.ErrDepartmentNotFound, "department_id", departmentID)
	}
	if _, ok := d.programs[id]; ok {
		return nil, rbac.WithField(ErrProgramExists, "id", id)
	}
	prog := Program{ID: id, DepartmentID: departmentID, Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	d.programs[id] = prog
	return &prog, nil
}

func (d *MemoryDirectory) Department(_ context.Context, id string) (*Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dept, ok := d.departments[id]
	if !ok {
		return nil, rbac.WithField(rbac.ErrDepartmentNotFound, "department_scope", id)
	}
	return &dept, nil
}

func (d *MemoryDirectory) Program(_ context.Context, id string) (*Program, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prog, ok := d.programs[id]
	if !ok {
		return nil, rbac.WithField(rbac.ErrProgramNotFound, "program_scope", id)
	}
	return &prog, nil
}

// ListDepartments returns all departments ordered by name.
func (d *MemoryDirectory) ListDepartments(_ context.Context) ([]Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Department, 0, len(d.departments))
	for _, dept := range d.departments {
		out = append(out, dept)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListPrograms returns the programs of one department ordered by name.
func (d *MemoryDirectory) ListPrograms(_ context.Context, departmentID string) ([]Program, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []Program{}
	for _, prog := range d.programs {
		if prog.DepartmentID == departmentID {
			out = append(out, prog)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
