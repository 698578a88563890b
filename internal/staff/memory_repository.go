package staff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/valinor-ai/rolegate/internal/rbac"
)

// MemoryRepository keeps roles and assignments in process memory. Units of
// work run under one mutex and roll back by restoring a snapshot.
type MemoryRepository struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	roles       map[string]*rbac.Role
	assignments map[string]*rbac.Assignment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: memoryState{
		roles:       make(map[string]*rbac.Role),
		assignments: make(map[string]*rbac.Assignment),
	}}
}

func (r *MemoryRepository) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &r.state}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *MemoryRepository) Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(ctx, &memoryTx{state: &r.state, readOnly: true})
}

func (r *MemoryRepository) Ping(context.Context) error {
	return nil
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		roles:       make(map[string]*rbac.Role, len(s.roles)),
		assignments: make(map[string]*rbac.Assignment, len(s.assignments)),
	}
	for id, role := range s.roles {
		out.roles[id] = role.Clone()
	}
	for id, a := range s.assignments {
		out.assignments[id] = a.Clone()
	}
	return out
}

type memoryTx struct {
	state    *memoryState
	readOnly bool
}

var errReadOnly = fmt.Errorf("write attempted in read-only unit")

// Locks are no-ops: the repository mutex already serializes every unit.
func (t *memoryTx) LockEmployee(context.Context, string) error { return nil }
func (t *memoryTx) LockRole(context.Context, string) error     { return nil }

func (t *memoryTx) withCount(role *rbac.Role) rbac.Role {
	out := *role.Clone()
	out.EmployeeCount = t.activeCount(role.ID)
	return out
}

func (t *memoryTx) activeCount(roleID string) int {
	n := 0
	for _, a := range t.state.assignments {
		if a.RoleID == roleID && a.IsActive {
			n++
		}
	}
	return n
}

func (t *memoryTx) GetRole(_ context.Context, id string) (*rbac.Role, error) {
	role, ok := t.state.roles[id]
	if !ok {
		return nil, rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
	}
	out := t.withCount(role)
	return &out, nil
}

func (t *memoryTx) FindRoleByCode(_ context.Context, code string) (*rbac.Role, error) {
	code = rbac.NormalizeCode(code)
	for _, role := range t.state.roles {
		if role.Code == code {
			out := t.withCount(role)
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) GetRoles(_ context.Context, ids []string) (map[string]rbac.Role, error) {
	out := make(map[string]rbac.Role, len(ids))
	for _, id := range ids {
		if role, ok := t.state.roles[id]; ok {
			out[id] = t.withCount(role)
		}
	}
	return out, nil
}

func (t *memoryTx) ListRoles(context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(t.state.roles))
	for _, role := range t.state.roles {
		out = append(out, t.withCount(role))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (t *memoryTx) InsertRole(_ context.Context, role *rbac.Role) error {
	if t.readOnly {
		return errReadOnly
	}
	for _, existing := range t.state.roles {
		if existing.Code == role.Code {
			return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
		}
	}
	stored := role.Clone()
	stored.EmployeeCount = 0
	t.state.roles[role.ID] = stored
	return nil
}

func (t *memoryTx) UpdateRole(_ context.Context, role *rbac.Role) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.roles[role.ID]; !ok {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", role.ID)
	}
	for id, existing := range t.state.roles {
		if id != role.ID && existing.Code == role.Code {
			return rbac.WithField(rbac.ErrRoleCodeTaken, "code", role.Code)
		}
	}
	stored := role.Clone()
	stored.EmployeeCount = 0
	t.state.roles[role.ID] = stored
	return nil
}

func (t *memoryTx) DeleteRole(_ context.Context, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.roles[id]; !ok {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", id)
	}
	for _, a := range t.state.assignments {
		if a.RoleID == id {
			return rbac.WithField(rbac.ErrRoleHasEmployees, "role_id", id)
		}
	}
	delete(t.state.roles, id)
	return nil
}

func (t *memoryTx) GetAssignment(_ context.Context, id string) (*rbac.Assignment, error) {
	a, ok := t.state.assignments[id]
	if !ok {
		return nil, rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
	}
	return a.Clone(), nil
}

func (t *memoryTx) ListAssignments(_ context.Context, employeeID string) ([]rbac.Assignment, error) {
	var out []rbac.Assignment
	for _, a := range t.state.assignments {
		if a.EmployeeID == employeeID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memoryTx) CountActiveAssignments(_ context.Context, roleID string) (int, error) {
	return t.activeCount(roleID), nil
}

func (t *memoryTx) InsertAssignment(_ context.Context, a *rbac.Assignment) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.roles[a.RoleID]; !ok {
		return rbac.WithField(rbac.ErrRoleNotFound, "role_id", a.RoleID)
	}
	if err := t.checkPrimary(a); err != nil {
		return err
	}
	t.state.assignments[a.ID] = a.Clone()
	return nil
}

func (t *memoryTx) UpdateAssignment(_ context.Context, a *rbac.Assignment) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.assignments[a.ID]; !ok {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", a.ID)
	}
	if err := t.checkPrimary(a); err != nil {
		return err
	}
	t.state.assignments[a.ID] = a.Clone()
	return nil
}

// checkPrimary mirrors the partial unique index the Postgres schema keeps on
// primary assignments.
func (t *memoryTx) checkPrimary(a *rbac.Assignment) error {
	if !a.IsPrimary {
		return nil
	}
	for id, other := range t.state.assignments {
		if id != a.ID && other.EmployeeID == a.EmployeeID && other.IsPrimary {
			return fmt.Errorf("employee %s already has primary assignment %s", a.EmployeeID, id)
		}
	}
	return nil
}

func (t *memoryTx) DeleteAssignment(_ context.Context, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.assignments[id]; !ok {
		return rbac.WithField(rbac.ErrAssignmentNotFound, "assignment_id", id)
	}
	delete(t.state.assignments, id)
	return nil
}

func (t *memoryTx) DeleteInactiveAssignments(_ context.Context, roleID string) (int, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	n := 0
	for id, a := range t.state.assignments {
		if a.RoleID == roleID && !a.IsActive {
			delete(t.state.assignments, id)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ClearPrimary(_ context.Context, employeeID, exceptID string) error {
	if t.readOnly {
		return errReadOnly
	}
	now := time.Now().UTC()
	for id, a := range t.state.assignments {
		if id != exceptID && a.EmployeeID == employeeID && a.IsPrimary {
			a.IsPrimary = false
			a.UpdatedAt = now
		}
	}
	return nil
}
