package rbac_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *rbac.MemoryCatalog {
	t.Helper()
	catalog, err := rbac.LoadCatalog("")
	require.NoError(t, err)
	return catalog
}

func makeRole(id, name string, level int, scope rbac.ApprovalScope, codes ...string) rbac.Role {
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		ids = append(ids, rbac.PermissionID(code))
	}
	return rbac.Role{
		ID:            id,
		Name:          name,
		Code:          rbac.NormalizeCode(id),
		Level:         level,
		ApprovalScope: scope,
		IsActive:      true,
		CanBeAssigned: true,
		Permissions:   rbac.NormalizePermissionIDs(ids),
	}
}

func makeAssignment(id, employeeID, roleID string) rbac.Assignment {
	return rbac.Assignment{ID: id, EmployeeID: employeeID, RoleID: roleID, IsActive: true}
}

func roleMap(roles ...rbac.Role) map[string]rbac.Role {
	m := make(map[string]rbac.Role, len(roles))
	for _, r := range roles {
		m[r.ID] = r
	}
	return m
}

func ptr[T any](v T) *T { return &v }

func TestResolve_TwoRoleScenario(t *testing.T) {
	catalog := testCatalog(t)
	roleA := makeRole("role-a", "Program Lead", 2, rbac.ApprovalProgram, "leave_approve_program")
	roleB := makeRole("role-b", "Staff", 4, rbac.ApprovalNone, "leave_request")

	view := rbac.Resolve(rbac.ResolveInput{
		EmployeeID: "emp-1",
		Now:        testNow,
		Roles:      roleMap(roleA, roleB),
		Assignments: []rbac.Assignment{
			makeAssignment("as-1", "emp-1", "role-a"),
			makeAssignment("as-2", "emp-1", "role-b"),
		},
		Catalog: catalog,
	})

	assert.Equal(t, []string{"leave_approve_program", "leave_request"}, view.Permissions)
	assert.True(t, view.CanApprove)
	assert.Equal(t, rbac.ApprovalProgram, view.ApprovalScope)
	require.NotNil(t, view.PrimaryRole)
	assert.Equal(t, "role-a", view.PrimaryRole.ID)
	assert.Equal(t, "as-1", view.PrimaryAssignmentID)
	assert.Equal(t, []string{"as-1", "as-2"}, view.AssignmentIDs)
}

func TestResolve_NoAssignments(t *testing.T) {
	view := rbac.Resolve(rbac.ResolveInput{EmployeeID: "emp-1", Now: testNow, Catalog: testCatalog(t)})

	assert.Empty(t, view.Permissions)
	assert.False(t, view.CanApprove)
	assert.Equal(t, rbac.ApprovalNone, view.ApprovalScope)
	assert.Nil(t, view.PrimaryRole)
	assert.True(t, view.StableUntil.IsZero())
}

func TestResolve_ValidityBoundary(t *testing.T) {
	catalog := testCatalog(t)
	role := makeRole("role-a", "Staff", 4, rbac.ApprovalNone, "leave_request")

	tests := []struct {
		name     string
		from     *time.Time
		until    *time.Time
		included bool
	}{
		{"until yesterday", nil, ptr(testNow.AddDate(0, 0, -1)), false},
		{"until now", nil, ptr(testNow), true},
		{"until earlier today", nil, ptr(testNow.Add(-6 * time.Hour)), true},
		{"from now", ptr(testNow), nil, true},
		{"from later today", ptr(testNow.Add(6 * time.Hour)), nil, true},
		{"from tomorrow", ptr(testNow.AddDate(0, 0, 1)), nil, false},
		{"window around now", ptr(testNow.AddDate(0, 0, -3)), ptr(testNow.AddDate(0, 0, 3)), true},
		{"unbounded", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeAssignment("as-1", "emp-1", "role-a")
			a.ValidFrom = tt.from
			a.ValidUntil = tt.until

			view := rbac.Resolve(rbac.ResolveInput{
				EmployeeID:  "emp-1",
				Now:         testNow,
				Roles:       roleMap(role),
				Assignments: []rbac.Assignment{a},
				Catalog:     catalog,
			})
			assert.Equal(t, tt.included, view.Has("leave_request"))
		})
	}
}

func TestResolve_InactiveAndMissingRolesGrantNothing(t *testing.T) {
	catalog := testCatalog(t)
	inactive := makeRole("role-off", "Off", 1, rbac.ApprovalAll, "audit_view")
	inactive.IsActive = false
	live := makeRole("role-on", "On", 4, rbac.ApprovalNone, "leave_request")

	revoked := makeAssignment("as-3", "emp-1", "role-on")
	revoked.IsActive = false

	view := rbac.Resolve(rbac.ResolveInput{
		EmployeeID: "emp-1",
		Now:        testNow,
		Roles:      roleMap(inactive, live),
		Assignments: []rbac.Assignment{
			makeAssignment("as-1", "emp-1", "role-off"),
			makeAssignment("as-2", "emp-1", "role-missing"),
			revoked,
			makeAssignment("as-4", "emp-2", "role-on"),
		},
		Catalog: catalog,
	})

	assert.Empty(t, view.Permissions)
	assert.False(t, view.CanApprove)
	assert.Nil(t, view.PrimaryRole)
	assert.Empty(t, view.AssignmentIDs)
}

func TestResolve_ScopeFiltering(t *testing.T) {
	catalog := testCatalog(t)
	global := makeRole("role-g", "Global", 4, rbac.ApprovalNone, "leave_request")
	dept := makeRole("role-d", "Dept", 2, rbac.ApprovalDepartment, "leave_approve_department")
	prog := makeRole("role-p", "Prog", 3, rbac.ApprovalProgram, "leave_approve_program")

	deptAssignment := makeAssignment("as-d", "emp-1", "role-d")
	deptAssignment.DepartmentScope = ptr("dept-1")
	progAssignment := makeAssignment("as-p", "emp-1", "role-p")
	progAssignment.ProgramScope = ptr("prog-1")

	in := rbac.ResolveInput{
		EmployeeID:  "emp-1",
		Now:         testNow,
		Roles:       roleMap(global, dept, prog),
		Assignments: []rbac.Assignment{makeAssignment("as-g", "emp-1", "role-g"), deptAssignment, progAssignment},
		Catalog:     catalog,
	}

	tests := []struct {
		name  string
		scope *rbac.ScopeContext
		want  []string
	}{
		{"unscoped", nil, []string{"leave_approve_department", "leave_approve_program", "leave_request"}},
		{"matching department", &rbac.ScopeContext{DepartmentID: "dept-1"}, []string{"leave_approve_department", "leave_request"}},
		{"other department", &rbac.ScopeContext{DepartmentID: "dept-2"}, []string{"leave_request"}},
		{"matching program", &rbac.ScopeContext{ProgramID: "prog-1"}, []string{"leave_approve_program", "leave_request"}},
		{"both match", &rbac.ScopeContext{DepartmentID: "dept-1", ProgramID: "prog-1"}, []string{"leave_approve_department", "leave_approve_program", "leave_request"}},
		{"empty context", &rbac.ScopeContext{}, []string{"leave_request"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := in
			in.Scope = tt.scope
			view := rbac.Resolve(in)
			assert.Equal(t, tt.want, view.Permissions)
		})
	}
}

func TestResolve_ApprovalScopeIsMaxRank(t *testing.T) {
	catalog := testCatalog(t)
	view := rbac.Resolve(rbac.ResolveInput{
		EmployeeID: "emp-1",
		Now:        testNow,
		Roles: roleMap(
			makeRole("r1", "A", 3, rbac.ApprovalProgram),
			makeRole("r2", "B", 2, rbac.ApprovalOrganization),
			makeRole("r3", "C", 1, rbac.ApprovalDepartment),
		),
		Assignments: []rbac.Assignment{
			makeAssignment("as-1", "emp-1", "r1"),
			makeAssignment("as-2", "emp-1", "r2"),
			makeAssignment("as-3", "emp-1", "r3"),
		},
		Catalog: catalog,
	})

	assert.True(t, view.CanApprove)
	assert.Equal(t, rbac.ApprovalOrganization, view.ApprovalScope)
}

func TestResolve_PrimarySelection(t *testing.T) {
	catalog := testCatalog(t)
	high := makeRole("r-high", "Zeta", 1, rbac.ApprovalNone)
	low := makeRole("r-low", "Alpha", 5, rbac.ApprovalNone)
	tieA := makeRole("r-tie-a", "Beta", 3, rbac.ApprovalNone)
	tieB := makeRole("r-tie-b", "Alpha", 3, rbac.ApprovalNone)

	t.Run("flag wins over level", func(t *testing.T) {
		flagged := makeAssignment("as-low", "emp-1", "r-low")
		flagged.IsPrimary = true
		view := rbac.Resolve(rbac.ResolveInput{
			EmployeeID:  "emp-1",
			Now:         testNow,
			Roles:       roleMap(high, low),
			Assignments: []rbac.Assignment{makeAssignment("as-high", "emp-1", "r-high"), flagged},
			Catalog:     catalog,
		})
		require.NotNil(t, view.PrimaryRole)
		assert.Equal(t, "r-low", view.PrimaryRole.ID)
	})

	t.Run("lowest level without flag", func(t *testing.T) {
		view := rbac.Resolve(rbac.ResolveInput{
			EmployeeID:  "emp-1",
			Now:         testNow,
			Roles:       roleMap(high, low),
			Assignments: []rbac.Assignment{makeAssignment("as-low", "emp-1", "r-low"), makeAssignment("as-high", "emp-1", "r-high")},
			Catalog:     catalog,
		})
		require.NotNil(t, view.PrimaryRole)
		assert.Equal(t, "r-high", view.PrimaryRole.ID)
	})

	t.Run("level tie broken by name", func(t *testing.T) {
		view := rbac.Resolve(rbac.ResolveInput{
			EmployeeID:  "emp-1",
			Now:         testNow,
			Roles:       roleMap(tieA, tieB),
			Assignments: []rbac.Assignment{makeAssignment("as-a", "emp-1", "r-tie-a"), makeAssignment("as-b", "emp-1", "r-tie-b")},
			Catalog:     catalog,
		})
		require.NotNil(t, view.PrimaryRole)
		assert.Equal(t, "Alpha", view.PrimaryRole.Name)
	})

	t.Run("expired primary falls back", func(t *testing.T) {
		flagged := makeAssignment("as-low", "emp-1", "r-low")
		flagged.IsPrimary = true
		flagged.ValidUntil = ptr(testNow.AddDate(0, 0, -2))
		view := rbac.Resolve(rbac.ResolveInput{
			EmployeeID:  "emp-1",
			Now:         testNow,
			Roles:       roleMap(high, low),
			Assignments: []rbac.Assignment{flagged, makeAssignment("as-high", "emp-1", "r-high")},
			Catalog:     catalog,
		})
		require.NotNil(t, view.PrimaryRole)
		assert.Equal(t, "r-high", view.PrimaryRole.ID)
	})
}

func TestResolve_MonotonicInAssignments(t *testing.T) {
	catalog := testCatalog(t)
	codes := []string{"dashboard_view", "report_view", "leave_request", "leave_view_team", "employee_view", "audit_view"}

	var roles []rbac.Role
	for i, code := range codes {
		roles = append(roles, makeRole(fmt.Sprintf("role-%d", i), fmt.Sprintf("Role %d", i), i, rbac.ApprovalNone, code, codes[(i+1)%len(codes)]))
	}
	roles[2].ApprovalScope = rbac.ApprovalDepartment
	all := roleMap(roles...)

	scopes := []*rbac.ScopeContext{nil, {DepartmentID: "dept-1"}}
	for _, scope := range scopes {
		var assignments []rbac.Assignment
		prev := rbac.Resolve(rbac.ResolveInput{EmployeeID: "emp-1", Now: testNow, Roles: all, Catalog: catalog, Scope: scope})
		for i, role := range roles {
			a := makeAssignment(fmt.Sprintf("as-%d", i), "emp-1", role.ID)
			if i%2 == 1 {
				a.DepartmentScope = ptr("dept-1")
			}
			assignments = append(assignments, a)

			next := rbac.Resolve(rbac.ResolveInput{
				EmployeeID:  "emp-1",
				Now:         testNow,
				Roles:       all,
				Assignments: assignments,
				Catalog:     catalog,
				Scope:       scope,
			})
			for _, code := range prev.Permissions {
				assert.True(t, next.Has(code), "lost %s after adding %s (scope %s)", code, a.ID, scope)
			}
			assert.GreaterOrEqual(t, next.ApprovalScope.Rank(), prev.ApprovalScope.Rank())
			prev = next
		}
	}
}

func TestResolve_StabilityWindow(t *testing.T) {
	catalog := testCatalog(t)
	role := makeRole("role-a", "Staff", 4, rbac.ApprovalNone, "leave_request")
	tomorrow := rbac.DayOf(testNow).AddDate(0, 0, 1)

	t.Run("ends after validUntil day", func(t *testing.T) {
		a := makeAssignment("as-1", "emp-1", "role-a")
		a.ValidUntil = ptr(testNow)
		view := rbac.Resolve(rbac.ResolveInput{EmployeeID: "emp-1", Now: testNow, Roles: roleMap(role), Assignments: []rbac.Assignment{a}, Catalog: catalog})

		assert.Equal(t, rbac.DayOf(testNow), view.StableFrom)
		assert.Equal(t, tomorrow, view.StableUntil)
		assert.True(t, view.CoversInstant(testNow.Add(11*time.Hour)))
		assert.False(t, view.CoversInstant(tomorrow))
		assert.False(t, view.CoversInstant(testNow.AddDate(0, 0, -1)))
	})

	t.Run("ends at future validFrom", func(t *testing.T) {
		a := makeAssignment("as-1", "emp-1", "role-a")
		a.ValidFrom = ptr(testNow.AddDate(0, 0, 5))
		view := rbac.Resolve(rbac.ResolveInput{EmployeeID: "emp-1", Now: testNow, Roles: roleMap(role), Assignments: []rbac.Assignment{a}, Catalog: catalog})

		assert.False(t, view.Has("leave_request"))
		assert.Equal(t, rbac.DayOf(testNow).AddDate(0, 0, 5), view.StableUntil)
	})

	t.Run("expired assignments do not bound", func(t *testing.T) {
		a := makeAssignment("as-1", "emp-1", "role-a")
		a.ValidUntil = ptr(testNow.AddDate(0, 0, -5))
		view := rbac.Resolve(rbac.ResolveInput{EmployeeID: "emp-1", Now: testNow, Roles: roleMap(role), Assignments: []rbac.Assignment{a}, Catalog: catalog})

		assert.True(t, view.StableUntil.IsZero())
		assert.True(t, view.CoversInstant(testNow.AddDate(1, 0, 0)))
	})
}

func TestEffectiveView_HasOnNil(t *testing.T) {
	var view *rbac.EffectiveView
	assert.False(t, view.Has("leave_request"))
	assert.False(t, view.HasAny("leave_request", "audit_view"))
}
