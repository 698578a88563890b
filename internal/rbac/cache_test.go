package rbac_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

func cachedView(employeeID string, scope *rbac.ScopeContext) *rbac.EffectiveView {
	return &rbac.EffectiveView{
		EmployeeID:  employeeID,
		At:          testNow,
		Scope:       scope,
		Permissions: []string{"leave_request"},
		StableFrom:  rbac.DayOf(testNow),
	}
}

func newCache(t *testing.T) *rbac.ViewCache {
	t.Helper()
	cache, err := rbac.NewViewCache(16)
	require.NoError(t, err)
	return cache
}

func TestViewCache_PutGet(t *testing.T) {
	cache := newCache(t)
	scope := &rbac.ScopeContext{DepartmentID: "dept-1"}

	require.True(t, cache.Put(cache.Epoch(), cachedView("emp-1", scope)))

	got, ok := cache.Get("emp-1", scope, testNow.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, testNow.Add(time.Hour), got.At)
	assert.True(t, got.Has("leave_request"))

	_, ok = cache.Get("emp-1", nil, testNow)
	assert.False(t, ok, "unscoped lookups use their own entry")
	_, ok = cache.Get("emp-1", &rbac.ScopeContext{DepartmentID: "dept-2"}, testNow)
	assert.False(t, ok)
}

func TestViewCache_ServesOnlyCoveredInstants(t *testing.T) {
	cache := newCache(t)
	view := cachedView("emp-1", nil)
	view.StableUntil = rbac.DayOf(testNow).AddDate(0, 0, 1)
	require.True(t, cache.Put(cache.Epoch(), view))

	_, ok := cache.Get("emp-1", nil, testNow)
	assert.True(t, ok)
	_, ok = cache.Get("emp-1", nil, view.StableUntil)
	assert.False(t, ok)
	_, ok = cache.Get("emp-1", nil, testNow.AddDate(0, 0, -1))
	assert.False(t, ok)
}

func TestViewCache_StalePutRejected(t *testing.T) {
	cache := newCache(t)
	epoch := cache.Epoch()

	cache.InvalidateEmployee("emp-1")

	assert.False(t, cache.Put(epoch, cachedView("emp-1", nil)))
	assert.Equal(t, 0, cache.Len())
}

func TestViewCache_InvalidateEmployee(t *testing.T) {
	cache := newCache(t)
	require.True(t, cache.Put(cache.Epoch(), cachedView("emp-1", nil)))
	require.True(t, cache.Put(cache.Epoch(), cachedView("emp-1", &rbac.ScopeContext{ProgramID: "p"})))
	require.True(t, cache.Put(cache.Epoch(), cachedView("emp-10", nil)))

	cache.InvalidateEmployee("emp-1")

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("emp-10", nil, testNow)
	assert.True(t, ok)
}

func TestViewCache_Notify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		event    rbac.ChangeEvent
		wantLeft int
	}{
		{"role created keeps entries", rbac.ChangeEvent{Kind: rbac.RoleCreated, RoleID: "r"}, 2},
		{"role duplicated keeps entries", rbac.ChangeEvent{Kind: rbac.RoleDuplicated, RoleID: "r"}, 2},
		{"role updated purges", rbac.ChangeEvent{Kind: rbac.RoleUpdated, RoleID: "r"}, 0},
		{"role deleted purges", rbac.ChangeEvent{Kind: rbac.RoleDeleted, RoleID: "r"}, 0},
		{"assignment drops employee", rbac.ChangeEvent{Kind: rbac.AssignmentCreated, EmployeeID: "emp-1"}, 1},
		{"primary set drops employee", rbac.ChangeEvent{Kind: rbac.AssignmentPrimarySet, EmployeeID: "emp-2"}, 1},
		{"assignment without employee purges", rbac.ChangeEvent{Kind: rbac.AssignmentRemoved}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newCache(t)
			require.True(t, cache.Put(cache.Epoch(), cachedView("emp-1", nil)))
			require.True(t, cache.Put(cache.Epoch(), cachedView("emp-2", nil)))

			cache.Notify(ctx, tt.event)

			assert.Equal(t, tt.wantLeft, cache.Len())
		})
	}
}
