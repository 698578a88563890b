package rbac

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const keySep = "\x00"

// ViewCache memoizes effective views per employee and scope. Entries never
// expire on a timer: they are dropped by change events, and an entry is only
// served for instants its view still covers.
type ViewCache struct {
	entries *lru.Cache[string, *EffectiveView]
	epoch   atomic.Uint64
}

// NewViewCache creates a cache holding at most size views.
func NewViewCache(size int) (*ViewCache, error) {
	if size <= 0 {
		size = 4096
	}
	entries, err := lru.New[string, *EffectiveView](size)
	if err != nil {
		return nil, err
	}
	return &ViewCache{entries: entries}, nil
}

// Epoch returns a token that Put uses to reject views computed before a
// concurrent invalidation.
func (c *ViewCache) Epoch() uint64 {
	return c.epoch.Load()
}

// Get returns a cached view valid at now.
func (c *ViewCache) Get(employeeID string, scope *ScopeContext, now time.Time) (*EffectiveView, bool) {
	view, ok := c.entries.Get(cacheKey(employeeID, scope))
	if !ok || !view.CoversInstant(now) {
		return nil, false
	}
	out := *view
	out.At = now
	return &out, true
}

// Put stores view unless an invalidation happened since epoch was read.
func (c *ViewCache) Put(epoch uint64, view *EffectiveView) bool {
	if c.epoch.Load() != epoch {
		return false
	}
	c.entries.Add(cacheKey(view.EmployeeID, view.Scope), view)
	// An invalidation may have raced the Add; drop the entry if so.
	if c.epoch.Load() != epoch {
		c.entries.Remove(cacheKey(view.EmployeeID, view.Scope))
		return false
	}
	return true
}

// InvalidateEmployee drops every cached view of one employee.
func (c *ViewCache) InvalidateEmployee(employeeID string) {
	c.epoch.Add(1)
	prefix := employeeID + keySep
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// InvalidateAll drops every cached view.
func (c *ViewCache) InvalidateAll() {
	c.epoch.Add(1)
	c.entries.Purge()
}

// Len returns the number of cached views.
func (c *ViewCache) Len() int {
	return c.entries.Len()
}

// Notify invalidates the views a change event can affect. New roles have no
// holders yet, so creating or duplicating one leaves the cache intact.
func (c *ViewCache) Notify(_ context.Context, event ChangeEvent) {
	switch {
	case event.Kind == RoleCreated || event.Kind == RoleDuplicated:
	case event.Kind.IsRoleChange():
		c.InvalidateAll()
	case event.EmployeeID != "":
		c.InvalidateEmployee(event.EmployeeID)
	default:
		c.InvalidateAll()
	}
}

func cacheKey(employeeID string, scope *ScopeContext) string {
	if scope == nil {
		return employeeID + keySep + "*"
	}
	return employeeID + keySep + "d=" + scope.DepartmentID + keySep + "p=" + scope.ProgramID
}
