// Package staff owns roles and role assignments: the mutations that keep
// their invariants and the state the permission engine resolves from.
package staff

import (
	"context"
	"fmt"
	"time"

	"github.com/valinor-ai/rolegate/internal/org"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// Store enforces role and assignment invariants over a Repository.
// Mutations touching the same employee or role are serialized; every
// successful mutation is reported to the notifier.
type Store struct {
	repo     Repository
	catalog  rbac.Catalog
	dir      org.Directory
	notifier rbac.Notifier
	now      func() time.Time
	locks    *keyedMutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNotifier sets the sink for change events.
func WithNotifier(n rbac.Notifier) StoreOption {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store. The catalog validates permission ids and the
// directory validates assignment scopes.
func NewStore(repo Repository, catalog rbac.Catalog, dir org.Directory, opts ...StoreOption) *Store {
	s := &Store{
		repo:    repo,
		catalog: catalog,
		dir:     dir,
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the backing repository.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) emit(ctx context.Context, event rbac.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	event.ActorID = rbac.ActorFromContext(ctx)
	if event.At.IsZero() {
		event.At = s.now()
	}
	s.notifier.Notify(ctx, event)
}

// ListAssignments returns every assignment of the employee. It satisfies
// rbac.StateReader.
func (s *Store) ListAssignments(ctx context.Context, employeeID string) ([]rbac.Assignment, error) {
	var out []rbac.Assignment
	err := s.repo.Read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListAssignments(ctx, employeeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	return out, nil
}

// GetRoles returns the roles with the given ids. Unknown ids are absent from
// the result. It satisfies rbac.StateReader.
func (s *Store) GetRoles(ctx context.Context, ids []string) (map[string]rbac.Role, error) {
	var out map[string]rbac.Role
	err := s.repo.Read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.GetRoles(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	return out, nil
}
