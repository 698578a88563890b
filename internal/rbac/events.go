package rbac

import (
	"context"
	"strings"
	"time"
)

// ChangeKind names a successful store mutation.
type ChangeKind string

const (
	RoleCreated          ChangeKind = "role.created"
	RoleUpdated          ChangeKind = "role.updated"
	RoleDeleted          ChangeKind = "role.deleted"
	RoleDuplicated       ChangeKind = "role.duplicated"
	AssignmentCreated    ChangeKind = "assignment.created"
	AssignmentUpdated    ChangeKind = "assignment.updated"
	AssignmentRemoved    ChangeKind = "assignment.removed"
	AssignmentPrimarySet ChangeKind = "assignment.primary_set"
)

// IsRoleChange reports whether the event concerns role metadata.
func (k ChangeKind) IsRoleChange() bool {
	return strings.HasPrefix(string(k), "role.")
}

// ChangeEvent is emitted after every successful Role or Assignment mutation.
type ChangeEvent struct {
	Kind         ChangeKind `json:"kind"`
	RoleID       string     `json:"role_id,omitempty"`
	EmployeeID   string     `json:"employee_id,omitempty"`
	AssignmentID string     `json:"assignment_id,omitempty"`
	ActorID      string     `json:"actor_id,omitempty"`
	Origin       string     `json:"origin,omitempty"`
	At           time.Time  `json:"at"`
}

// Notifier receives change events. Implementations must not block the caller
// for long and must not fail the originating mutation.
type Notifier interface {
	Notify(ctx context.Context, event ChangeEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event ChangeEvent)

func (f NotifierFunc) Notify(ctx context.Context, event ChangeEvent) {
	f(ctx, event)
}

// Notifiers fans an event out to every non-nil notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, event ChangeEvent) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

type actorContextKey struct{}

// WithActor records the id of the employee performing a mutation.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext returns the actor recorded by WithActor, or "".
func ActorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorContextKey{}).(string)
	return id
}
