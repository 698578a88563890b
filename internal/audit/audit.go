package audit

import (
	"context"

	"github.com/valinor-ai/rolegate/internal/auth"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

// Event represents a single auditable action in the system.
type Event struct {
	ActorID      string // "" for system events
	Action       string // e.g. "role.created", "assignment.removed", "access.denied"
	ResourceType string // "role", "assignment", "route"
	ResourceID   string
	Metadata     map[string]any
	Source       string // "api", "system", "broadcast"
}

const (
	ActionRoleCreated    = string(rbac.RoleCreated)
	ActionRoleUpdated    = string(rbac.RoleUpdated)
	ActionRoleDeleted    = string(rbac.RoleDeleted)
	ActionRoleDuplicated = string(rbac.RoleDuplicated)

	ActionAssignmentCreated    = string(rbac.AssignmentCreated)
	ActionAssignmentUpdated    = string(rbac.AssignmentUpdated)
	ActionAssignmentRemoved    = string(rbac.AssignmentRemoved)
	ActionAssignmentPrimarySet = string(rbac.AssignmentPrimarySet)

	ActionAccessDenied = "access.denied"
)

const (
	ResourceRole       = "role"
	ResourceAssignment = "assignment"
	ResourceRoute      = "route"
)

const (
	MetadataEmployeeID = "employee_id"
	MetadataRoleID     = "role_id"
	MetadataRequired   = "required"
	MetadataState      = "state"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext returns the signed-in employee, or "" for system calls.
func ActorIDFromContext(ctx context.Context) string {
	if id := rbac.ActorFromContext(ctx); id != "" {
		return id
	}
	if identity := auth.GetIdentity(ctx); identity != nil {
		return identity.EmployeeID
	}
	return ""
}

// ChangeNotifier records store change events in the audit trail.
type ChangeNotifier struct {
	logger Logger
}

// NewChangeNotifier wraps logger as an rbac.Notifier.
func NewChangeNotifier(logger Logger) *ChangeNotifier {
	return &ChangeNotifier{logger: logger}
}

// Notify implements rbac.Notifier. Events replayed from other instances are
// skipped; their origin already audited them.
func (n *ChangeNotifier) Notify(ctx context.Context, change rbac.ChangeEvent) {
	if change.Origin != "" {
		return
	}
	n.logger.Log(ctx, FromChange(change))
}

// FromChange maps a store change event to an audit event.
func FromChange(change rbac.ChangeEvent) Event {
	e := Event{
		ActorID:  change.ActorID,
		Action:   string(change.Kind),
		Metadata: map[string]any{},
		Source:   "api",
	}
	if change.ActorID == "" {
		e.Source = "system"
	}

	if change.Kind.IsRoleChange() {
		e.ResourceType = ResourceRole
		e.ResourceID = change.RoleID
	} else {
		e.ResourceType = ResourceAssignment
		e.ResourceID = change.AssignmentID
		if change.RoleID != "" {
			e.Metadata[MetadataRoleID] = change.RoleID
		}
	}
	if change.EmployeeID != "" {
		e.Metadata[MetadataEmployeeID] = change.EmployeeID
	}
	if len(e.Metadata) == 0 {
		e.Metadata = nil
	}
	return e
}

// GuardLogger adapts a Logger to rbac.AuditLogger for guard denials.
type GuardLogger struct {
	logger Logger
}

func NewGuardLogger(logger Logger) *GuardLogger {
	return &GuardLogger{logger: logger}
}

func (g *GuardLogger) Log(ctx context.Context, e rbac.AuditEvent) {
	g.logger.Log(ctx, Event{
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     e.Metadata,
		Source:       e.Source,
	})
}
