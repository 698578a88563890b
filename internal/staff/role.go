package staff

import (
	"regexp"
	"strings"

	"github.com/valinor-ai/rolegate/internal/rbac"
)

const (
	MinRoleLevel = 0
	MaxRoleLevel = 99

	maxNameLength = 255
)

var roleCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// RoleInput carries the fields of a new role. Permissions are permission ids.
type RoleInput struct {
	Name          string
	Code          string
	Description   string
	Level         int
	ApprovalScope rbac.ApprovalScope
	IsActive      bool
	CanBeAssigned bool
	Permissions   []string
}

// RoleUpdate carries the fields to change on a role. Nil fields are left as-is.
type RoleUpdate struct {
	Name          *string
	Code          *string
	Description   *string
	Level         *int
	ApprovalScope *rbac.ApprovalScope
	IsActive      *bool
	CanBeAssigned *bool
	Permissions   *[]string
}

// RoleFilter narrows ListRoles.
type RoleFilter struct {
	Search         string
	ActiveOnly     bool
	AssignableOnly bool
	IncludeSystem  *bool
}

func (f RoleFilter) match(role *rbac.Role) bool {
	if f.ActiveOnly && !role.IsActive {
		return false
	}
	if f.AssignableOnly && !role.CanBeAssigned {
		return false
	}
	if f.IncludeSystem != nil && !*f.IncludeSystem && role.IsSystem {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(role.Name), q) && !strings.Contains(strings.ToLower(role.Code), q) {
			return false
		}
	}
	return true
}

func validateRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", rbac.WithField(rbac.ErrRoleNameEmpty, "name", "")
	}
	return name, nil
}

func validateRoleCode(code string) (string, error) {
	code = rbac.NormalizeCode(code)
	if code == "" {
		return "", rbac.WithField(rbac.ErrRoleCodeEmpty, "code", "")
	}
	if len(code) > 64 || !roleCodePattern.MatchString(code) {
		return "", rbac.WithField(rbac.ErrRoleCodeInvalid, "code", code)
	}
	return code, nil
}

func validateRoleLevel(level int) error {
	if level < MinRoleLevel || level > MaxRoleLevel {
		return rbac.WithField(rbac.ErrRoleLevelInvalid, "level", "")
	}
	return nil
}

func validateApprovalScope(scope rbac.ApprovalScope) (rbac.ApprovalScope, error) {
	return rbac.ParseApprovalScope(string(scope))
}

// validatePermissions checks every id against the catalog and returns the
// normalized set.
func validatePermissions(catalog rbac.Catalog, ids []string) ([]string, error) {
	for _, id := range ids {
		if _, ok := catalog.PermissionByID(id); !ok {
			return nil, rbac.WithField(rbac.ErrPermissionNotFound, "permissions", id)
		}
	}
	return rbac.NormalizePermissionIDs(ids), nil
}
