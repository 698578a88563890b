package rbac

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the stores wraps exactly one of these.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrReferential = errors.New("referenced entity not found")
	ErrImmutable   = errors.New("immutable resource")
	ErrDependency  = errors.New("blocked by dependents")
)

var (
	ErrRoleNameEmpty        = fmt.Errorf("%w: role name is required", ErrValidation)
	ErrRoleCodeEmpty        = fmt.Errorf("%w: role code is required", ErrValidation)
	ErrRoleCodeInvalid      = fmt.Errorf("%w: role code must be letters, digits or underscores", ErrValidation)
	ErrRoleLevelInvalid     = fmt.Errorf("%w: role level must be between 0 and 99", ErrValidation)
	ErrApprovalScopeInvalid = fmt.Errorf("%w: unknown approval scope", ErrValidation)
	ErrRoleNotAssignable    = fmt.Errorf("%w: role cannot be assigned", ErrValidation)
	ErrEmployeeIDEmpty      = fmt.Errorf("%w: employee id is required", ErrValidation)
	ErrValidityRange        = fmt.Errorf("%w: valid_from must not be after valid_until", ErrValidation)
	ErrScopeMismatch        = fmt.Errorf("%w: assignment scope does not match the role's approval scope", ErrValidation)

	ErrRoleCodeTaken     = fmt.Errorf("%w: role code already exists", ErrConflict)
	ErrAssignmentOverlap = fmt.Errorf("%w: employee already holds this role for an overlapping period", ErrConflict)

	ErrRoleNotFound       = fmt.Errorf("%w: role not found", ErrReferential)
	ErrAssignmentNotFound = fmt.Errorf("%w: assignment not found", ErrReferential)
	ErrPermissionNotFound = fmt.Errorf("%w: permission not found", ErrReferential)
	ErrDepartmentNotFound = fmt.Errorf("%w: department not found", ErrReferential)
	ErrProgramNotFound    = fmt.Errorf("%w: program not found", ErrReferential)

	ErrRoleIsSystem = fmt.Errorf("%w: system roles cannot be modified", ErrImmutable)

	ErrRoleHasEmployees = fmt.Errorf("%w: role is assigned to employees", ErrDependency)
)

// FieldError attaches the offending field and/or id to a taxonomy error so
// callers can render a precise message.
type FieldError struct {
	Err   error
	Field string
	ID    string
}

func (e *FieldError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.ID != "" {
		msg += " (id " + e.ID + ")"
	}
	return msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// WithField wraps err with field and id detail.
func WithField(err error, field, id string) error {
	return &FieldError{Err: err, Field: field, ID: id}
}

// KindOf returns the taxonomy kind of err, or "" for errors outside it.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrReferential):
		return "referential"
	case errors.Is(err, ErrImmutable):
		return "immutable"
	case errors.Is(err, ErrDependency):
		return "dependency"
	default:
		return ""
	}
}
