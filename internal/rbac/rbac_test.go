package rbac_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/rbac"
)

func TestApprovalScope_Rank(t *testing.T) {
	ordered := []rbac.ApprovalScope{
		rbac.ApprovalNone,
		rbac.ApprovalProgram,
		rbac.ApprovalDepartment,
		rbac.ApprovalOrganization,
		rbac.ApprovalAll,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}
	assert.False(t, rbac.ApprovalScope("galaxy").Valid())
}

func TestParseApprovalScope(t *testing.T) {
	s, err := rbac.ParseApprovalScope(" Department ")
	require.NoError(t, err)
	assert.Equal(t, rbac.ApprovalDepartment, s)

	s, err = rbac.ParseApprovalScope("")
	require.NoError(t, err)
	assert.Equal(t, rbac.ApprovalNone, s)

	_, err = rbac.ParseApprovalScope("galaxy")
	assert.ErrorIs(t, err, rbac.ErrApprovalScopeInvalid)
	assert.Equal(t, "validation", rbac.KindOf(err))
}

func TestAssignment_Overlaps(t *testing.T) {
	a := makeAssignment("a", "emp", "r")
	b := makeAssignment("b", "emp", "r")
	assert.True(t, a.Overlaps(&b), "unbounded windows overlap")

	a.ValidUntil = ptr(testNow)
	b.ValidFrom = ptr(testNow.AddDate(0, 0, 1))
	assert.False(t, a.Overlaps(&b))
	assert.False(t, b.Overlaps(&a))

	b.ValidFrom = ptr(testNow)
	assert.True(t, a.Overlaps(&b), "sharing the boundary day overlaps")
}

func TestAssignment_SameScope(t *testing.T) {
	a := makeAssignment("a", "emp", "r")
	b := makeAssignment("b", "emp", "r")
	assert.True(t, a.SameScope(&b))

	a.DepartmentScope = ptr("d1")
	assert.False(t, a.SameScope(&b))
	b.DepartmentScope = ptr("d1")
	assert.True(t, a.SameScope(&b))
}

func TestAssignment_CloneIsDeep(t *testing.T) {
	a := makeAssignment("a", "emp", "r")
	a.DepartmentScope = ptr("d1")
	c := a.Clone()
	*c.DepartmentScope = "d2"
	assert.Equal(t, "d1", *a.DepartmentScope)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), ""},
		{rbac.ErrRoleNameEmpty, "validation"},
		{rbac.ErrRoleCodeTaken, "conflict"},
		{rbac.WithField(rbac.ErrRoleNotFound, "role_id", "r1"), "referential"},
		{fmt.Errorf("deleting: %w", rbac.ErrRoleIsSystem), "immutable"},
		{rbac.ErrRoleHasEmployees, "dependency"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rbac.KindOf(tt.err))
	}
}

func TestFieldError(t *testing.T) {
	err := rbac.WithField(rbac.ErrDepartmentNotFound, "department_scope", "dept-9")

	assert.ErrorIs(t, err, rbac.ErrReferential)
	assert.Contains(t, err.Error(), "department_scope")
	assert.Contains(t, err.Error(), "dept-9")

	var fe *rbac.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "department_scope", fe.Field)
}
