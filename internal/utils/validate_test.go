package util

import (
	"context"
	"errors"
	"testing"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceRoleTag(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		role  model.Role
		valid bool
	}{
		{model.RoleAdmin, true},
		{model.RoleMember, true},
		{"admin", false},
		{"OWNER", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			err := ValidateCtx(context.Background(), v, spaces.SetMemberRoleRequest{Role: tt.role})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegisterSpaceRoleTwice(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterSpaceRole(v))
	assert.NoError(t, RegisterSpaceRole(v))
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = ValidateCtx(context.Background(), v, spaces.ReorderNotesRequest{})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "orderedIds", verrs[0].Field())
}
