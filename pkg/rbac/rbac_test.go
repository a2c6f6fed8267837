package rbac

import (
	"errors"
	"testing"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/stretchr/testify/assert"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		allowed []Role
		wantErr bool
	}{
		{"owner in owner set", RoleOwner, []Role{RoleOwner}, false},
		{"admin not in owner set", RoleAdmin, []Role{RoleOwner}, true},
		{"member in member set", RoleMember, []Role{RoleOwner, RoleAdmin, RoleMember}, false},
		{"empty allowed set", RoleOwner, nil, true},
		{"unknown role", Role("SUPERUSER"), []Role{RoleOwner, RoleAdmin}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.role, tt.allowed...)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errs.ErrForbidden))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	assert.NoError(t, RequireAdmin(RoleOwner))
	assert.NoError(t, RequireAdmin(RoleAdmin))
	assert.ErrorIs(t, RequireAdmin(RoleMember), errs.ErrForbidden)
}

func TestRequireOwner(t *testing.T) {
	assert.NoError(t, RequireOwner(RoleOwner))
	assert.ErrorIs(t, RequireOwner(RoleAdmin), errs.ErrForbidden)
	assert.ErrorIs(t, RequireOwner(RoleMember), errs.ErrForbidden)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleMember.Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, Role("owner").Valid())
}
