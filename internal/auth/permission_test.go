package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"boardsync-backend/internal/model"
)

func TestDeriveRole(t *testing.T) {
	perms := model.BoardPermissions{AllowedDrawers: []int64{7}}

	assert.Equal(t, model.RoleHost, DeriveRole(1, perms, 1))
	assert.Equal(t, model.RoleAdmin, DeriveRole(1, perms, 7))
	assert.Equal(t, model.RoleParticipant, DeriveRole(1, perms, 42))
}

func TestDeriveRoleUnknownHost(t *testing.T) {
	// Host id 0 means the meeting lookup degraded; nobody is HOST, but
	// the allow-list still promotes to ADMIN.
	perms := model.BoardPermissions{AllowedDrawers: []int64{7}}

	assert.Equal(t, model.RoleParticipant, DeriveRole(0, perms, 1))
	assert.Equal(t, model.RoleAdmin, DeriveRole(0, perms, 7))
}

func TestCanDrawHostAndAdminAlways(t *testing.T) {
	// Hosts and admins draw under every flag combination.
	for _, public := range []bool{true, false} {
		for _, restrict := range []bool{true, false} {
			perms := model.BoardPermissions{PublicDrawing: public, RestrictToHost: restrict}
			assert.True(t, CanDraw(model.RoleHost, perms))
			assert.True(t, CanDraw(model.RoleAdmin, perms))
		}
	}
}

func TestCanDrawParticipant(t *testing.T) {
	cases := []struct {
		name     string
		public   bool
		restrict bool
		want     bool
	}{
		{"public open", true, false, true},
		{"public but restricted", true, true, false},
		{"closed", false, false, false},
		{"closed and restricted", false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perms := model.BoardPermissions{PublicDrawing: tc.public, RestrictToHost: tc.restrict}
			assert.Equal(t, tc.want, CanDraw(model.RoleParticipant, perms))
		})
	}
}

func TestCanClear(t *testing.T) {
	perms := model.BoardPermissions{PublicDrawing: true}

	assert.True(t, CanClear(model.RoleHost, perms))
	assert.True(t, CanClear(model.RoleAdmin, perms))
	assert.False(t, CanClear(model.RoleParticipant, perms))
}
