package auth

import "boardsync-backend/internal/model"

// Pure role/permission derivation, shared by the HTTP surface and the
// socket surface so the two never disagree. No side effects.

// DeriveRole resolves a user's role on a board: the meeting host is HOST,
// users on the drawer allow-list are ADMIN, everyone else PARTICIPANT.
// A zero meetingHostID means the host is unknown (degraded meeting
// lookup) and nobody resolves to HOST.
func DeriveRole(meetingHostID int64, perms model.BoardPermissions, userID int64) model.Role {
	if meetingHostID != 0 && userID == meetingHostID {
		return model.RoleHost
	}
	if perms.IsAllowedDrawer(userID) {
		return model.RoleAdmin
	}
	return model.RoleParticipant
}

// CanDraw reports whether a role may draw under the board's permission
// flags. RestrictToHost dominates for participants regardless of
// PublicDrawing; hosts and admins are unaffected by it.
func CanDraw(role model.Role, perms model.BoardPermissions) bool {
	switch role {
	case model.RoleHost, model.RoleAdmin:
		return true
	default:
		return perms.PublicDrawing && !perms.RestrictToHost
	}
}

// CanClear reports whether a role may clear the canvas: drawing rights
// plus host or admin.
func CanClear(role model.Role, perms model.BoardPermissions) bool {
	if role != model.RoleHost && role != model.RoleAdmin {
		return false
	}
	return CanDraw(role, perms)
}
