package services

import (
	"context"

	"github.com/classhub/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Grant is the resolved role of a user within a group. Every mutator must
// obtain a Grant before writing; the policy functions below only accept
// decisions through one.
type Grant struct {
	UserID  uuid.UUID
	GroupID uuid.UUID
	Role    models.GroupRole
}

func (g Grant) IsTopAdmin() bool {
	return g.Role == models.GroupRoleTopAdmin
}

// IsAdmin reports admin-or-above authorization.
func (g Grant) IsAdmin() bool {
	return g.Role == models.GroupRoleAdmin || g.Role == models.GroupRoleTopAdmin
}

func (g Grant) IsMember() bool {
	return g.Role != models.GroupRoleNone
}

type RoleService struct {
	DB *gorm.DB
}

func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{DB: db}
}

// Resolve determines the effective role of userID in groupID. The group's
// OwnerID is the authoritative signal and always resolves to top_admin;
// otherwise the membership row decides; absence of both is GroupRoleNone.
// Returns gorm.ErrRecordNotFound when the group itself does not exist.
func (r *RoleService) Resolve(ctx context.Context, userID, groupID uuid.UUID) (Grant, error) {
	var group models.Group
	if err := r.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		return Grant{}, err
	}

	return r.resolveWithGroup(ctx, userID, &group)
}

// ResolveWithGroup avoids a second group lookup when the caller already
// loaded the group record.
func (r *RoleService) ResolveWithGroup(ctx context.Context, userID uuid.UUID, group *models.Group) (Grant, error) {
	return r.resolveWithGroup(ctx, userID, group)
}

func (r *RoleService) resolveWithGroup(ctx context.Context, userID uuid.UUID, group *models.Group) (Grant, error) {
	grant := Grant{UserID: userID, GroupID: group.ID, Role: models.GroupRoleNone}

	if group.OwnerID == userID {
		grant.Role = models.GroupRoleTopAdmin
		return grant, nil
	}

	var membership models.GroupMembership
	err := r.DB.WithContext(ctx).First(&membership, "group_id = ? AND user_id = ?", group.ID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return grant, nil
		}
		return Grant{}, err
	}

	grant.Role = membership.Role
	return grant, nil
}

// CanChangeMemberRole: role changes are restricted to the top admin. Admins
// are rejected outright, even when the target is a plain student. Removal is
// deliberately more permissive, see CanRemoveMember.
func CanChangeMemberRole(actor Grant) bool {
	return actor.IsTopAdmin()
}

// CanRemoveMember applies the ranked removal rules: admin-or-above may remove
// students, only the top admin may remove admins or top_admin-level rows.
func CanRemoveMember(actor Grant, targetRole models.GroupRole) bool {
	switch targetRole {
	case models.GroupRoleStudent:
		return actor.IsAdmin()
	case models.GroupRoleAdmin, models.GroupRoleTopAdmin:
		return actor.IsTopAdmin()
	default:
		return false
	}
}

// CanManageTasks covers task create, update and delete.
func CanManageTasks(actor Grant) bool {
	return actor.IsAdmin()
}

// CanSubmit: any membership in the task's group, including plain student.
func CanSubmit(actor Grant) bool {
	return actor.IsMember()
}

// CanGrade covers scoring, resolved through the submission's group.
func CanGrade(actor Grant) bool {
	return actor.IsAdmin()
}

// CanViewPeerSubmissions: admins always see every submission; students see
// peers' work only when the task publishes submissions.
func CanViewPeerSubmissions(actor Grant, visibility models.SubmissionsVisibility) bool {
	if actor.IsAdmin() {
		return true
	}
	return visibility == models.SubmissionsPublic
}
