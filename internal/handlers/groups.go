package handlers

import (
	"strings"
	"time"

	"github.com/classhub/backend/internal/middleware"
	"github.com/classhub/backend/internal/models"
	"github.com/classhub/backend/internal/services"
	"github.com/classhub/backend/pkg/logger"
	"github.com/classhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GroupsHandler struct {
	DB       *gorm.DB
	Roles    *services.RoleService
	Notifier *services.Notifier
}

func NewGroupsHandler(db *gorm.DB, roles *services.RoleService, notifier *services.Notifier) *GroupsHandler {
	return &GroupsHandler{DB: db, Roles: roles, Notifier: notifier}
}

type createGroupRequest struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	Institute     *string `json:"institute"`
	Department    *string `json:"department"`
	AdminOnlyChat bool    `json:"adminOnlyChat"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	group := models.Group{
		Name:          req.Name,
		Description:   req.Description,
		Institute:     req.Institute,
		Department:    req.Department,
		AdminOnlyChat: req.AdminOnlyChat,
		OwnerID:       currentUser.ID,
	}

	// Ownership is mirrored into a top_admin membership row in the same
	// transaction so member listings never need a second lookup path.
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:   currentUser.ID,
			GroupID:  group.ID,
			Role:     models.GroupRoleTopAdmin,
			JoinedAt: time.Now().UTC(),
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	memberOf := h.DB.Model(&models.GroupMembership{}).
		Select("group_id").
		Where("user_id = ?", currentUser.ID)

	var groups []models.Group
	if err := h.DB.
		Where("owner_id = ? OR id IN (?)", currentUser.ID, memberOf).
		Order("created_at DESC").
		Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsMember() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	var group models.Group
	if err := h.DB.Preload("Owner").Preload("Memberships.User").First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

type updateGroupRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Institute     *string `json:"institute"`
	Department    *string `json:"department"`
	AdminOnlyChat *bool   `json:"adminOnlyChat"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Institute != nil {
		updates["institute"] = strings.TrimSpace(*req.Institute)
	}
	if req.Department != nil {
		updates["department"] = strings.TrimSpace(*req.Department)
	}
	if req.AdminOnlyChat != nil {
		updates["admin_only_chat"] = *req.AdminOnlyChat
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsTopAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "only the top admin can delete the group")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Model(&models.Task{}).Select("id").Where("group_id = ?", groupID)
		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("task_id IN (?)", taskIDs)

		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.Score{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN (?) OR submission_id IN (?)", taskIDs, submissionIDs).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.JoinRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting group")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

func (h *GroupsHandler) ListMembers(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsMember() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	var memberships []models.GroupMembership
	if err := h.DB.Preload("User").Where("group_id = ?", groupID).Order("joined_at ASC").Find(&memberships).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing members")
	}

	return utils.Success(c, fiber.StatusOK, memberships)
}

type addMemberRequest struct {
	Email string `json:"email"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	grant, err := h.Roles.ResolveWithGroup(c.Context(), currentUser.ID, &group)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if user.ID == group.OwnerID {
		return utils.Error(c, fiber.StatusConflict, "user is the group owner")
	}

	membership := models.GroupMembership{
		UserID:   user.ID,
		GroupID:  groupID,
		Role:     models.GroupRoleStudent,
		JoinedAt: time.Now().UTC(),
	}

	if err := h.DB.Create(&membership).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "user is already a member")
	}

	h.Notifier.MemberAdded(currentUser.ID, user.ID, &group)

	return utils.Success(c, fiber.StatusCreated, membership)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	grant, err := h.Roles.ResolveWithGroup(c.Context(), currentUser.ID, &group)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}

	// The group owner is immune to membership operations no matter who asks.
	if userID == group.OwnerID {
		return utils.Error(c, fiber.StatusForbidden, "cannot remove group owner")
	}

	var target models.GroupMembership
	if err := h.DB.First(&target, "group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}

	if !services.CanRemoveMember(grant, target.Role) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	if err := h.DB.Delete(&models.GroupMembership{}, "id = ?", target.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing member")
	}

	h.Notifier.MemberRemoved(currentUser.ID, userID, &group)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type updateMemberRoleRequest struct {
	Role models.GroupRole `json:"role"`
}

func (h *GroupsHandler) UpdateMemberRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	grant, err := h.Roles.ResolveWithGroup(c.Context(), currentUser.ID, &group)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}

	// Role changes are top-admin-only; admins are rejected before the target
	// is even inspected.
	if !services.CanChangeMemberRole(grant) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	if userID == group.OwnerID {
		return utils.Error(c, fiber.StatusForbidden, "cannot change owner role")
	}

	var target models.GroupMembership
	if err := h.DB.First(&target, "group_id = ? AND user_id = ?", groupID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}

	var req updateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !isValidGroupRole(string(req.Role)) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	if err := h.DB.Model(&models.GroupMembership{}).Where("id = ?", target.ID).Update("role", req.Role).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating member role")
	}

	target.Role = req.Role
	return utils.Success(c, fiber.StatusOK, target)
}
