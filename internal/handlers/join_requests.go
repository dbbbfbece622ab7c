package handlers

import (
	"time"

	"github.com/classhub/backend/internal/middleware"
	"github.com/classhub/backend/internal/models"
	"github.com/classhub/backend/internal/services"
	"github.com/classhub/backend/pkg/logger"
	"github.com/classhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type JoinRequestsHandler struct {
	DB       *gorm.DB
	Roles    *services.RoleService
	Notifier *services.Notifier
}

func NewJoinRequestsHandler(db *gorm.DB, roles *services.RoleService, notifier *services.Notifier) *JoinRequestsHandler {
	return &JoinRequestsHandler{DB: db, Roles: roles, Notifier: notifier}
}

func (h *JoinRequestsHandler) Create(c *fiber.Ctx) error {
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
	if grant.IsMember() {
		return utils.Error(c, fiber.StatusConflict, "already a member")
	}

	var pending int64
	if err := h.DB.Model(&models.JoinRequest{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, currentUser.ID, models.JoinRequestPending).
		Count(&pending).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing requests")
	}
	if pending > 0 {
		return utils.Error(c, fiber.StatusConflict, "join request already pending")
	}

	request := models.JoinRequest{
		UserID:  currentUser.ID,
		GroupID: groupID,
		Status:  models.JoinRequestPending,
	}
	if err := h.DB.Create(&request).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating join request")
	}

	h.Notifier.JoinRequested(currentUser.ID, &group)

	return utils.Success(c, fiber.StatusCreated, request)
}

func (h *JoinRequestsHandler) ListPending(c *fiber.Ctx) error {
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

	var requests []models.JoinRequest
	if err := h.DB.Preload("User").
		Where("group_id = ? AND status = ?", groupID, models.JoinRequestPending).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing join requests")
	}

	return utils.Success(c, fiber.StatusOK, requests)
}

type resolveJoinRequestBody struct {
	Approved bool `json:"approved"`
}

// Resolve transitions a pending request to approved or rejected. Approval
// creates the membership; a membership that already exists is not an error,
// the request is still marked resolved. Resolving an already-resolved
// request is a no-op.
func (h *JoinRequestsHandler) Resolve(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	var request models.JoinRequest
	if err := h.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "join request not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading join request")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", request.GroupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	grant, err := h.Roles.ResolveWithGroup(c.Context(), currentUser.ID, &group)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	if request.Status != models.JoinRequestPending {
		return utils.Success(c, fiber.StatusOK, request)
	}

	var body resolveJoinRequestBody
	if err := c.BodyParser(&body); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !body.Approved {
		if err := h.DB.Model(&models.JoinRequest{}).Where("id = ?", request.ID).
			Update("status", models.JoinRequestRejected).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating join request")
		}
		request.Status = models.JoinRequestRejected
		h.Notifier.JoinResolved(currentUser.ID, request.UserID, &group, false)
		return utils.Success(c, fiber.StatusOK, request)
	}

	membership := models.GroupMembership{
		UserID:   request.UserID,
		GroupID:  request.GroupID,
		Role:     models.GroupRoleStudent,
		JoinedAt: time.Now().UTC(),
	}
	if err := h.DB.Create(&membership).Error; err != nil {
		// Already a member: the unique index fired. Treat as success and
		// still resolve the request.
		logger.Info("join_request_member_exists", map[string]interface{}{
			"request_id": request.ID.String(),
			"group_id":   request.GroupID.String(),
			"user_id":    request.UserID.String(),
		})
	}

	if err := h.DB.Model(&models.JoinRequest{}).Where("id = ?", request.ID).
		Update("status", models.JoinRequestApproved).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating join request")
	}
	request.Status = models.JoinRequestApproved

	h.Notifier.JoinResolved(currentUser.ID, request.UserID, &group, true)

	return utils.Success(c, fiber.StatusOK, request)
}
