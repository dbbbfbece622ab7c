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

type TasksHandler struct {
	DB       *gorm.DB
	Roles    *services.RoleService
	Notifier *services.Notifier
}

func NewTasksHandler(db *gorm.DB, roles *services.RoleService, notifier *services.Notifier) *TasksHandler {
	return &TasksHandler{DB: db, Roles: roles, Notifier: notifier}
}

type createTaskRequest struct {
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Deadline              *time.Time `json:"deadline"`
	MaxScore              *float64   `json:"maxScore"`
	SubmissionsVisibility string     `json:"submissionsVisibility"`
}

func (h *TasksHandler) Create(c *fiber.Ctx) error {
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
	if !services.CanManageTasks(grant) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	maxScore := float64(models.DefaultMaxScore)
	if req.MaxScore != nil {
		if *req.MaxScore <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "maxScore must be positive")
		}
		maxScore = *req.MaxScore
	}

	visibility := models.SubmissionsPrivate
	if req.SubmissionsVisibility != "" {
		if !isValidVisibility(req.SubmissionsVisibility) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid submissions visibility")
		}
		visibility = models.SubmissionsVisibility(strings.ToLower(strings.TrimSpace(req.SubmissionsVisibility)))
	}

	task := models.Task{
		GroupID:               groupID,
		Title:                 req.Title,
		Description:           req.Description,
		Deadline:              req.Deadline,
		MaxScore:              maxScore,
		SubmissionsVisibility: visibility,
		CreatorID:             currentUser.ID,
	}

	if err := h.DB.Create(&task).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating task")
	}

	logger.InfoWithUser(currentUser.ID.String(), "task_created", map[string]interface{}{
		"task_id":  task.ID.String(),
		"group_id": groupID.String(),
		"title":    task.Title,
	})

	h.Notifier.TaskCreated(currentUser.ID, &task, &group)

	return utils.Success(c, fiber.StatusCreated, task)
}

func (h *TasksHandler) ListForGroup(c *fiber.Ctx) error {
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

	var tasks []models.Task
	if err := h.DB.Preload("Attachments").
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing tasks")
	}

	return utils.Success(c, fiber.StatusOK, tasks)
}

func (h *TasksHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	taskID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid task id")
	}

	var task models.Task
	if err := h.DB.Preload("Attachments").Preload("Creator").First(&task, "id = ?", taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "task not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading task")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, task.GroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !grant.IsMember() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	return utils.Success(c, fiber.StatusOK, task)
}

type updateTaskRequest struct {
	Title                 *string    `json:"title"`
	Description           *string    `json:"description"`
	Deadline              *time.Time `json:"deadline"`
	MaxScore              *float64   `json:"maxScore"`
	SubmissionsVisibility *string    `json:"submissionsVisibility"`
}

func (h *TasksHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	taskID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid task id")
	}

	var task models.Task
	if err := h.DB.First(&task, "id = ?", taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "task not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading task")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, task.GroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !services.CanManageTasks(grant) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req updateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Deadline != nil {
		updates["deadline"] = *req.Deadline
	}
	if req.MaxScore != nil {
		if *req.MaxScore <= 0 {
			return utils.Error(c, fiber.StatusBadRequest, "maxScore must be positive")
		}
		updates["max_score"] = *req.MaxScore
	}
	if req.SubmissionsVisibility != nil {
		if !isValidVisibility(*req.SubmissionsVisibility) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid submissions visibility")
		}
		updates["submissions_visibility"] = strings.ToLower(strings.TrimSpace(*req.SubmissionsVisibility))
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating task")
	}

	var updated models.Task
	if err := h.DB.Preload("Attachments").First(&updated, "id = ?", taskID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated task")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete removes a task together with its submissions and scores. The three
// deletes share one transaction so a task is never left pointing at orphaned
// work.
func (h *TasksHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	taskID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid task id")
	}

	var task models.Task
	if err := h.DB.First(&task, "id = ?", taskID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "task not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading task")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, task.GroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !services.CanManageTasks(grant) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&models.Submission{}).Select("id").Where("task_id = ?", taskID)

		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&models.Score{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ? OR submission_id IN (?)", taskID, submissionIDs).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&models.Submission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, "id = ?", taskID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting task")
	}

	logger.InfoWithUser(currentUser.ID.String(), "task_deleted", map[string]interface{}{
		"task_id":  taskID.String(),
		"group_id": task.GroupID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "task deleted"})
}
