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
	"gorm.io/gorm/clause"
)

type SubmissionsHandler struct {
	DB       *gorm.DB
	Roles    *services.RoleService
	Notifier *services.Notifier
}

func NewSubmissionsHandler(db *gorm.DB, roles *services.RoleService, notifier *services.Notifier) *SubmissionsHandler {
	return &SubmissionsHandler{DB: db, Roles: roles, Notifier: notifier}
}

type submitRequest struct {
	Content string  `json:"content"`
	Link    *string `json:"link"`
}

// Submit upserts the caller's submission for a task. The write is a single
// insert-or-update on the (task, student) unique index, so two racing
// submissions from the same student cannot produce duplicate rows.
func (h *SubmissionsHandler) Submit(c *fiber.Ctx) error {
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

	var group models.Group
	if err := h.DB.First(&group, "id = ?", task.GroupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	grant, err := h.Roles.ResolveWithGroup(c.Context(), currentUser.ID, &group)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !services.CanSubmit(grant) {
		return utils.Error(c, fiber.StatusForbidden, "not a member of this group")
	}

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Content) == "" && (req.Link == nil || strings.TrimSpace(*req.Link) == "") {
		return utils.Error(c, fiber.StatusBadRequest, "content or link is required")
	}

	submission := models.Submission{
		TaskID:      taskID,
		StudentID:   currentUser.ID,
		Content:     req.Content,
		Link:        req.Link,
		SubmittedAt: time.Now().UTC(),
	}

	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "link", "submitted_at", "updated_at"}),
	}).Create(&submission).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving submission")
	}

	// Reload so the response carries the surviving row, not the candidate
	// insert's generated id.
	var saved models.Submission
	if err := h.DB.First(&saved, "task_id = ? AND student_id = ?", taskID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading submission")
	}

	logger.InfoWithUser(currentUser.ID.String(), "submission_saved", map[string]interface{}{
		"submission_id": saved.ID.String(),
		"task_id":       taskID.String(),
	})

	h.Notifier.SubmissionReceived(currentUser.ID, &saved, &task, &group)

	return utils.Success(c, fiber.StatusOK, saved)
}

// ListForTask returns the submissions the caller is allowed to see: admins
// get every submission, students always get their own and see peers' work
// only when the task publishes submissions.
func (h *SubmissionsHandler) ListForTask(c *fiber.Ctx) error {
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
	if !grant.IsMember() {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}

	query := h.DB.Preload("Student").Preload("Score").Preload("Attachments").
		Where("task_id = ?", taskID)

	if !services.CanViewPeerSubmissions(grant, task.SubmissionsVisibility) {
		query = query.Where("student_id = ?", currentUser.ID)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing submissions")
	}

	return utils.Success(c, fiber.StatusOK, submissions)
}

func (h *SubmissionsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	submissionID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid submission id")
	}

	var submission models.Submission
	if err := h.DB.First(&submission, "id = ?", submissionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "submission not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading submission")
	}

	var task models.Task
	if err := h.DB.First(&task, "id = ?", submission.TaskID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading task")
	}

	if submission.StudentID != currentUser.ID {
		grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, task.GroupID)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
		}
		if !grant.IsAdmin() {
			return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
		}
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submissionID).Delete(&models.Score{}).Error; err != nil {
			return err
		}
		if err := tx.Where("submission_id = ?", submissionID).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Submission{}, "id = ?", submissionID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting submission")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "submission deleted"})
}

type gradeRequest struct {
	Value    float64 `json:"value"`
	Feedback string  `json:"feedback"`
}

// Grade upserts the score for a submission. Authorization is resolved
// through the submission's task to its group.
func (h *SubmissionsHandler) Grade(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	submissionID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid submission id")
	}

	var submission models.Submission
	if err := h.DB.First(&submission, "id = ?", submissionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "submission not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading submission")
	}

	var task models.Task
	if err := h.DB.First(&task, "id = ?", submission.TaskID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading task")
	}

	grant, err := h.Roles.Resolve(c.Context(), currentUser.ID, task.GroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resolving group role")
	}
	if !services.CanGrade(grant) {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req gradeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Value < 0 || req.Value > task.MaxScore {
		return utils.Error(c, fiber.StatusBadRequest, "score out of bounds")
	}

	score := models.Score{
		SubmissionID: submissionID,
		Value:        req.Value,
		Feedback:     req.Feedback,
		GraderID:     currentUser.ID,
	}

	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "feedback", "grader_id", "updated_at"}),
	}).Create(&score).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving score")
	}

	var saved models.Score
	if err := h.DB.First(&saved, "submission_id = ?", submissionID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading score")
	}

	logger.InfoWithUser(currentUser.ID.String(), "submission_graded", map[string]interface{}{
		"submission_id": submissionID.String(),
		"task_id":       task.ID.String(),
		"value":         saved.Value,
	})

	h.Notifier.SubmissionGraded(currentUser.ID, &submission, &task, &saved)

	return utils.Success(c, fiber.StatusOK, saved)
}
