package handlers

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/classhub/backend/internal/middleware"
	"github.com/classhub/backend/internal/models"
	"github.com/classhub/backend/internal/services"
	"github.com/classhub/backend/internal/storage"
	"github.com/classhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const presignExpiry = 15 * time.Minute

type UploadsHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Roles   *services.RoleService
}

func NewUploadsHandler(db *gorm.DB, storageClient *storage.MinIOClient, roles *services.RoleService) *UploadsHandler {
	return &UploadsHandler{DB: db, Storage: storageClient, Roles: roles}
}

func (h *UploadsHandler) UploadAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading file")
	}
	defer src.Close()

	objectName := fmt.Sprintf("avatars/%s/%s%s", currentUser.ID, uuid.New(), filepath.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")

	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing avatar")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), objectName, presignExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating avatar url")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).
		Update("avatar_url", objectName).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving avatar")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *UploadsHandler) UploadTaskAttachment(c *fiber.Ctx) error {
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

	return h.storeAttachment(c, currentUser.ID, &taskID, nil)
}

func (h *UploadsHandler) UploadSubmissionAttachment(c *fiber.Ctx) error {
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

	if submission.StudentID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "not your submission")
	}

	return h.storeAttachment(c, currentUser.ID, nil, &submissionID)
}

func (h *UploadsHandler) storeAttachment(c *fiber.Ctx, uploaderID uuid.UUID, taskID, submissionID *uuid.UUID) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading file")
	}
	defer src.Close()

	objectName := fmt.Sprintf("attachments/%s/%s%s", uploaderID, uuid.New(), filepath.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")

	if err := h.Storage.Upload(c.Context(), objectName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing attachment")
	}

	attachment := models.Attachment{
		Name:         fileHeader.Filename,
		MimeType:     contentType,
		Size:         fileHeader.Size,
		StoragePath:  objectName,
		UploaderID:   uploaderID,
		TaskID:       taskID,
		SubmissionID: submissionID,
	}

	if err := h.DB.Create(&attachment).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving attachment")
	}

	if url, err := h.Storage.PresignedGetURL(c.Context(), objectName, presignExpiry); err == nil {
		attachment.URL = url
	}

	return utils.Success(c, fiber.StatusCreated, attachment)
}

// DownloadURL resolves an attachment to a short-lived presigned URL. Access
// follows the entity the attachment hangs off: task attachments are visible
// to any group member, submission attachments follow the submission
// visibility rules.
func (h *UploadsHandler) DownloadURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	attachmentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid attachment id")
	}

	var attachment models.Attachment
	if err := h.DB.First(&attachment, "id = ?", attachmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "attachment not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading attachment")
	}

	allowed, err := h.canAccessAttachment(c, currentUser.ID, &attachment)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking attachment access")
	}
	if !allowed {
		return utils.Error(c, fiber.StatusForbidden, "attachment access denied")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), attachment.StoragePath, presignExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *UploadsHandler) canAccessAttachment(c *fiber.Ctx, userID uuid.UUID, attachment *models.Attachment) (bool, error) {
	if attachment.UploaderID == userID {
		return true, nil
	}

	if attachment.TaskID != nil {
		var task models.Task
		if err := h.DB.First(&task, "id = ?", *attachment.TaskID).Error; err != nil {
			return false, err
		}
		grant, err := h.Roles.Resolve(c.Context(), userID, task.GroupID)
		if err != nil {
			return false, err
		}
		return grant.IsMember(), nil
	}

	if attachment.SubmissionID != nil {
		var submission models.Submission
		if err := h.DB.First(&submission, "id = ?", *attachment.SubmissionID).Error; err != nil {
			return false, err
		}
		var task models.Task
		if err := h.DB.First(&task, "id = ?", submission.TaskID).Error; err != nil {
			return false, err
		}
		grant, err := h.Roles.Resolve(c.Context(), userID, task.GroupID)
		if err != nil {
			return false, err
		}
		if !grant.IsMember() {
			return false, nil
		}
		return services.CanViewPeerSubmissions(grant, task.SubmissionsVisibility), nil
	}

	return false, nil
}
