package handlers

import (
	"strings"

	"github.com/classhub/backend/internal/middleware"
	"github.com/classhub/backend/internal/services"
	"github.com/classhub/backend/pkg/logger"
	"github.com/classhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AssistantHandler struct {
	Assistant *services.AssistantService
}

func NewAssistantHandler(assistant *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{Assistant: assistant}
}

func (h *AssistantHandler) Ask(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return utils.Error(c, fiber.StatusBadRequest, "message is required")
	}

	reply, err := h.Assistant.Ask(c.Context(), req.Message)
	if err != nil {
		logger.Error("assistant_request_failed", err, map[string]interface{}{
			"user_id": currentUser.ID.String(),
		})
		return utils.Error(c, fiber.StatusBadGateway, "assistant unavailable")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"reply": reply})
}
