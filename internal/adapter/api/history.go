package api

import (
	"raggate/internal/domain/repository"

	"github.com/gofiber/fiber/v2"
)

// HistoryHandler serves stored conversation history. Registered only
// when a history store is configured.
type HistoryHandler struct {
	history repository.HistoryStore
}

func NewHistoryHandler(history repository.HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) HandleList(c *fiber.Ctx) error {
	user := c.Query("user_id", "default_user")
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("skip", 0)

	conversations, err := h.history.List(c.Context(), user, limit, offset)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"conversations": conversations,
		"total":         len(conversations),
	})
}

func (h *HistoryHandler) HandleMessages(c *fiber.Ctx) error {
	messages, err := h.history.Messages(c.Context(), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"messages": messages})
}

func (h *HistoryHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.history.Delete(c.Context(), c.Params("id")); err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Conversation deleted",
		"chat_id": c.Params("id"),
	})
}
