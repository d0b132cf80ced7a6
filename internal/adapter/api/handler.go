package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"raggate/internal/domain/entity"
	"raggate/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// ChatHandler is the delivery layer for chat completions. It parses
// requests, maps domain errors onto status codes and renders either a
// single JSON response or an SSE stream in OpenAI chunk format.
type ChatHandler struct {
	orchestrator *usecase.Orchestrator
	gateway      *usecase.Gateway
	providers    []entity.ProviderConfig
}

func NewChatHandler(orchestrator *usecase.Orchestrator, gateway *usecase.Gateway, providers []entity.ProviderConfig) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		gateway:      gateway,
		providers:    providers,
	}
}

func (h *ChatHandler) HandleChatCompletions(c *fiber.Ctx) error {
	var req entity.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Model == "" || len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "model and messages are required"})
	}
	if req.User == "" {
		req.User = "default_user"
	}

	if !req.Stream {
		resp, err := h.orchestrator.Chat(c.Context(), req, func(string) error { return nil })
		if err != nil {
			return mapError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(resp)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	reqCtx := c.Context()
	chatID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := req.Model

	reqCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		send := func(payload any) error {
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			return w.Flush()
		}

		_, err := h.orchestrator.Chat(reqCtx, req, func(delta string) error {
			return send(streamChunk(chatID, created, model, delta))
		})
		if err != nil {
			log.Error().Msgf("[API] chat stream failed: %v", err)
			_ = send(fiber.Map{"error": err.Error()})
			return
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush()
	}))
	return nil
}

// HandleListModels serves the static model listing derived from the
// provider configuration.
func (h *ChatHandler) HandleListModels(c *fiber.Ctx) error {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}

	var models []modelEntry
	for _, p := range h.providers {
		for _, m := range p.Models {
			models = append(models, modelEntry{ID: m, Object: "model", OwnedBy: p.Name})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"object": "list", "data": models})
}

// HandleHealth reports liveness plus the gateway's provider counters.
func (h *ChatHandler) HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"providers": h.gateway.Stats(),
	})
}

func streamChunk(id string, created int64, model, content string) fiber.Map {
	return fiber.Map{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   model,
		"choices": []fiber.Map{{
			"index":         0,
			"delta":         fiber.Map{"content": content},
			"finish_reason": nil,
		}},
	}
}

// mapError translates domain errors into HTTP status codes.
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrResourceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrTurnTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrProviderExhausted):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal gateway error"})
	}
}
