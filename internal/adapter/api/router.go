package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func SetupRouter(app *fiber.App, chat *ChatHandler, docs *DocumentHandler, history *HistoryHandler) {
	// Middleware
	app.Use(logger.New())

	app.Get("/health", chat.HandleHealth)

	// API Versioning
	v1 := app.Group("/v1")

	v1.Get("/models", chat.HandleListModels)
	v1.Post("/chat/completions", chat.HandleChatCompletions)

	v1.Post("/documents", docs.HandleIngest)
	v1.Get("/documents", docs.HandleListDocuments)
	v1.Get("/documents/:id", docs.HandleGetDocument)
	v1.Delete("/documents/:id", docs.HandleDeleteDocument)
	v1.Post("/search", docs.HandleSearch)
	v1.Get("/collections", docs.HandleListCollections)

	// History routes only exist when a history store is configured.
	if history != nil {
		v1.Get("/chat/history", history.HandleList)
		v1.Get("/chat/:id/messages", history.HandleMessages)
		v1.Delete("/chat/:id", history.HandleDelete)
	}
}
