package api

import (
	"raggate/internal/domain/entity"
	"raggate/internal/domain/repository"
	"raggate/internal/usecase"

	"github.com/gofiber/fiber/v2"
)

// DocumentHandler exposes the ingestion and document pass-through
// contracts: ingest, get-by-id, delete-by-id (cascades chunks), list
// documents/collections, and direct search.
type DocumentHandler struct {
	ingestor *usecase.Ingestor
	searcher *usecase.Searcher
	store    repository.VectorStore
}

func NewDocumentHandler(ingestor *usecase.Ingestor, searcher *usecase.Searcher, store repository.VectorStore) *DocumentHandler {
	return &DocumentHandler{
		ingestor: ingestor,
		searcher: searcher,
		store:    store,
	}
}

func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	var req entity.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	chunks, err := h.ingestor.Ingest(c.Context(), c.Query("collection"), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"document_id": req.DocumentID,
		"chunks":      len(chunks),
	})
}

func (h *DocumentHandler) HandleSearch(c *fiber.Ctx) error {
	var req entity.SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	results, err := h.searcher.Search(c.Context(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"results": results, "count": len(results)})
}

func (h *DocumentHandler) HandleGetDocument(c *fiber.Ctx) error {
	chunks, err := h.store.GetDocument(c.Context(), c.Query("collection"), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"document_id": c.Params("id"),
		"chunks":      chunks,
	})
}

func (h *DocumentHandler) HandleDeleteDocument(c *fiber.Ctx) error {
	if err := h.store.DeleteDocument(c.Context(), c.Query("collection"), c.Params("id")); err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"deleted": c.Params("id")})
}

func (h *DocumentHandler) HandleListDocuments(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context(), c.Query("collection"))
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) HandleListCollections(c *fiber.Ctx) error {
	collections, err := h.store.ListCollections(c.Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"collections": collections})
}
