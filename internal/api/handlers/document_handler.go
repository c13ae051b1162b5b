package handlers

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/ingestion"
	"github.com/finsight-ai/backend/internal/llm"
	"github.com/finsight-ai/backend/internal/storage/blob"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client
	blobs     blob.Store
	llmClient *llm.Client
}

func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client, blobs blob.Store, llmClient *llm.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
		blobs:     blobs,
		llmClient: llmClient,
	}
}

func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return respondError(c, fmt.Errorf("%w: file is required", models.ErrInvalidInput))
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}

	f, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return respondError(c, fmt.Errorf("failed to read upload: %w", err))
	}
	defer f.Close()

	doc, err := h.processor.Submit(
		c.Context(),
		fileHeader.Filename,
		c.FormValue("title"),
		mimeType,
		fileHeader.Size,
		f,
	)
	if err != nil {
		logger.Error("Failed to submit document", zap.Error(err))
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(doc)
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	filter := models.DocumentFilter{
		DocType: c.Query("type"),
		Status:  c.Query("status"),
		Search:  c.Query("search"),
	}

	docs, err := h.db.ListDocuments(filter)
	if err != nil {
		return respondError(c, err)
	}

	if docs == nil {
		docs = []models.Document{}
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.db.GetDocument(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	pages, err := h.db.GetPages(doc.ID)
	if err != nil {
		return respondError(c, err)
	}
	if pages == nil {
		pages = []models.DocumentPage{}
	}

	return c.JSON(fiber.Map{
		"document": doc,
		"pages":    pages,
	})
}

func (h *DocumentHandler) GetStatus(c *fiber.Ctx) error {
	status, errorMessage, err := h.processor.Status(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":        status,
		"error_message": errorMessage,
	})
}

func (h *DocumentHandler) DownloadDocument(c *fiber.Ctx) error {
	return h.stream(c, true)
}

func (h *DocumentHandler) ViewDocument(c *fiber.Ctx) error {
	return h.stream(c, false)
}

func (h *DocumentHandler) stream(c *fiber.Ctx, attachment bool) error {
	doc, err := h.db.GetDocument(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	rc, err := h.blobs.Open(doc.StoragePath)
	if err != nil {
		logger.Error("Failed to open blob for streaming", zap.String("doc_id", doc.ID), zap.Error(err))
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, doc.MimeType)
	if attachment {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	} else {
		c.Set(fiber.HeaderContentDisposition, "inline")
	}

	return c.SendStream(rc, int(doc.FileSize))
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	if err := h.processor.Delete(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Document deleted",
	})
}

func (h *DocumentHandler) ReprocessDocument(c *fiber.Ctx) error {
	docID := c.Params("id")

	if err := h.processor.Reprocess(c.Context(), docID); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Document queued for reprocessing",
		"id":      docID,
	})
}

// GenerateSummary runs on-demand analysis for a completed document and
// persists the result.
func (h *DocumentHandler) GenerateSummary(c *fiber.Ctx) error {
	doc, err := h.db.GetDocument(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	if doc.Status != models.StatusCompleted {
		return respondError(c, fmt.Errorf("%w: document is not completed (status: %s)", models.ErrInvalidInput, doc.Status))
	}

	content := doc.FullText
	if runes := []rune(content); len(runes) > 16000 {
		content = string(runes[:16000])
	}

	analysis, err := h.llmClient.AnalyzeDocument(c.Context(), doc.Title, content)
	if err != nil {
		logger.Error("Failed to analyze document", zap.String("doc_id", doc.ID), zap.Error(err))
		return respondError(c, fmt.Errorf("%w: %v", models.ErrUpstream, err))
	}

	if err := h.db.UpdateDocumentAnalysis(doc.ID, analysis.Summary, analysis.KeyTopics, analysis.Sentiment); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"summary":    analysis.Summary,
		"key_topics": analysis.KeyTopics,
		"sentiment":  analysis.Sentiment,
	})
}

// PageInsight explains a single page. Generation failures degrade to the raw
// page text instead of failing the request.
func (h *DocumentHandler) PageInsight(c *fiber.Ctx) error {
	docID := c.Params("id")

	pageNumber, err := strconv.Atoi(c.Params("page"))
	if err != nil || pageNumber < 1 {
		return respondError(c, fmt.Errorf("%w: invalid page number", models.ErrInvalidInput))
	}

	doc, err := h.db.GetDocument(docID)
	if err != nil {
		return respondError(c, err)
	}

	page, err := h.db.GetPage(docID, pageNumber)
	if err != nil {
		return respondError(c, err)
	}

	if strings.TrimSpace(page.Text) == "" {
		return respondError(c, fmt.Errorf("%w: page has no text", models.ErrInvalidInput))
	}

	insight, err := h.llmClient.ExplainPage(c.Context(), doc.Title, pageNumber, page.Text)
	if err != nil {
		logger.Warn("Page insight degraded to raw text",
			zap.String("doc_id", docID),
			zap.Int("page", pageNumber),
			zap.Error(err),
		)

		insight = page.Text
		if runes := []rune(insight); len(runes) > 1000 {
			insight = string(runes[:1000])
		}

		return c.JSON(fiber.Map{
			"insight":  insight,
			"degraded": true,
		})
	}

	return c.JSON(fiber.Map{
		"insight":  insight,
		"degraded": false,
	})
}
