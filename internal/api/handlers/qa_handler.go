package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/qa"
	"github.com/finsight-ai/backend/internal/search"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/pkg/logger"
)

type QaHandler struct {
	engine      *search.Engine
	synthesizer *qa.Synthesizer
}

func NewQaHandler(engine *search.Engine, synthesizer *qa.Synthesizer) *QaHandler {
	return &QaHandler{
		engine:      engine,
		synthesizer: synthesizer,
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *QaHandler) Search(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput))
	}

	results, err := h.engine.Search(c.Context(), req.Query, req.Limit)
	if err != nil {
		return respondError(c, err)
	}

	if results == nil {
		results = []search.Result{}
	}

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (h *QaHandler) AskCorpus(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput))
	}

	if strings.TrimSpace(req.Question) == "" {
		return respondError(c, fmt.Errorf("%w: question cannot be empty", models.ErrInvalidInput))
	}

	answer, err := h.synthesizer.AskCorpus(c.Context(), req.Question)
	if err != nil {
		logger.Error("Corpus ask failed", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(answer)
}

func (h *QaHandler) AskDocument(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fmt.Errorf("%w: invalid request body", models.ErrInvalidInput))
	}

	if strings.TrimSpace(req.Question) == "" {
		return respondError(c, fmt.Errorf("%w: question cannot be empty", models.ErrInvalidInput))
	}

	answer, err := h.synthesizer.AskDocument(c.Context(), c.Params("id"), req.Question)
	if err != nil {
		logger.Error("Document ask failed", zap.String("doc_id", c.Params("id")), zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(answer)
}

func (h *QaHandler) History(c *fiber.Ctx) error {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return respondError(c, fmt.Errorf("%w: invalid limit", models.ErrInvalidInput))
		}
		limit = parsed
	}

	records, err := h.synthesizer.History(limit)
	if err != nil {
		return respondError(c, err)
	}

	if records == nil {
		records = []models.QaRecord{}
	}

	return c.JSON(fiber.Map{
		"history": records,
		"count":   len(records),
	})
}
