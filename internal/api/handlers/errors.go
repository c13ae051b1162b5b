package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/finsight-ai/backend/internal/storage/models"
)

// respondError maps sentinel errors onto the HTTP error contract:
// 400 for invalid input, 404 for missing resources, 500 otherwise, always
// as an {error: string} body.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
