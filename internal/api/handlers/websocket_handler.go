package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/ingestion"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/pkg/logger"
)

type WebSocketHandler struct {
	processor    *ingestion.Processor
	pollInterval time.Duration
}

func NewWebSocketHandler(processor *ingestion.Processor) *WebSocketHandler {
	return &WebSocketHandler{
		processor:    processor,
		pollInterval: time.Second,
	}
}

type statusMessage struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// HandleStatus pushes processing status updates for a document until it
// reaches a terminal state or the client disconnects.
func (h *WebSocketHandler) HandleStatus(c *websocket.Conn) {
	docID := c.Params("id")

	logger.Info("Status stream opened", zap.String("doc_id", docID))

	defer func() {
		c.Close()
		logger.Info("Status stream closed", zap.String("doc_id", docID))
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastStatus models.ProcessingStatus

	for {
		status, errorMessage, err := h.processor.Status(docID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				h.send(c, statusMessage{DocumentID: docID, Status: "not_found"})
			} else {
				logger.Error("Failed to read document status", zap.String("doc_id", docID), zap.Error(err))
			}
			return
		}

		if status != lastStatus {
			if !h.send(c, statusMessage{DocumentID: docID, Status: string(status), ErrorMessage: errorMessage}) {
				return
			}
			lastStatus = status
		}

		if status == models.StatusCompleted || status == models.StatusFailed {
			return
		}

		<-ticker.C
	}
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg statusMessage) bool {
	if err := c.WriteJSON(msg); err != nil {
		logger.Error("Failed to write status message", zap.Error(err))
		return false
	}
	return true
}
