package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/logger"
)

// GraphStore mirrors document-entity mentions into an external graph.
// Optional; the relational rows in SQLite are the source of truth.
type GraphStore interface {
	UpsertEntity(ctx context.Context, entityID, name, entityType string) error
	LinkMention(ctx context.Context, docID, entityID string, mentionCount int) error
}

// Enricher runs named-entity recognition over extracted document text and
// stores per-document mention metadata. It is a best-effort collaborator:
// callers log its errors and continue.
type Enricher struct {
	db       *sqlite.Client
	graph    GraphStore
	maxChars int
}

func NewEnricher(db *sqlite.Client, maxChars int) *Enricher {
	if maxChars <= 0 {
		maxChars = 10000
	}
	return &Enricher{db: db, maxChars: maxChars}
}

func (e *Enricher) SetGraph(graph GraphStore) {
	e.graph = graph
}

func (e *Enricher) EnrichDocument(ctx context.Context, docID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if runes := []rune(text); len(runes) > e.maxChars {
		text = string(runes[:e.maxChars])
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return fmt.Errorf("failed to run entity recognition: %w", err)
	}

	type key struct {
		name string
		typ  string
	}
	mentions := make(map[key]int)
	total := 0

	for _, ent := range doc.Entities() {
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		mentions[key{name: name, typ: mapEntityLabel(ent.Label)}]++
		total++
	}

	if total == 0 {
		return nil
	}

	for k, count := range mentions {
		entityID, err := e.db.UpsertEntity(&models.Entity{
			ID:   uuid.New().String(),
			Name: k.name,
			Type: k.typ,
		})
		if err != nil {
			return err
		}

		link := &models.DocumentEntity{
			DocID:        docID,
			EntityID:     entityID,
			MentionCount: count,
			Relevance:    float64(count) / float64(total),
		}
		if err := e.db.InsertDocumentEntity(link); err != nil {
			return err
		}

		if e.graph != nil {
			if gerr := e.graph.UpsertEntity(ctx, entityID, k.name, k.typ); gerr != nil {
				logger.Warn("Failed to mirror entity to graph", zap.Error(gerr))
				continue
			}
			if gerr := e.graph.LinkMention(ctx, docID, entityID, count); gerr != nil {
				logger.Warn("Failed to mirror mention to graph", zap.Error(gerr))
			}
		}
	}

	logger.Info("Document enriched",
		zap.String("doc_id", docID),
		zap.Int("entities", len(mentions)),
	)

	return nil
}

func mapEntityLabel(label string) string {
	switch label {
	case "PERSON":
		return "person"
	case "GPE":
		return "location"
	default:
		return strings.ToLower(label)
	}
}
