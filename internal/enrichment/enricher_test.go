package enrichment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
)

func newTestEnricher(t *testing.T) (*Enricher, *sqlite.Client) {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	return NewEnricher(db, 0), db
}

func seedDoc(t *testing.T, db *sqlite.Client) string {
	t.Helper()

	docID := uuid.New().String()
	require.NoError(t, db.InsertDocument(&models.Document{
		ID:         docID,
		Title:      "enriched",
		Filename:   "enriched.txt",
		MimeType:   "text/plain",
		Status:     models.StatusCompleted,
		UploadedAt: time.Now(),
	}))
	return docID
}

func TestMapEntityLabel(t *testing.T) {
	assert.Equal(t, "person", mapEntityLabel("PERSON"))
	assert.Equal(t, "location", mapEntityLabel("GPE"))
	assert.Equal(t, "org", mapEntityLabel("ORG"))
}

func TestEnrichDocumentEmptyText(t *testing.T) {
	enricher, db := newTestEnricher(t)
	docID := seedDoc(t, db)

	require.NoError(t, enricher.EnrichDocument(context.Background(), docID, "   "))

	entities, err := db.GetDocumentEntities(docID)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestEnrichDocumentStoresEntities(t *testing.T) {
	enricher, db := newTestEnricher(t)
	docID := seedDoc(t, db)

	text := "Tim Cook announced results in Cupertino. Tim Cook also discussed guidance."

	require.NoError(t, enricher.EnrichDocument(context.Background(), docID, text))

	entities, err := db.GetDocumentEntities(docID)
	require.NoError(t, err)
	assert.NotEmpty(t, entities)

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Tim Cook")
}

type recordingGraph struct {
	entities int
	links    int
}

func (g *recordingGraph) UpsertEntity(_ context.Context, _, _, _ string) error {
	g.entities++
	return nil
}

func (g *recordingGraph) LinkMention(_ context.Context, _, _ string, _ int) error {
	g.links++
	return nil
}

func TestEnrichDocumentMirrorsToGraph(t *testing.T) {
	enricher, db := newTestEnricher(t)
	docID := seedDoc(t, db)

	graph := &recordingGraph{}
	enricher.SetGraph(graph)

	require.NoError(t, enricher.EnrichDocument(context.Background(), docID, "Warren Buffett addressed shareholders in Omaha."))

	assert.Equal(t, graph.entities, graph.links)
	assert.Greater(t, graph.entities, 0)
}
