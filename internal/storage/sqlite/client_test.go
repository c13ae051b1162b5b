package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())

	return client
}

func newDocument(title string) *models.Document {
	return &models.Document{
		ID:          uuid.New().String(),
		Title:       title,
		Filename:    title + ".pdf",
		StoragePath: "/tmp/" + title + ".pdf",
		FileSize:    1024,
		MimeType:    "application/pdf",
		Status:      models.StatusPending,
		UploadedAt:  time.Now(),
	}
}

func TestDocumentCRUD(t *testing.T) {
	client := newTestClient(t)

	doc := newDocument("crud")
	require.NoError(t, client.InsertDocument(doc))

	t.Run("get round trip", func(t *testing.T) {
		got, err := client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.Title, got.Title)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Nil(t, got.ProcessedAt)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := client.GetDocument("unknown")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("status transitions", func(t *testing.T) {
		require.NoError(t, client.UpdateDocumentStatus(doc.ID, models.StatusProcessing, ""))

		got, err := client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)

		require.NoError(t, client.UpdateDocumentStatus(doc.ID, models.StatusFailed, "extraction blew up"))

		got, err = client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, got.Status)
		assert.Equal(t, "extraction blew up", got.ErrorMessage)
	})

	t.Run("completion stamps metadata", func(t *testing.T) {
		require.NoError(t, client.MarkDocumentCompleted(doc.ID, 12, "extracted body", "annual_report"))

		got, err := client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, 12, got.PageCount)
		assert.Equal(t, "extracted body", got.FullText)
		assert.Equal(t, "annual_report", got.DocType)
		assert.NotNil(t, got.ProcessedAt)
		assert.Empty(t, got.ErrorMessage)
	})

	t.Run("reset returns to pending", func(t *testing.T) {
		require.NoError(t, client.ResetDocument(doc.ID))

		got, err := client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Zero(t, got.PageCount)
		assert.Empty(t, got.FullText)
	})

	t.Run("analysis update", func(t *testing.T) {
		require.NoError(t, client.UpdateDocumentAnalysis(doc.ID, "a summary", []string{"growth", "margins"}, "positive"))

		got, err := client.GetDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "a summary", got.Summary)
		assert.Equal(t, []string{"growth", "margins"}, got.KeyTopics)
		assert.Equal(t, "positive", got.Sentiment)
	})
}

func TestListDocumentsFilters(t *testing.T) {
	client := newTestClient(t)

	reportID := uuid.New().String()
	report := newDocument("acme-annual")
	report.ID = reportID
	require.NoError(t, client.InsertDocument(report))
	require.NoError(t, client.MarkDocumentCompleted(reportID, 1, "text", "annual_report"))

	memo := newDocument("beta-memo")
	require.NoError(t, client.InsertDocument(memo))

	t.Run("no filter", func(t *testing.T) {
		docs, err := client.ListDocuments(models.DocumentFilter{})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("by type", func(t *testing.T) {
		docs, err := client.ListDocuments(models.DocumentFilter{DocType: "annual_report"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, reportID, docs[0].ID)
	})

	t.Run("by status", func(t *testing.T) {
		docs, err := client.ListDocuments(models.DocumentFilter{Status: "pending"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, memo.ID, docs[0].ID)
	})

	t.Run("by title substring", func(t *testing.T) {
		docs, err := client.ListDocuments(models.DocumentFilter{Search: "acme"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, reportID, docs[0].ID)
	})
}

func TestListDocumentsWithText(t *testing.T) {
	client := newTestClient(t)

	withText := newDocument("has text")
	require.NoError(t, client.InsertDocument(withText))
	require.NoError(t, client.MarkDocumentCompleted(withText.ID, 1, "extracted body", "other"))

	empty := newDocument("no text")
	require.NoError(t, client.InsertDocument(empty))
	require.NoError(t, client.MarkDocumentCompleted(empty.ID, 0, "", "other"))

	docs, err := client.ListDocumentsWithText(5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, withText.ID, docs[0].ID)
	assert.Equal(t, "extracted body", docs[0].FullText)
}

func TestPagesAndChunks(t *testing.T) {
	client := newTestClient(t)

	doc := newDocument("paged")
	require.NoError(t, client.InsertDocument(doc))

	for i := 1; i <= 3; i++ {
		require.NoError(t, client.InsertPage(&models.DocumentPage{
			DocID:      doc.ID,
			PageNumber: i,
			Text:       "page body",
		}))
		require.NoError(t, client.InsertChunk(&models.DocumentChunk{
			ID:         uuid.New().String(),
			DocID:      doc.ID,
			PageNumber: i,
			ChunkIndex: i - 1,
			Text:       "searchable chunk body",
			TokenCount: 5,
			CreatedAt:  time.Now(),
		}))
	}

	t.Run("pages ordered", func(t *testing.T) {
		pages, err := client.GetPages(doc.ID)
		require.NoError(t, err)
		require.Len(t, pages, 3)
		assert.Equal(t, 1, pages[0].PageNumber)
		assert.Equal(t, 3, pages[2].PageNumber)
	})

	t.Run("single page lookup", func(t *testing.T) {
		page, err := client.GetPage(doc.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, "page body", page.Text)

		_, err = client.GetPage(doc.ID, 99)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("chunks searchable", func(t *testing.T) {
		hits, err := client.SearchChunks(`"searchable"`, 10)
		require.NoError(t, err)
		assert.Len(t, hits, 3)
		assert.Equal(t, doc.ID, hits[0].DocID)
		assert.Greater(t, hits[0].Score, 0.0)
	})

	t.Run("delete document cascades", func(t *testing.T) {
		require.NoError(t, client.DeleteDocument(doc.ID))

		pages, err := client.GetPages(doc.ID)
		require.NoError(t, err)
		assert.Empty(t, pages)

		chunks, err := client.GetChunks(doc.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		hits, err := client.SearchChunks(`"searchable"`, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestDeleteDocumentCascadesOnPooledConnections(t *testing.T) {
	client := newTestClient(t)

	doc := newDocument("pooled")
	require.NoError(t, client.InsertDocument(doc))
	require.NoError(t, client.InsertPage(&models.DocumentPage{
		DocID:      doc.ID,
		PageNumber: 1,
		Text:       "page body",
	}))

	entityID, err := client.UpsertEntity(&models.Entity{
		ID:   uuid.New().String(),
		Name: "Acme Corp",
		Type: "organization",
	})
	require.NoError(t, err)
	require.NoError(t, client.InsertDocumentEntity(&models.DocumentEntity{
		DocID:        doc.ID,
		EntityID:     entityID,
		MentionCount: 1,
		Relevance:    1,
	}))

	// Hold one pooled connection so the delete runs on a fresh connection,
	// which must have foreign keys enabled too for the cascades to fire.
	conn, err := client.db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, client.DeleteDocument(doc.ID))

	pages, err := client.GetPages(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	entities, err := client.GetDocumentEntities(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestSearchDocumentsByName(t *testing.T) {
	client := newTestClient(t)

	doc := newDocument("Quarterly-Earnings-Q3")
	require.NoError(t, client.InsertDocument(doc))

	docs, err := client.SearchDocumentsByName("earnings", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	docs, err = client.SearchDocumentsByName("absent", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestQaHistory(t *testing.T) {
	client := newTestClient(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.InsertQaRecord(&models.QaRecord{
			ID:       uuid.New().String(),
			Question: "q",
			Answer:   "a",
			Citations: []models.Citation{
				{DocumentID: "d1", DocumentTitle: "T", PageNumber: i + 1, Excerpt: "e"},
			},
			DocumentIDs: []string{"d1"},
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := client.GetQaHistory(2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Most recent first.
	assert.Equal(t, 3, records[0].Citations[0].PageNumber)
	assert.Equal(t, []string{"d1"}, records[0].DocumentIDs)
}

func TestEntities(t *testing.T) {
	client := newTestClient(t)

	doc := newDocument("entities")
	require.NoError(t, client.InsertDocument(doc))

	id1, err := client.UpsertEntity(&models.Entity{Name: "Acme Corp", Type: "organization"})
	require.NoError(t, err)

	id2, err := client.UpsertEntity(&models.Entity{Name: "Acme Corp", Type: "organization"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, client.InsertDocumentEntity(&models.DocumentEntity{
		DocID:        doc.ID,
		EntityID:     id1,
		MentionCount: 4,
		Relevance:    0.8,
	}))

	entities, err := client.GetDocumentEntities(doc.ID)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Acme Corp", entities[0].Name)

	require.NoError(t, client.DeleteDocumentEntities(doc.ID))

	entities, err = client.GetDocumentEntities(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)
}
