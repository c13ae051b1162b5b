package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/backend/internal/storage/blob"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/config"
)

type stubClassifier struct {
	label string
	err   error
	calls int
}

func (s *stubClassifier) ClassifyDocument(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.label, nil
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) InvalidateSearchCache(_ context.Context) error {
	s.calls++
	return nil
}

func newTestProcessor(t *testing.T, classifier Classifier) (*Processor, *sqlite.Client) {
	t.Helper()

	dir := t.TempDir()

	db, err := sqlite.NewClient(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	blobs, err := blob.NewFileStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	return NewProcessor(db, blobs, classifier, config.IngestionConfig{
		Workers:     1,
		ChunkSize:   2000,
		PreviewSize: 2000,
	}), db
}

func TestSubmitValidation(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	ctx := context.Background()

	t.Run("missing filename", func(t *testing.T) {
		_, err := p.Submit(ctx, "", "", "text/plain", 10, strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("oversize file", func(t *testing.T) {
		_, err := p.Submit(ctx, "big.pdf", "", "application/pdf", 51*1024*1024, strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("unsupported mime type", func(t *testing.T) {
		_, err := p.Submit(ctx, "a.zip", "", "application/zip", 10, strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})
}

func TestSubmitCreatesPendingDocument(t *testing.T) {
	p, db := newTestProcessor(t, nil)

	doc, err := p.Submit(context.Background(), "report.txt", "Q3 Report", "text/plain", 20, strings.NewReader("quarterly revenue up"))
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Q3 Report", doc.Title)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, int64(len("quarterly revenue up")), doc.FileSize)

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestSubmitDefaultsTitleToFilename(t *testing.T) {
	p, _ := newTestProcessor(t, nil)

	doc, err := p.Submit(context.Background(), "notes.txt", "", "text/plain", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Title)
}

func TestPipelineCompletesDocument(t *testing.T) {
	classifier := &stubClassifier{label: "annual_report"}
	p, db := newTestProcessor(t, classifier)
	inv := &stubInvalidator{}
	p.SetInvalidator(inv)

	doc, err := p.Submit(context.Background(), "annual.txt", "Annual Report 2025", "text/plain", 30, strings.NewReader("Total revenue reached $4.2B in fiscal 2025."))
	require.NoError(t, err)

	p.run(context.Background(), doc.ID)

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, "annual_report", stored.DocType)
	assert.Equal(t, 1, stored.PageCount)
	assert.Contains(t, stored.FullText, "Total revenue")
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ErrorMessage)

	pages, err := db.GetPages(doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	chunks, err := db.GetChunks(doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)

	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, 1, inv.calls)
}

func TestPipelineClassifierFailureDefaultsToOther(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("upstream down")}
	p, db := newTestProcessor(t, classifier)

	doc, err := p.Submit(context.Background(), "memo.txt", "", "text/plain", 10, strings.NewReader("some text"))
	require.NoError(t, err)

	p.run(context.Background(), doc.ID)

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, "other", stored.DocType)
}

func TestPipelineFailureRecordsMessage(t *testing.T) {
	p, db := newTestProcessor(t, nil)

	doc, err := p.Submit(context.Background(), "gone.txt", "", "text/plain", 4, strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, p.blobs.Delete(doc.StoragePath))

	p.run(context.Background(), doc.ID)

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestReprocessClearsDerivedState(t *testing.T) {
	p, db := newTestProcessor(t, &stubClassifier{label: "research_note"})

	doc, err := p.Submit(context.Background(), "note.txt", "", "text/plain", 12, strings.NewReader("observations"))
	require.NoError(t, err)

	p.run(context.Background(), doc.ID)

	require.NoError(t, p.Reprocess(context.Background(), doc.ID))

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	pages, err := db.GetPages(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	chunks, err := db.GetChunks(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestReprocessUnknownDocument(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	err := p.Reprocess(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteRemovesDocumentAndBlob(t *testing.T) {
	p, db := newTestProcessor(t, nil)
	inv := &stubInvalidator{}
	p.SetInvalidator(inv)

	doc, err := p.Submit(context.Background(), "old.txt", "", "text/plain", 8, strings.NewReader("obsolete"))
	require.NoError(t, err)

	require.NoError(t, p.Delete(context.Background(), doc.ID))

	_, err = db.GetDocument(doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = p.blobs.Open(doc.StoragePath)
	assert.Error(t, err)

	assert.Equal(t, 1, inv.calls)
}

func TestStatusReportsLifecycle(t *testing.T) {
	p, _ := newTestProcessor(t, nil)

	doc, err := p.Submit(context.Background(), "s.txt", "", "text/plain", 4, strings.NewReader("text"))
	require.NoError(t, err)

	status, msg, err := p.Status(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)
	assert.Empty(t, msg)

	p.run(context.Background(), doc.ID)

	status, _, err = p.Status(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
}
