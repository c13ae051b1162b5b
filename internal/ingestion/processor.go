package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/metrics"
	"github.com/finsight-ai/backend/internal/storage/blob"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/config"
	"github.com/finsight-ai/backend/pkg/logger"
)

// Classifier labels a document from its title and a text preview. Any error
// is logged and the document falls back to "other"; classification never
// fails a pipeline run.
type Classifier interface {
	ClassifyDocument(ctx context.Context, title, preview string) (string, error)
}

// Enricher extracts named entities from a processed document. Best-effort:
// errors are logged, never propagated.
type Enricher interface {
	EnrichDocument(ctx context.Context, docID, text string) error
}

// Invalidator drops cached search responses after the corpus changes.
type Invalidator interface {
	InvalidateSearchCache(ctx context.Context) error
}

// Processor drives the document lifecycle state machine:
// pending -> processing -> {completed, failed}. Work is fire-and-forget: a
// fixed worker pool drains a task queue, and a per-document mutex prevents
// two runs from interleaving writes for the same document.
type Processor struct {
	db          *sqlite.Client
	blobs       blob.Store
	classifier  Classifier
	enricher    Enricher
	invalidator Invalidator
	extractor   *Extractor
	chunker     *Chunker

	maxFileSize int64
	previewSize int
	workers     int

	tasks  chan string
	locks  *keyedMutex
	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

func NewProcessor(db *sqlite.Client, blobs blob.Store, classifier Classifier, cfg config.IngestionConfig) *Processor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	maxFileSize := int64(cfg.MaxFileSize)
	if maxFileSize <= 0 {
		maxFileSize = 50 * 1024 * 1024
	}

	previewSize := cfg.PreviewSize
	if previewSize <= 0 {
		previewSize = 2000
	}

	return &Processor{
		db:          db,
		blobs:       blobs,
		classifier:  classifier,
		extractor:   NewExtractor(),
		chunker:     NewChunker(cfg.ChunkSize),
		maxFileSize: maxFileSize,
		previewSize: previewSize,
		workers:     workers,
		tasks:       make(chan string, queueSize),
		locks:       newKeyedMutex(),
		stopCh:      make(chan struct{}),
	}
}

// SetEnricher attaches the optional entity enrichment collaborator.
func (p *Processor) SetEnricher(e Enricher) {
	p.enricher = e
}

// SetInvalidator attaches the optional search cache invalidator.
func (p *Processor) SetInvalidator(inv Invalidator) {
	p.invalidator = inv
}

// Start launches the background worker pool.
func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	logger.Info("Ingestion workers started", zap.Int("workers", p.workers))
}

// Stop drains no further tasks and waits for in-flight runs to finish.
func (p *Processor) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	logger.Info("Ingestion workers stopped")
}

func (p *Processor) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case docID := <-p.tasks:
			p.run(context.Background(), docID)
		}
	}
}

// Submit validates, persists the binary, creates the pending document, and
// enqueues the pipeline run. It returns immediately; callers poll Status.
func (p *Processor) Submit(ctx context.Context, filename, title, mimeType string, size int64, r io.Reader) (*models.Document, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", models.ErrInvalidInput)
	}
	if size > p.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes", models.ErrInvalidInput, p.maxFileSize)
	}
	if !IsAllowedMimeType(mimeType) {
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrInvalidInput, mimeType)
	}

	if title == "" {
		title = filename
	}

	docID := uuid.New().String()
	path := p.blobs.IssuePath(docID, filename)

	written, err := p.blobs.Save(path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		Title:       title,
		Filename:    filename,
		StoragePath: path,
		FileSize:    written,
		MimeType:    NormalizeMimeType(mimeType),
		Status:      models.StatusPending,
		UploadedAt:  time.Now(),
	}

	if err := p.db.InsertDocument(doc); err != nil {
		p.blobs.Delete(path)
		return nil, err
	}

	p.enqueue(docID)

	logger.Info("Document submitted",
		zap.String("doc_id", docID),
		zap.String("filename", filename),
		zap.Int64("bytes", written),
	)

	return doc, nil
}

// Reprocess deletes derived state and runs the pipeline again from pending.
// Safe to call in any state; the per-document lock serializes it against an
// in-flight run.
func (p *Processor) Reprocess(ctx context.Context, docID string) error {
	unlock := p.locks.lock(docID)
	defer unlock()

	if _, err := p.db.GetDocument(docID); err != nil {
		return err
	}

	if err := p.db.DeleteChunks(docID); err != nil {
		return err
	}
	if err := p.db.DeletePages(docID); err != nil {
		return err
	}
	if err := p.db.DeleteDocumentEntities(docID); err != nil {
		return err
	}
	if err := p.db.ResetDocument(docID); err != nil {
		return err
	}

	p.enqueue(docID)

	logger.Info("Document queued for reprocessing", zap.String("doc_id", docID))
	return nil
}

// Status reports the current lifecycle state and error message, if any.
func (p *Processor) Status(docID string) (models.ProcessingStatus, string, error) {
	doc, err := p.db.GetDocument(docID)
	if err != nil {
		return "", "", err
	}
	return doc.Status, doc.ErrorMessage, nil
}

// Delete removes the document, its derived records, and its stored blob.
func (p *Processor) Delete(ctx context.Context, docID string) error {
	unlock := p.locks.lock(docID)
	defer unlock()

	doc, err := p.db.GetDocument(docID)
	if err != nil {
		return err
	}

	if err := p.db.DeleteDocument(docID); err != nil {
		return err
	}

	if err := p.blobs.Delete(doc.StoragePath); err != nil {
		logger.Warn("Failed to delete blob", zap.String("doc_id", docID), zap.Error(err))
	}

	p.invalidate(ctx)
	return nil
}

func (p *Processor) enqueue(docID string) {
	select {
	case p.tasks <- docID:
	default:
		// Queue full: hand off without blocking the request path.
		go func() {
			select {
			case p.tasks <- docID:
			case <-p.stopCh:
			}
		}()
	}
}

// run executes one full pipeline pass for a document. Any unrecovered error
// marks the document failed with the error message captured; pages or chunks
// already written before the failure stay committed.
func (p *Processor) run(ctx context.Context, docID string) {
	unlock := p.locks.lock(docID)
	defer unlock()

	start := time.Now()

	doc, err := p.db.GetDocument(docID)
	if err != nil {
		logger.Error("Cannot load document for processing", zap.String("doc_id", docID), zap.Error(err))
		return
	}

	if err := p.db.UpdateDocumentStatus(docID, models.StatusProcessing, ""); err != nil {
		logger.Error("Cannot mark document processing", zap.String("doc_id", docID), zap.Error(err))
		return
	}

	if err := p.process(ctx, doc); err != nil {
		logger.Error("Document processing failed",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		metrics.ProcessingFailures.Inc()

		if uerr := p.db.UpdateDocumentStatus(docID, models.StatusFailed, err.Error()); uerr != nil {
			logger.Error("Cannot mark document failed", zap.String("doc_id", docID), zap.Error(uerr))
		}
		return
	}

	metrics.DocumentsProcessed.Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	p.invalidate(ctx)

	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (p *Processor) process(ctx context.Context, doc *models.Document) error {
	rc, err := p.blobs.Open(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read stored file: %w", err)
	}

	result := p.extractor.Extract(data, doc.MimeType)

	chunks := p.chunker.ChunkPages(result.Pages)
	for _, ch := range chunks {
		page := &models.DocumentPage{
			DocID:      doc.ID,
			PageNumber: ch.PageNumber,
			Text:       strings.TrimSpace(result.Pages[ch.PageNumber-1]),
		}
		if err := p.db.InsertPage(page); err != nil {
			return err
		}

		record := &models.DocumentChunk{
			ID:         uuid.New().String(),
			DocID:      doc.ID,
			PageNumber: ch.PageNumber,
			ChunkIndex: ch.ChunkIndex,
			Text:       ch.Text,
			TokenCount: ch.TokenCount,
			CreatedAt:  time.Now(),
		}
		if err := p.db.InsertChunk(record); err != nil {
			return err
		}
	}

	fullText := strings.TrimSpace(strings.Join(result.Pages, "\n\n"))

	docType := "other"
	if p.classifier != nil {
		preview := fullText
		if runes := []rune(preview); len(runes) > p.previewSize {
			preview = string(runes[:p.previewSize])
		}

		label, cerr := p.classifier.ClassifyDocument(ctx, doc.Title, preview)
		if cerr != nil {
			logger.Warn("Classification degraded to default label",
				zap.String("doc_id", doc.ID),
				zap.Error(cerr),
			)
		}
		if label != "" {
			docType = label
		}
	}

	if p.enricher != nil {
		if eerr := p.enricher.EnrichDocument(ctx, doc.ID, fullText); eerr != nil {
			logger.Warn("Entity enrichment failed",
				zap.String("doc_id", doc.ID),
				zap.Error(eerr),
			)
		}
	}

	return p.db.MarkDocumentCompleted(doc.ID, result.PageCount, fullText, docType)
}

func (p *Processor) invalidate(ctx context.Context) {
	if p.invalidator == nil {
		return
	}
	if err := p.invalidator.InvalidateSearchCache(ctx); err != nil {
		logger.Warn("Failed to invalidate search cache", zap.Error(err))
	}
}

// keyedMutex is a mutex per document id, closing the race between
// concurrent Run/Reprocess invocations on the same document.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
