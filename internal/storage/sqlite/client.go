package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

// ChunkHit is one tier-1 full-text match joined with its owning document.
type ChunkHit struct {
	ChunkID    string
	DocID      string
	DocTitle   string
	DocType    string
	PageNumber int
	Text       string
	Score      float64
}

func NewClient(dbPath string) (*Client, error) {
	// Pragmas go in the DSN so the driver applies them to every pooled
	// connection. Foreign keys in particular are per-connection state,
	// and the delete cascades depend on them.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		page_count INTEGER DEFAULT 0,
		full_text TEXT,
		doc_type TEXT,
		summary TEXT,
		key_topics TEXT,
		sentiment TEXT,
		error_message TEXT,
		uploaded_at INTEGER NOT NULL,
		processed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);
	CREATE INDEX IF NOT EXISTS idx_documents_uploaded ON documents(uploaded_at);

	CREATE TABLE IF NOT EXISTS document_pages (
		doc_id TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		text TEXT,
		PRIMARY KEY (doc_id, page_number),
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_index USING fts5(
		chunk_id UNINDEXED,
		doc_id UNINDEXED,
		page_number UNINDEXED,
		text,
		tokenize = 'porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS qa_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		citations TEXT,
		document_ids TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qa_created ON qa_history(created_at);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE (name, type)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

	CREATE TABLE IF NOT EXISTS document_entities (
		doc_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		mention_count INTEGER NOT NULL DEFAULT 1,
		relevance REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (doc_id, entity_id),
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE,
		FOREIGN KEY (entity_id) REFERENCES entities(id)
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, title, filename, storage_path, file_size, mime_type, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Title,
		doc.Filename,
		doc.StoragePath,
		doc.FileSize,
		doc.MimeType,
		string(doc.Status),
		doc.UploadedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("filename", doc.Filename))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `
		SELECT id, title, filename, storage_path, file_size, mime_type, status, page_count,
			COALESCE(full_text, ''), COALESCE(doc_type, ''), COALESCE(summary, ''),
			COALESCE(key_topics, ''), COALESCE(sentiment, ''), COALESCE(error_message, ''),
			uploaded_at, processed_at
		FROM documents WHERE id = ?
	`

	var doc models.Document
	var status, topicsJSON string
	var uploadedAt int64
	var processedAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.Filename,
		&doc.StoragePath,
		&doc.FileSize,
		&doc.MimeType,
		&status,
		&doc.PageCount,
		&doc.FullText,
		&doc.DocType,
		&doc.Summary,
		&topicsJSON,
		&doc.Sentiment,
		&doc.ErrorMessage,
		&uploadedAt,
		&processedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.Status = models.ProcessingStatus(status)
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	if processedAt.Valid {
		t := time.Unix(processedAt.Int64, 0)
		doc.ProcessedAt = &t
	}
	if topicsJSON != "" {
		json.Unmarshal([]byte(topicsJSON), &doc.KeyTopics)
	}

	return &doc, nil
}

func (c *Client) ListDocuments(filter models.DocumentFilter) ([]models.Document, error) {
	query := `
		SELECT id, title, filename, file_size, mime_type, status, page_count,
			COALESCE(doc_type, ''), COALESCE(summary, ''), COALESCE(error_message, ''), uploaded_at
		FROM documents
	`

	var conditions []string
	var args []interface{}

	if filter.DocType != "" {
		conditions = append(conditions, "doc_type = ?")
		args = append(args, filter.DocType)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(lower(title) LIKE ? OR lower(filename) LIKE ?)")
		needle := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, needle, needle)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY uploaded_at DESC"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var status string
		var uploadedAt int64

		err := rows.Scan(
			&doc.ID, &doc.Title, &doc.Filename, &doc.FileSize, &doc.MimeType,
			&status, &doc.PageCount, &doc.DocType, &doc.Summary, &doc.ErrorMessage, &uploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.Status = models.ProcessingStatus(status)
		doc.UploadedAt = time.Unix(uploadedAt, 0)
		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Client) UpdateDocumentStatus(id string, status models.ProcessingStatus, errorMessage string) error {
	query := `UPDATE documents SET status = ?, error_message = ? WHERE id = ?`

	res, err := c.db.Exec(query, string(status), nullable(errorMessage), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	logger.Debug("Document status updated",
		zap.String("doc_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

func (c *Client) MarkDocumentCompleted(id string, pageCount int, fullText, docType string) error {
	query := `
		UPDATE documents
		SET status = ?, page_count = ?, full_text = ?, doc_type = ?, error_message = NULL, processed_at = ?
		WHERE id = ?
	`

	_, err := c.db.Exec(query, string(models.StatusCompleted), pageCount, fullText, docType, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	return nil
}

// ResetDocument clears every derived field and returns the document to
// pending ahead of a reprocess run.
func (c *Client) ResetDocument(id string) error {
	query := `
		UPDATE documents
		SET status = ?, page_count = 0, full_text = NULL, doc_type = NULL,
			summary = NULL, key_topics = NULL, sentiment = NULL,
			error_message = NULL, processed_at = NULL
		WHERE id = ?
	`

	res, err := c.db.Exec(query, string(models.StatusPending), id)
	if err != nil {
		return fmt.Errorf("failed to reset document: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (c *Client) UpdateDocumentAnalysis(id, summary string, keyTopics []string, sentiment string) error {
	topicsJSON, _ := json.Marshal(keyTopics)

	query := `UPDATE documents SET summary = ?, key_topics = ?, sentiment = ? WHERE id = ?`

	res, err := c.db.Exec(query, summary, string(topicsJSON), sentiment, id)
	if err != nil {
		return fmt.Errorf("failed to update document analysis: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (c *Client) DeleteDocument(id string) error {
	if err := c.DeleteChunks(id); err != nil {
		return err
	}

	res, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	logger.Info("Document deleted", zap.String("doc_id", id))
	return nil
}

func (c *Client) CountDocuments() (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func (c *Client) InsertPage(page *models.DocumentPage) error {
	query := `INSERT INTO document_pages (doc_id, page_number, text) VALUES (?, ?, ?)`

	_, err := c.db.Exec(query, page.DocID, page.PageNumber, page.Text)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}

	return nil
}

func (c *Client) GetPages(docID string) ([]models.DocumentPage, error) {
	query := `SELECT doc_id, page_number, COALESCE(text, '') FROM document_pages WHERE doc_id = ? ORDER BY page_number`

	rows, err := c.db.Query(query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []models.DocumentPage
	for rows.Next() {
		var p models.DocumentPage
		if err := rows.Scan(&p.DocID, &p.PageNumber, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		pages = append(pages, p)
	}

	return pages, nil
}

func (c *Client) GetPage(docID string, pageNumber int) (*models.DocumentPage, error) {
	query := `SELECT doc_id, page_number, COALESCE(text, '') FROM document_pages WHERE doc_id = ? AND page_number = ?`

	var p models.DocumentPage
	err := c.db.QueryRow(query, docID, pageNumber).Scan(&p.DocID, &p.PageNumber, &p.Text)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	return &p, nil
}

func (c *Client) DeletePages(docID string) error {
	_, err := c.db.Exec(`DELETE FROM document_pages WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	return nil
}

// InsertChunk writes the chunk row and its FTS index row in one transaction
// so a chunk is never searchable without being readable, or vice versa.
func (c *Client) InsertChunk(chunk *models.DocumentChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO document_chunks (id, doc_id, page_number, chunk_index, text, token_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocID, chunk.PageNumber, chunk.ChunkIndex, chunk.Text, chunk.TokenCount, chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO chunk_index (chunk_id, doc_id, page_number, text) VALUES (?, ?, ?, ?)`,
		chunk.ID, chunk.DocID, chunk.PageNumber, chunk.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to index chunk: %w", err)
	}

	return tx.Commit()
}

func (c *Client) DeleteChunks(docID string) error {
	_, err := c.db.Exec(`DELETE FROM chunk_index WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk index rows: %w", err)
	}

	_, err = c.db.Exec(`DELETE FROM document_chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

func (c *Client) GetChunks(docID string) ([]models.DocumentChunk, error) {
	query := `
		SELECT id, doc_id, page_number, chunk_index, text, token_count, created_at
		FROM document_chunks WHERE doc_id = ? ORDER BY chunk_index
	`

	rows, err := c.db.Query(query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.DocID, &ch.PageNumber, &ch.ChunkIndex, &ch.Text, &ch.TokenCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ch.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, ch)
	}

	return chunks, nil
}

// SearchChunks runs the tier-1 structured full-text query. matchQuery must
// already be valid FTS5 MATCH syntax. Results are bm25-ordered; the returned
// score is the negated rank so that higher means more relevant.
func (c *Client) SearchChunks(matchQuery string, limit int) ([]ChunkHit, error) {
	query := `
		SELECT ci.chunk_id, ci.doc_id, d.title, COALESCE(d.doc_type, ''), ci.page_number, ci.text,
			bm25(chunk_index) AS rank
		FROM chunk_index ci
		JOIN documents d ON d.id = ci.doc_id
		WHERE chunk_index MATCH ?
		ORDER BY rank
		LIMIT ?
	`

	rows, err := c.db.Query(query, matchQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		var rank float64
		if err := rows.Scan(&h.ChunkID, &h.DocID, &h.DocTitle, &h.DocType, &h.PageNumber, &h.Text, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		h.Score = -rank
		hits = append(hits, h)
	}

	return hits, nil
}

func (c *Client) SearchDocumentsByName(substring string, limit int) ([]models.Document, error) {
	needle := "%" + strings.ToLower(substring) + "%"

	query := `
		SELECT id, title, filename, COALESCE(doc_type, ''), COALESCE(full_text, '')
		FROM documents
		WHERE lower(title) LIKE ? OR lower(filename) LIKE ?
		ORDER BY uploaded_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, needle, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.DocType, &doc.FullText); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// ListDocumentsWithText returns the most recent documents that produced any
// extracted text, for the corpus-ask fallback path.
func (c *Client) ListDocumentsWithText(limit int) ([]models.Document, error) {
	query := `
		SELECT id, title, filename, COALESCE(doc_type, ''), full_text
		FROM documents
		WHERE full_text IS NOT NULL AND trim(full_text) != ''
		ORDER BY uploaded_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents with text: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.DocType, &doc.FullText); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Client) InsertQaRecord(record *models.QaRecord) error {
	citationsJSON, _ := json.Marshal(record.Citations)
	docIDsJSON, _ := json.Marshal(record.DocumentIDs)

	query := `
		INSERT INTO qa_history (id, question, answer, citations, document_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.Question,
		record.Answer,
		string(citationsJSON),
		string(docIDsJSON),
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert qa record: %w", err)
	}

	logger.Info("Question recorded",
		zap.String("qa_id", record.ID),
		zap.Int("citations", len(record.Citations)),
		zap.Int("documents", len(record.DocumentIDs)),
	)

	return nil
}

func (c *Client) GetQaHistory(limit int) ([]models.QaRecord, error) {
	query := `
		SELECT id, question, answer, COALESCE(citations, '[]'), COALESCE(document_ids, '[]'), created_at
		FROM qa_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get qa history: %w", err)
	}
	defer rows.Close()

	var records []models.QaRecord
	for rows.Next() {
		var r models.QaRecord
		var citationsJSON, docIDsJSON string
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &citationsJSON, &docIDsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(citationsJSON), &r.Citations)
		json.Unmarshal([]byte(docIDsJSON), &r.DocumentIDs)
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) UpsertEntity(entity *models.Entity) (string, error) {
	query := `
		INSERT INTO entities (id, name, type) VALUES (?, ?, ?)
		ON CONFLICT(name, type) DO NOTHING
	`

	_, err := c.db.Exec(query, entity.ID, entity.Name, entity.Type)
	if err != nil {
		return "", fmt.Errorf("failed to upsert entity: %w", err)
	}

	var id string
	err = c.db.QueryRow(`SELECT id FROM entities WHERE name = ? AND type = ?`, entity.Name, entity.Type).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve entity id: %w", err)
	}

	return id, nil
}

func (c *Client) InsertDocumentEntity(link *models.DocumentEntity) error {
	query := `
		INSERT INTO document_entities (doc_id, entity_id, mention_count, relevance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id, entity_id) DO UPDATE SET
			mention_count = excluded.mention_count,
			relevance = excluded.relevance
	`

	_, err := c.db.Exec(query, link.DocID, link.EntityID, link.MentionCount, link.Relevance)
	if err != nil {
		return fmt.Errorf("failed to insert document entity: %w", err)
	}

	return nil
}

func (c *Client) DeleteDocumentEntities(docID string) error {
	_, err := c.db.Exec(`DELETE FROM document_entities WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document entities: %w", err)
	}
	return nil
}

func (c *Client) GetDocumentEntities(docID string) ([]models.Entity, error) {
	query := `
		SELECT e.id, e.name, e.type
		FROM entities e
		JOIN document_entities de ON de.entity_id = e.id
		WHERE de.doc_id = ?
		ORDER BY de.mention_count DESC
	`

	rows, err := c.db.Query(query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entities = append(entities, e)
	}

	return entities, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
