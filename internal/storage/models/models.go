package models

import "time"

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// DocumentTypes is the classification taxonomy. The classifier must return
// one of these labels; anything else is coerced to "other".
var DocumentTypes = []string{
	"annual_report",
	"quarterly_earnings",
	"concall_transcript",
	"industry_report",
	"research_note",
	"investor_presentation",
	"regulatory_filing",
	"other",
}

func IsValidDocumentType(label string) bool {
	for _, t := range DocumentTypes {
		if t == label {
			return true
		}
	}
	return false
}

type Document struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Filename     string           `json:"filename"`
	StoragePath  string           `json:"-"`
	FileSize     int64            `json:"file_size"`
	MimeType     string           `json:"mime_type"`
	Status       ProcessingStatus `json:"status"`
	PageCount    int              `json:"page_count"`
	FullText     string           `json:"-"`
	DocType      string           `json:"doc_type,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	KeyTopics    []string         `json:"key_topics,omitempty"`
	Sentiment    string           `json:"sentiment,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	UploadedAt   time.Time        `json:"uploaded_at"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
}

type DocumentPage struct {
	DocID      string `json:"doc_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// DocumentChunk is one retrievable unit of page text. No dense vector is
// attached; retrieval runs over the FTS index.
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocID      string    `json:"doc_id"`
	PageNumber int       `json:"page_number"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type Citation struct {
	DocumentID    string `json:"document_id,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
	PageNumber    int    `json:"page_number"`
	Excerpt       string `json:"excerpt,omitempty"`
}

type QaRecord struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	DocumentIDs []string   `json:"document_ids"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type DocumentEntity struct {
	DocID        string  `json:"doc_id"`
	EntityID     string  `json:"entity_id"`
	MentionCount int     `json:"mention_count"`
	Relevance    float64 `json:"relevance"`
}

type DocumentFilter struct {
	DocType string
	Status  string
	Search  string
}
