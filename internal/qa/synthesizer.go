package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/llm"
	"github.com/finsight-ai/backend/internal/metrics"
	"github.com/finsight-ai/backend/internal/search"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/config"
	"github.com/finsight-ai/backend/pkg/logger"
)

// Fixed responses returned without any generation-service call.
const (
	NoContentAnswer            = "No text content available for this document."
	InsufficientEvidenceAnswer = "There is not enough evidence in the indexed documents to answer this question."
)

const contextSeparator = "\n\n---\n\n"

// Generator is the text-generation service contract: one prompt in, one
// free-text response out, with the citation JSON contract embedded in the
// prompt.
type Generator interface {
	AnswerFromContext(ctx context.Context, question, contextText string) (string, error)
}

// Answer is the structured response handed back to callers.
type Answer struct {
	Answer               string            `json:"answer"`
	Citations            []models.Citation `json:"citations"`
	InsufficientEvidence bool              `json:"insufficient_evidence"`
}

// Synthesizer assembles bounded context windows from retrieved chunks or
// whole documents, issues one generation request, and parses the structured
// answer back out, recording corpus-wide exchanges in history.
type Synthesizer struct {
	db        *sqlite.Client
	search    *search.Engine
	generator Generator

	contextBudget   int
	searchLimit     int
	maxFallbackDocs int
	historyLimit    int
}

func NewSynthesizer(db *sqlite.Client, searchEngine *search.Engine, generator Generator, cfg config.QAConfig) *Synthesizer {
	contextBudget := cfg.ContextBudget
	if contextBudget <= 0 {
		contextBudget = 50000
	}
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 10
	}
	maxFallbackDocs := cfg.MaxFallbackDocs
	if maxFallbackDocs <= 0 {
		maxFallbackDocs = 5
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}

	return &Synthesizer{
		db:              db,
		search:          searchEngine,
		generator:       generator,
		contextBudget:   contextBudget,
		searchLimit:     searchLimit,
		maxFallbackDocs: maxFallbackDocs,
		historyLimit:    historyLimit,
	}
}

// AskDocument answers a question scoped to one document. Document-scoped
// exchanges are not recorded in history.
func (s *Synthesizer) AskDocument(ctx context.Context, docID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", models.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		metrics.AskDuration.WithLabelValues("document").Observe(time.Since(start).Seconds())
	}()

	if _, err := s.db.GetDocument(docID); err != nil {
		return nil, err
	}

	pages, err := s.db.GetPages(docID)
	if err != nil {
		return nil, err
	}

	var blocks []string
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Page %d]\n%s", p.PageNumber, p.Text))
	}

	if len(blocks) == 0 {
		metrics.AskTotal.WithLabelValues("document", "no_content").Inc()
		return &Answer{
			Answer:               NoContentAnswer,
			Citations:            []models.Citation{},
			InsufficientEvidence: true,
		}, nil
	}

	contextText := truncate(strings.Join(blocks, contextSeparator), s.contextBudget)

	raw, err := s.generator.AnswerFromContext(ctx, question, contextText)
	if err != nil {
		metrics.AskTotal.WithLabelValues("document", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	answer := parseAnswer(raw)
	metrics.AskTotal.WithLabelValues("document", "answered").Inc()

	logger.Info("Document question answered",
		zap.String("doc_id", docID),
		zap.Int("citations", len(answer.Citations)),
	)

	return answer, nil
}

// AskCorpus answers a question over the whole corpus. It tries chunk-level
// full-text retrieval first and falls back to whole-document context from
// the most recent documents with any extracted text. Every exchange that
// reaches the generation service is recorded in history.
func (s *Synthesizer) AskCorpus(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", models.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		metrics.AskDuration.WithLabelValues("corpus").Observe(time.Since(start).Seconds())
	}()

	count, err := s.db.CountDocuments()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		metrics.AskTotal.WithLabelValues("corpus", "no_documents").Inc()
		return insufficientEvidence(), nil
	}

	contextText, docIDs, err := s.buildCorpusContext(question)
	if err != nil {
		return nil, err
	}

	if contextText == "" {
		metrics.AskTotal.WithLabelValues("corpus", "no_content").Inc()
		return insufficientEvidence(), nil
	}

	raw, err := s.generator.AnswerFromContext(ctx, question, contextText)
	if err != nil {
		metrics.AskTotal.WithLabelValues("corpus", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	answer := parseAnswer(raw)
	metrics.AskTotal.WithLabelValues("corpus", "answered").Inc()

	record := &models.QaRecord{
		ID:          uuid.New().String(),
		Question:    question,
		Answer:      answer.Answer,
		Citations:   answer.Citations,
		DocumentIDs: docIDs,
		CreatedAt:   time.Now(),
	}
	if err := s.db.InsertQaRecord(record); err != nil {
		logger.Warn("Failed to record qa history", zap.Error(err))
	}

	return answer, nil
}

// History returns the most recent recorded exchanges.
func (s *Synthesizer) History(limit int) ([]models.QaRecord, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.db.GetQaHistory(limit)
}

// buildCorpusContext returns the assembled context and the de-duplicated
// ids of the documents it draws from. An empty context means no document
// contributed any text.
func (s *Synthesizer) buildCorpusContext(question string) (string, []string, error) {
	results, err := s.search.StructuredSearch(question, s.searchLimit)
	if err != nil {
		return "", nil, err
	}

	if len(results) > 0 {
		var blocks []string
		seen := make(map[string]bool)
		var docIDs []string

		for _, r := range results {
			blocks = append(blocks, fmt.Sprintf("[Doc: %s | Page %d]\n%s", r.DocumentTitle, r.PageNumber, r.ChunkText))
			if !seen[r.DocumentID] {
				seen[r.DocumentID] = true
				docIDs = append(docIDs, r.DocumentID)
			}
		}

		return truncate(strings.Join(blocks, contextSeparator), s.contextBudget), docIDs, nil
	}

	// Tier-1 retrieval found nothing: fall back to whole-document context.
	docs, err := s.db.ListDocumentsWithText(s.maxFallbackDocs)
	if err != nil {
		return "", nil, err
	}

	var blocks []string
	var docIDs []string

	for _, doc := range docs {
		pages, err := s.db.GetPages(doc.ID)
		if err != nil {
			return "", nil, err
		}

		contributed := false
		for _, p := range pages {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			blocks = append(blocks, fmt.Sprintf("[Doc: %s | Page %d]\n%s", doc.Title, p.PageNumber, p.Text))
			contributed = true
		}
		if !contributed && strings.TrimSpace(doc.FullText) != "" {
			blocks = append(blocks, fmt.Sprintf("[Doc: %s | Page 1]\n%s", doc.Title, doc.FullText))
			contributed = true
		}
		if contributed {
			docIDs = append(docIDs, doc.ID)
		}
	}

	if len(blocks) == 0 {
		return "", nil, nil
	}

	return truncate(strings.Join(blocks, contextSeparator), s.contextBudget), docIDs, nil
}

// parseAnswer applies the best-effort structured-output contract: a response
// that is not a parseable JSON object never fails the request; the raw text
// becomes the answer with no citations.
func parseAnswer(raw string) *Answer {
	var answer Answer
	if !llm.DecodeJSONObject(raw, &answer) {
		return &Answer{
			Answer:               strings.TrimSpace(raw),
			Citations:            []models.Citation{},
			InsufficientEvidence: false,
		}
	}

	if answer.Citations == nil {
		answer.Citations = []models.Citation{}
	}

	return &answer
}

func insufficientEvidence() *Answer {
	return &Answer{
		Answer:               InsufficientEvidenceAnswer,
		Citations:            []models.Citation{},
		InsufficientEvidence: true,
	}
}

func truncate(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}
