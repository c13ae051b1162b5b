package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/metrics"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/config"
	"github.com/finsight-ai/backend/pkg/logger"
	"github.com/finsight-ai/backend/pkg/utils"
)

// Result is one retrieval hit, from either tier.
type Result struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	DocumentType  string  `json:"document_type,omitempty"`
	PageNumber    int     `json:"page_number"`
	ChunkText     string  `json:"chunk_text"`
	Score         float64 `json:"score"`
}

// Cache holds search responses keyed by query hash. Optional.
type Cache interface {
	GetSearch(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetSearch(ctx context.Context, queryHash string, response interface{}) error
}

// Engine implements two-tier retrieval: a structured full-text query over
// indexed chunks, falling back to a substring match over document titles and
// filenames when the structured query returns nothing.
type Engine struct {
	db    *sqlite.Client
	cache Cache

	defaultLimit  int
	maxLimit      int
	fallbackLimit int
	previewChars  int
}

func NewEngine(db *sqlite.Client, cfg config.SearchConfig) *Engine {
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	maxLimit := cfg.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 50
	}
	fallbackLimit := cfg.FallbackLimit
	if fallbackLimit <= 0 {
		fallbackLimit = 10
	}
	previewChars := cfg.PreviewChars
	if previewChars <= 0 {
		previewChars = 300
	}

	return &Engine{
		db:            db,
		defaultLimit:  defaultLimit,
		maxLimit:      maxLimit,
		fallbackLimit: fallbackLimit,
		previewChars:  previewChars,
	}
}

// SetCache attaches the optional response cache.
func (e *Engine) SetCache(cache Cache) {
	e.cache = cache
}

// Search returns up to limit results. Tier 2 runs if and only if tier 1
// yields an empty result set.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrInvalidInput)
	}

	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	cacheKey := utils.HashString(fmt.Sprintf("%s|%d", strings.ToLower(query), limit))
	if e.cache != nil {
		var cached []Result
		hit, err := e.cache.GetSearch(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("Search cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("search").Inc()
			return cached, nil
		}
		metrics.CacheMisses.WithLabelValues("search").Inc()
	}

	results, err := e.structuredSearch(query, limit)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		results, err = e.fallbackSearch(query)
		if err != nil {
			return nil, err
		}
		metrics.SearchTotal.WithLabelValues("fallback").Inc()
	} else {
		metrics.SearchTotal.WithLabelValues("structured").Inc()
	}

	if e.cache != nil {
		if err := e.cache.SetSearch(ctx, cacheKey, results); err != nil {
			logger.Warn("Search cache store failed", zap.Error(err))
		}
	}

	logger.Info("Search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// StructuredSearch exposes tier 1 alone, for callers (the answer
// synthesizer) that implement their own fallback when it comes back empty.
func (e *Engine) StructuredSearch(query string, limit int) ([]Result, error) {
	return e.structuredSearch(query, limit)
}

func (e *Engine) structuredSearch(query string, limit int) ([]Result, error) {
	matchQuery := BuildMatchQuery(query)
	if matchQuery == "" {
		return nil, nil
	}

	hits, err := e.db.SearchChunks(matchQuery, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			DocumentID:    h.DocID,
			DocumentTitle: h.DocTitle,
			DocumentType:  h.DocType,
			PageNumber:    h.PageNumber,
			ChunkText:     h.Text,
			Score:         h.Score,
		})
	}

	return results, nil
}

// fallbackSearch synthesizes document-level pseudo-results from a
// case-insensitive substring match over titles and filenames. Each matching
// document contributes one result previewing its first page text (or full
// text) truncated to the preview budget.
func (e *Engine) fallbackSearch(query string) ([]Result, error) {
	docs, err := e.db.SearchDocumentsByName(query, e.fallbackLimit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		preview := doc.FullText

		page, perr := e.db.GetPage(doc.ID, 1)
		if perr == nil && strings.TrimSpace(page.Text) != "" {
			preview = page.Text
		}

		if runes := []rune(preview); len(runes) > e.previewChars {
			preview = string(runes[:e.previewChars])
		}

		results = append(results, Result{
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			DocumentType:  doc.DocType,
			PageNumber:    1,
			ChunkText:     preview,
			Score:         1,
		})
	}

	return results, nil
}

// BuildMatchQuery sanitizes free text into FTS5 MATCH syntax: each
// alphanumeric term is double-quoted and the terms are OR-ed, so user
// punctuation can never produce a syntax error.
func BuildMatchQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}

	return strings.Join(quoted, " OR ")
}
