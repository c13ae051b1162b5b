package ingestion

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/pkg/logger"
)

// Placeholder texts written when real extraction is unavailable. A document
// carrying one of these still completes the pipeline with degraded content.
const (
	PDFFailurePlaceholder  = "Text extraction failed for this PDF document."
	SheetPlaceholder       = "Spreadsheet text extraction is not yet implemented."
	ImagePlaceholder       = "OCR for image documents is not yet implemented."
	UnsupportedPlaceholder = "Text extraction is not supported for this document type."
)

var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":   true,
	"application/vnd.ms-excel":                                            true,
	"text/csv":                                                            true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"image/png":  true,
	"image/jpeg": true,
	"text/html":  true,
	"text/plain": true,
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeMimeType strips content-type parameters ("text/html; charset=utf-8").
func NormalizeMimeType(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i != -1 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func IsAllowedMimeType(mimeType string) bool {
	return allowedMimeTypes[NormalizeMimeType(mimeType)]
}

// ExtractionResult is the ordered page texts produced for one document.
// Pages always holds at least one element.
type ExtractionResult struct {
	Pages     []string
	PageCount int
}

// Extractor converts raw document bytes into per-page plain text. It never
// returns an error: format-level failures degrade to placeholder pages so
// the document can still complete.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(data []byte, mimeType string) *ExtractionResult {
	switch mime := NormalizeMimeType(mimeType); mime {
	case "application/pdf":
		return e.extractPDF(data)
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"text/csv":
		return singlePage(SheetPlaceholder)
	case "image/png", "image/jpeg":
		return singlePage(ImagePlaceholder)
	case "text/html":
		return singlePage(e.extractHTML(data))
	case "text/plain":
		return singlePage(string(data))
	default:
		return singlePage(UnsupportedPlaceholder)
	}
}

// extractPDF parses the whole document once and approximates per-page text
// by slicing the full text into N contiguous, roughly equal runs. Parser
// failures (including panics from malformed files) are converted into a
// single sentinel page rather than failing the document.
func (e *Extractor) extractPDF(data []byte) (result *ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("PDF parser panicked", zap.Any("cause", r))
			result = singlePage(PDFFailurePlaceholder)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logger.Warn("Failed to parse PDF", zap.Error(err))
		return singlePage(PDFFailurePlaceholder)
	}

	pageCount := reader.NumPage()
	if pageCount < 1 {
		pageCount = 1
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		logger.Warn("Failed to extract PDF text", zap.Error(err))
		return singlePage(PDFFailurePlaceholder)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		logger.Warn("Failed to read PDF text stream", zap.Error(err))
		return singlePage(PDFFailurePlaceholder)
	}

	pages := SplitIntoPages(buf.String(), pageCount)

	logger.Info("PDF extracted",
		zap.Int("pages", pageCount),
		zap.Int("chars", buf.Len()),
	)

	return &ExtractionResult{Pages: pages, PageCount: pageCount}
}

func (e *Extractor) extractHTML(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		logger.Warn("Failed to parse HTML", zap.Error(err))
		return UnsupportedPlaceholder
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// SplitIntoPages slices text into n contiguous runs of ceil(len/n)
// characters each. This is a character-count approximation of page
// boundaries, not true per-page extraction.
func SplitIntoPages(text string, n int) []string {
	if n <= 1 {
		return []string{text}
	}

	runes := []rune(text)
	perPage := (len(runes) + n - 1) / n
	if perPage < 1 {
		perPage = 1
	}

	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := i * perPage
		if start >= len(runes) {
			pages = append(pages, "")
			continue
		}

		end := start + perPage
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, string(runes[start:end]))
	}

	return pages
}

func singlePage(text string) *ExtractionResult {
	return &ExtractionResult{Pages: []string{text}, PageCount: 1}
}
