package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/metrics"
	"github.com/finsight-ai/backend/internal/storage/models"
	"github.com/finsight-ai/backend/pkg/circuitbreaker"
	"github.com/finsight-ai/backend/pkg/logger"
	"github.com/finsight-ai/backend/pkg/retry"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type DocumentAnalysis struct {
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
	Sentiment string   `json:"sentiment"`
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			metrics.LLMTokensUsed.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// ClassifyDocument assigns one label from the document taxonomy. It always
// returns a valid label: any service error or off-taxonomy token falls back
// to "other", with the error returned for logging only.
func (c *Client) ClassifyDocument(ctx context.Context, title, preview string) (string, error) {
	systemPrompt := fmt.Sprintf(`You are a financial document classifier.
Classify the document into exactly one of these categories:
%s

Respond with exactly one lowercase word from the list above. No explanation, no punctuation.`,
		strings.Join(models.DocumentTypes, "\n"))

	userPrompt := fmt.Sprintf("Title: %s\n\nContent preview:\n%s", title, preview)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    20,
	})

	if err != nil {
		return "other", fmt.Errorf("classification failed: %w", err)
	}

	label := strings.ToLower(strings.TrimSpace(resp.Content))
	if !models.IsValidDocumentType(label) {
		logger.Warn("Classifier returned off-taxonomy label", zap.String("label", label))
		return "other", nil
	}

	logger.Info("Document classified", zap.String("label", label))
	return label, nil
}

// AnalyzeDocument produces a summary, key topics, and overall sentiment in
// one call. A response that is not parseable JSON degrades to raw text as
// the summary.
func (c *Client) AnalyzeDocument(ctx context.Context, title, content string) (*DocumentAnalysis, error) {
	systemPrompt := `You are a financial analyst. Analyze the given document and respond with a JSON object:
{"summary": "2-4 sentence summary", "key_topics": ["topic1", "topic2"], "sentiment": "positive|neutral|negative"}

Return JSON only.`

	userPrompt := fmt.Sprintf("Document title: %s\n\nDocument text:\n%s", title, content)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    600,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to analyze document: %w", err)
	}

	var analysis DocumentAnalysis
	if !DecodeJSONObject(resp.Content, &analysis) {
		analysis = DocumentAnalysis{Summary: strings.TrimSpace(resp.Content)}
	}

	logger.Info("Document analyzed",
		zap.String("title", title),
		zap.Int("topics", len(analysis.KeyTopics)),
	)

	return &analysis, nil
}

// ExplainPage generates an insight for a single page of a document.
func (c *Client) ExplainPage(ctx context.Context, title string, pageNumber int, pageText string) (string, error) {
	systemPrompt := `You are a financial analyst. Explain the key information on the given document page in plain language.
Highlight figures, trends, and anything an investor should notice. Be concise.`

	userPrompt := fmt.Sprintf("Document: %s\nPage %d:\n\n%s", title, pageNumber, pageText)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    800,
	})

	if err != nil {
		return "", fmt.Errorf("failed to explain page: %w", err)
	}

	return resp.Content, nil
}

// AnswerFromContext issues one grounded question-answering request. The
// caller supplies pre-assembled context blocks and parses the structured
// response; this method only owns the citation-format contract.
func (c *Client) AnswerFromContext(ctx context.Context, question, contextText string) (string, error) {
	systemPrompt := `You are a financial research assistant. Answer the question using ONLY the supplied document excerpts.

Rules:
1. Cite pages inline as [Page X] wherever you use them.
2. If the excerpts do not contain enough evidence, say so explicitly instead of guessing.
3. Respond with a JSON object:
{"answer": "your answer with [Page X] citations", "citations": [{"document_id": "...", "document_title": "...", "page_number": 1, "excerpt": "supporting text"}], "insufficient_evidence": false}

Return JSON only.`

	userPrompt := fmt.Sprintf("Question: %s\n\nDocument excerpts:\n%s", question, contextText)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		MaxTokens:    2048,
	})

	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	logger.Info("Answer generated",
		zap.String("question", question),
		zap.Int("response_length", len(resp.Content)),
	)

	return resp.Content, nil
}
