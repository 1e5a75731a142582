package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/voicelog/internal/config"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/prompts"
)

const (
	defaultSummaryRetries = 3
	summaryRetryBaseWait  = time.Second
)

// Summarizer generates a text summary of a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, summaryType string) (string, error)
}

// SummaryClient calls an OpenAI-compatible chat completions API to turn
// transcripts into structured summaries.
type SummaryClient struct {
	client      *resty.Client
	model       string
	baseURL     string
	defaultType string
	retryCount  int
}

// NewSummaryClient creates a new summary client.
// Parameters:
//   - cfg: summary configuration with model, API key, and retry settings.
// Returns:
//   - *SummaryClient: client ready for summary generation.
func NewSummaryClient(cfg *config.SummaryConfig) *SummaryClient {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(2 * time.Minute)

	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = defaultSummaryRetries
	}

	return &SummaryClient{
		client:      client,
		model:       cfg.Model,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultType: cfg.DefaultType,
		retryCount:  retryCount,
	}
}

// Chat completions request/response structures
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Summarize generates a summary of the transcript using the prompt for the
// given summary type. Transient failures are retried with exponential
// backoff (1s, 2s, 4s); after the final attempt the error wraps
// domain.ErrSummaryUnavailable so callers can treat it as non-fatal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - transcript: transcript text to summarize.
//   - summaryType: one of the prompt types; empty uses the configured default.
// Returns:
//   - string: generated summary text.
//   - error: wraps domain.ErrSummaryUnavailable if all attempts fail.
func (c *SummaryClient) Summarize(ctx context.Context, transcript, summaryType string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("%w: empty transcript", domain.ErrSummaryUnavailable)
	}
	if summaryType == "" {
		summaryType = c.defaultType
	}

	prompt := prompts.PromptFor(summaryType)
	fullPrompt := prompt + "\n\n" + transcript

	var lastErr error
	for attempt := 0; attempt < c.retryCount; attempt++ {
		if attempt > 0 {
			wait := summaryRetryBaseWait << (attempt - 1)
			logger.CtxWarn(ctx, "summary attempt %d/%d failed, retrying in %s: %v",
				attempt, c.retryCount, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", domain.ErrSummaryUnavailable, ctx.Err())
			}
		}

		summary, err := c.generate(ctx, fullPrompt)
		if err == nil {
			return summary, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", domain.ErrSummaryUnavailable, lastErr)
}

func (c *SummaryClient) generate(ctx context.Context, fullPrompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.SummarySystemPrompt},
			{Role: "user", Content: fullPrompt},
		},
		MaxTokens:   2000,
		Temperature: 0.7,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/chat/completions")

	if err != nil {
		return "", fmt.Errorf("failed to call summary API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error.Message != "" {
			return "", fmt.Errorf("summary API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("summary API error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("summary API returned no content")
	}

	return resp.Choices[0].Message.Content, nil
}
