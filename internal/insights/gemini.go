package insights

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

// GeminiGenerator calls the Gemini generateContent endpoint once per prompt.
// It never retries.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Generate submits the prompt and returns the first candidate's text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", NewUpstreamError("request failed", err)
	}
	return FirstCandidateText(resp)
}

// FirstCandidateText extracts the text of the first candidate. Any missing
// piece of the expected shape is an error rather than an empty report.
func FirstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", NewUpstreamError("empty response", nil)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		detail := "response contained no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			detail = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", NewUpstreamError(detail, nil)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", NewUpstreamError("first candidate has no content", nil)
	}

	var b strings.Builder
	found := false
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			b.WriteString(part.Text)
			found = true
		}
	}
	if !found {
		return "", NewUpstreamError("first candidate has no text", nil)
	}
	return b.String(), nil
}
