package ai

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

var _ adapter.PromptSender = (*GeminiSender)(nil)

// GeminiSender asks Gemini models about a brand using the official SDK.
type GeminiSender struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

func NewGeminiSender(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiSender, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	if maxOut <= 0 {
		maxOut = 1024
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiSender{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiSender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	if model == "" {
		model = g.defaultModel
	}
	start := time.Now()

	result, err := g.client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(buildPrompt(brand, question)),
		&genai.GenerateContentConfig{
			MaxOutputTokens: int32(g.maxOut),
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyHTTP("gemini", apiErr.Code, apiErr.Message)
		}
		return nil, classifyTransport("gemini", err)
	}

	content := ""
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				content += part.Text
			}
		}
	}
	if content == "" {
		return nil, domain.NewClassifiedError(domain.ErrKindUnknown, errors.New("gemini: empty candidate"))
	}

	resp := extractPerception(brand, content)
	resp.LatencyMS = time.Since(start).Milliseconds()
	return &resp, nil
}
