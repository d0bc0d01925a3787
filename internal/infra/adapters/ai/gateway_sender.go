package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

// Compile-time assurance this sender satisfies the port
var _ adapter.PromptSender = (*GatewaySender)(nil)

// GatewaySender talks to any OpenAI-compatible gateway over plain HTTP.
// Chat completions path is the same as OpenAI: /chat/completions
// Authorization: Bearer <key>
type GatewaySender struct {
	apiKey string
	base   string // e.g., https://gateway.example.com/openai/v1
	model  string
	client *http.Client
}

func NewGatewaySender(apiKey, defaultModel, base string) (*GatewaySender, error) {
	if apiKey == "" {
		return nil, errors.New("gateway api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	if base == "" {
		return nil, errors.New("gateway base url empty")
	}
	return &GatewaySender{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  defaultModel,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *GatewaySender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	if model == "" {
		model = s.model
	}
	start := time.Now()

	reqBody := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: buildPrompt(brand, question)}},
	}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, classifyTransport("gateway", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport("gateway", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, classifyHTTP("gateway", httpResp.StatusCode, string(body))
	}

	var payload struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&payload); err != nil {
		return nil, classifyTransport("gateway", err)
	}

	content := ""
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			content = c.Message.Content
			break
		}
	}
	if content == "" {
		return nil, domain.NewClassifiedError(domain.ErrKindUnknown, errors.New("gateway: no choice content"))
	}

	resp := extractPerception(brand, content)
	resp.LatencyMS = time.Since(start).Milliseconds()
	return &resp, nil
}
