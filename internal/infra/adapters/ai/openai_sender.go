package ai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PromptSender = (*OpenAISender)(nil)

// OpenAISender asks OpenAI chat models about a brand through the official
// SDK. SDK errors are translated to the closed taxonomy here; callers never
// see an openai.Error.
type OpenAISender struct {
	client       openai.Client
	defaultModel string
	maxOut       int
}

func NewOpenAISender(apiKey, defaultModel string, maxOut int) (*OpenAISender, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	if maxOut <= 0 {
		maxOut = 1024
	}
	return &OpenAISender{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxOut:       maxOut,
	}, nil
}

func (o *OpenAISender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	if model == "" {
		model = o.defaultModel
	}
	start := time.Now()

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(buildPrompt(brand, question)),
		},
		MaxTokens: openai.Int(int64(o.maxOut)),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, classifyHTTP("openai", apierr.StatusCode, apierr.Message)
		}
		return nil, classifyTransport("openai", err)
	}

	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}
	if content == "" {
		return nil, domain.NewClassifiedError(domain.ErrKindUnknown, errors.New("openai: empty completion"))
	}

	resp := extractPerception(brand, content)
	resp.LatencyMS = time.Since(start).Milliseconds()
	return &resp, nil
}
