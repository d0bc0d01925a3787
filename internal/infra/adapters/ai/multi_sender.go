package ai

import (
	"context"
	"errors"
	"strings"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

var _ adapter.PromptSender = (*MultiSender)(nil)

// MultiSender routes each prompt to a provider sender by model name. Config
// mappings win over prefix heuristics; unknown models go to the default
// provider.
type MultiSender struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.PromptSender
	modelToProvider map[string]string // model -> provider
}

// NewMultiSender does not inject any default model; it only knows a default
// provider. Each provider sender owns its own default model.
func NewMultiSender(
	defaultProvider string,
	byProvider map[string]adapter.PromptSender,
	modelToProvider map[string]string,
) *MultiSender {
	return &MultiSender{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiSender) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt") || strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiSender) pick(model string) adapter.PromptSender {
	prov := m.resolveProvider(model)
	if s := m.byProvider[prov]; s != nil {
		return s
	}
	// last resort: first available
	for _, s := range m.byProvider {
		if s != nil {
			return s
		}
	}
	return nil
}

func (m *MultiSender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	s := m.pick(model)
	if s == nil {
		return nil, domain.NewClassifiedError(domain.ErrKindInvalidAPIKey,
			errors.New("no provider configured for model "+model))
	}
	return s.SendPrompt(ctx, brand, question, model)
}
