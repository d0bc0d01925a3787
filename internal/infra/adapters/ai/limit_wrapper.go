package ai

import (
	"context"

	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PromptSender = (*limitedSender)(nil)

type limitedSender struct {
	inner adapter.PromptSender
	sem   chan struct{}
}

// NewLimitedSender caps the number of in-flight prompts across all workers.
// This is the process-wide provider courtesy limit; per-model pacing lives
// in the dispatch rate limiter.
func NewLimitedSender(inner adapter.PromptSender, maxConcurrent int) adapter.PromptSender {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedSender{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedSender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.SendPrompt(ctx, brand, question, model)
}
