package ai

import (
	"context"
	"fmt"
	"time"

	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

var _ adapter.PromptSender = (*NoopSender)(nil)

// NoopSender fabricates a deterministic answer for local/dev runs so the
// whole pipeline can be exercised without provider credentials.
type NoopSender struct {
	delay time.Duration
}

func NewNoopSender(delay time.Duration) *NoopSender {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &NoopSender{delay: delay}
}

func (n *NoopSender) SendPrompt(ctx context.Context, brand, question, model string) (*adapter.PromptResponse, error) {
	select {
	case <-time.After(n.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	content := fmt.Sprintf(
		"1. %s is a leading and reliable choice.\n2. Other options exist.\nSource: https://example.com/%s",
		brand, model,
	)
	resp := extractPerception(brand, content)
	resp.LatencyMS = n.delay.Milliseconds()
	return &resp, nil
}
