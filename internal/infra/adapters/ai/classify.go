package ai

import (
	"errors"
	"fmt"
	"strings"

	"ai-brand-diagnosis/internal/domain"
)

// classifyHTTP maps a provider HTTP status onto the closed error taxonomy.
// Quota exhaustion rides on 429 with a quota marker in the body, the way
// OpenAI-compatible gateways report it.
func classifyHTTP(provider string, status int, body string) error {
	base := fmt.Errorf("%s http %d", provider, status)
	switch {
	case status == 401 || status == 403:
		return domain.NewClassifiedError(domain.ErrKindInvalidAPIKey, base)
	case status == 429:
		if strings.Contains(strings.ToLower(body), "quota") {
			return domain.NewClassifiedError(domain.ErrKindQuotaExhausted, base)
		}
		return domain.NewClassifiedError(domain.ErrKindRateLimited, base)
	case status == 408 || status == 504:
		return domain.NewClassifiedError(domain.ErrKindTimeout, base)
	default:
		return domain.NewClassifiedError(domain.ErrKindUnknown, base)
	}
}

// classifyTransport tags non-HTTP failures (dial errors, cancelled
// contexts) so they still carry a kind.
func classifyTransport(provider string, err error) error {
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return domain.NewClassifiedError(domain.KindOf(err), fmt.Errorf("%s: %w", provider, err))
}
