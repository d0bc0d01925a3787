package adapter

import "context"

// PromptResponse is what a vendor adapter returns for one
// (brand, question, model) prompt. The perception fields are extracted at
// the adapter boundary so callers never parse provider payloads.
type PromptResponse struct {
	Content   string
	LatencyMS int64
	Citations []string

	Mentioned bool
	Rank      int     // 1-based position among alternatives; 0 when absent
	Sentiment float64 // 0..1
}

// PromptSender is the port for asking an AI model how it perceives a brand.
// Implementations must return errors tagged with a domain.ErrorKind
// (via domain.ClassifiedError); callers never inspect provider messages.
type PromptSender interface {
	SendPrompt(ctx context.Context, brand, question, model string) (*PromptResponse, error)
}
