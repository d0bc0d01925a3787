package ai

import (
	"fmt"
	"regexp"
	"strings"

	"ai-brand-diagnosis/internal/domain/ports/adapter"
)

// Perception extraction happens here, at the adapter boundary, so the rest
// of the system only ever sees PromptResponse fields and never raw provider
// text.

var urlRe = regexp.MustCompile(`https?://[^\s)\]">]+`)

var positiveWords = []string{
	"excellent", "leading", "best", "innovative", "reliable", "trusted",
	"popular", "recommended", "strong", "top", "quality", "great",
}

var negativeWords = []string{
	"poor", "worst", "unreliable", "declining", "controversial", "weak",
	"outdated", "expensive", "complaints", "lawsuit", "avoid", "bad",
}

// buildPrompt frames the question so the answer is comparable across
// providers: a ranked discussion of alternatives with sources.
func buildPrompt(brand, question string) string {
	return fmt.Sprintf(
		"%s\n\nWhen answering, discuss the relevant brands or products in ranked order of preference, "+
			"mention %q explicitly if it is relevant, and cite any sources you rely on as URLs.",
		question, brand,
	)
}

// extractPerception fills the perception fields of a PromptResponse from
// the answer text. Heuristics only; they need the ranked-order framing that
// buildPrompt asks for.
func extractPerception(brand, content string) adapter.PromptResponse {
	resp := adapter.PromptResponse{Content: content}
	if content == "" {
		return resp
	}

	lower := strings.ToLower(content)
	lbrand := strings.ToLower(brand)

	resp.Mentioned = lbrand != "" && strings.Contains(lower, lbrand)
	if resp.Mentioned {
		resp.Rank = mentionRank(lower, lbrand)
	}
	resp.Sentiment = sentimentAround(lower, lbrand, resp.Mentioned)
	resp.Citations = dedupe(urlRe.FindAllString(content, -1))
	return resp
}

// mentionRank derives a 1-based rank from where the brand first appears in
// an enumerated answer ("1. ...", "2. ..."). Falls back to 1 when the brand
// is mentioned outside any list.
func mentionRank(lower, lbrand string) int {
	lines := strings.Split(lower, "\n")
	item := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isListItem(trimmed) {
			item++
		}
		if strings.Contains(line, lbrand) {
			if item > 0 {
				return item
			}
			return 1
		}
	}
	return 1
}

func isListItem(line string) bool {
	if line == "" {
		return false
	}
	if line[0] == '-' || line[0] == '*' {
		return true
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= '0' && c <= '9' {
			continue
		}
		return i > 0 && (c == '.' || c == ')')
	}
	return false
}

// sentimentAround scores 0..1 from a small lexicon, restricted to the
// sentences that name the brand when it is mentioned at all.
func sentimentAround(lower, lbrand string, mentioned bool) float64 {
	scope := lower
	if mentioned {
		var parts []string
		for _, s := range strings.FieldsFunc(lower, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
			if strings.Contains(s, lbrand) {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			scope = strings.Join(parts, " ")
		}
	}

	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(scope, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(scope, w)
	}
	if pos+neg == 0 {
		return 0.5
	}
	return float64(pos) / float64(pos+neg)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimRight(s, ".,;")
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
