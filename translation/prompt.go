package translation

import (
	"LocalTranslator/config"
	"LocalTranslator/srt"
	"fmt"
	"strings"
	"unicode/utf8"
)

// BuildBatchBody renders a batch as "[n] text" paragraphs in batch order. The
// numbers are the contract the reconciler matches responses against.
func BuildBatchBody(entries []srt.Entry, sanitize bool) string {
	var b strings.Builder
	for _, e := range entries {
		text := e.Text
		if sanitize {
			text = srt.CleanText(text)
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", e.Number, text)
	}
	return b.String()
}

// TokenBudget sizes the generation window from the content length. Counted in
// runes: the budget tracks characters, not bytes.
func TokenBudget(content string) int {
	return utf8.RuneCountInString(content) * config.TheConfig.TokenBudgetMultiplier
}
