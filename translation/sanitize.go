package translation

import (
	"regexp"
	"strings"
)

var (
	slashAlternativeRegex = regexp.MustCompile(`\s*/\s*`)
	outputPrefixRegex     = regexp.MustCompile(`(?m)^Output:\s*`)
)

// CleanResponse normalizes raw model output before reconciliation: trailing
// stop sequences are stripped, "A / B" alternatives become "A" on one line and
// "B" on the next so the first stays primary, and leading "Output:" labels
// are removed from every line.
func CleanResponse(text string, stopSequences []string) string {
	out := strings.TrimSpace(text)
	for _, stop := range stopSequences {
		out = strings.TrimSpace(strings.TrimSuffix(out, stop))
	}
	out = slashAlternativeRegex.ReplaceAllString(out, "\n")
	out = outputPrefixRegex.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
