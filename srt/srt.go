package srt

import (
	"regexp"
	"strconv"
	"strings"
)

// Entry is one subtitle cue. Numbers are expected to be unique within a
// document but uniqueness is not enforced; slice order is the display order.
type Entry struct {
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Text   string `json:"text"`
}

// SkippedBlock records a block that failed the SRT grammar, with 1-based line
// positions in the original input and the raw text that was dropped.
type SkippedBlock struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Reason    string `json:"reason"`
	Content   string `json:"content,omitempty"`
}

type ParseResult struct {
	Entries []Entry        `json:"entries"`
	Skipped []SkippedBlock `json:"skipped,omitempty"`
}

// TimeRangeRegex matches lines like "00:00:01,000 --> 00:00:05,000". Anchored
// at the start only; trailing content after the range is dropped at parse.
var TimeRangeRegex = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)

// Parse splits raw SRT text on blank-line boundaries and accepts blocks of at
// least three lines whose first line is a bare number and whose second line is
// a timestamp range. Rejected blocks are reported in Skipped instead of being
// dropped silently.
func Parse(raw string) ParseResult {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	result := ParseResult{Entries: make([]Entry, 0)}
	var block []string
	blockStart := 0

	flush := func(end int) {
		entry, reason := parseBlock(block)
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedBlock{
				StartLine: blockStart + 1,
				EndLine:   end,
				Reason:    reason,
				Content:   strings.Join(block, "\n"),
			})
			return
		}
		result.Entries = append(result.Entries, entry)
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(block) > 0 {
				flush(i)
				block = nil
			}
			continue
		}
		if len(block) == 0 {
			blockStart = i
		}
		block = append(block, line)
	}
	if len(block) > 0 {
		flush(len(lines))
	}
	return result
}

func parseBlock(block []string) (Entry, string) {
	if len(block) < 3 {
		return Entry{}, "block has fewer than 3 lines"
	}
	number, ok := parseNumber(strings.TrimSpace(block[0]))
	if !ok {
		return Entry{}, "first line is not a subtitle number"
	}
	m := TimeRangeRegex.FindStringSubmatch(block[1])
	if m == nil {
		return Entry{}, "second line is not a timestamp range"
	}
	return Entry{
		Number: number,
		Start:  m[1],
		End:    m[2],
		Text:   strings.Join(block[2:], "\n"),
	}, ""
}

func parseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Format serializes entries back to SRT text. This is the exact inverse of
// Parse only for fully well-formed input; anything Parse dropped or trimmed
// stays lost.
func Format(entries []Entry) string {
	parts := make([]string, 0, len(entries)*4)
	for _, e := range entries {
		parts = append(parts,
			strconv.Itoa(e.Number),
			e.Start+" --> "+e.End,
			e.Text,
			"")
	}
	return strings.Join(parts, "\n")
}

var (
	tagRegex      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	overrideRegex = regexp.MustCompile(`\{\\[^}]*\}`)
	spaceRegex    = regexp.MustCompile(`[ \t]+`)
)

// CleanText strips inline markup that tends to leak into model output: HTML
// style tags, ASS override blocks, and runs of spaces. Line breaks survive.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = tagRegex.ReplaceAllString(line, "")
		line = overrideRegex.ReplaceAllString(line, "")
		line = spaceRegex.ReplaceAllString(line, " ")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
