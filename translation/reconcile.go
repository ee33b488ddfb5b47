package translation

import (
	"LocalTranslator/config"
	"LocalTranslator/srt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
)

// Options carries the reconciliation knobs. The ratio window and the
// first-match-wins duplicate rule are inherited heuristics; they are kept
// configurable rather than tightened.
type Options struct {
	StopSequences []string
	RatioMin      float64
	RatioMax      float64
}

func OptionsFromConfig() Options {
	return Options{
		StopSequences: config.TheConfig.StopSequences,
		RatioMin:      config.TheConfig.ReconcileRatioMin,
		RatioMax:      config.TheConfig.ReconcileRatioMax,
	}
}

var markerRegex = regexp.MustCompile(`\[(\d+)\]`)

// Reconcile maps raw model output back onto a batch. The result always has
// the same cardinality and number set as the batch: entries the response does
// not account for keep their original text. The second return value is the
// number of entries that fell back that way.
//
// Pure function: no shared state, no side effects.
func Reconcile(batch srt.Batch, raw string, opts Options) ([]srt.Entry, int) {
	clean := CleanResponse(raw, opts.StopSequences)

	originals := make(map[int]srt.Entry, len(batch.Entries))
	numbers := mapset.NewThreadUnsafeSet[int]()
	for _, e := range batch.Entries {
		originals[e.Number] = e
		numbers.Add(e.Number)
	}

	translated := make(map[int]srt.Entry, len(originals))

	// Primary path: [n] markers, content running to the next marker or end of
	// text. RE2 has no lookahead, so the spans come from marker positions.
	// The first occurrence of a number wins.
	locs := markerRegex.FindAllStringSubmatchIndex(clean, -1)
	for i, loc := range locs {
		number, err := strconv.Atoi(clean[loc[2]:loc[3]])
		if err != nil || !numbers.Contains(number) {
			continue
		}
		if _, ok := translated[number]; ok {
			continue
		}
		end := len(clean)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		entry := originals[number]
		entry.Text = strings.TrimSpace(clean[loc[1]:end])
		translated[number] = entry
	}

	// The line fallback only runs when the response carries no [n] markers
	// at all; markers outside the batch leave their entries to gap-fill.
	if len(locs) == 0 {
		reconcileByLines(batch.Entries, clean, opts, translated)
	}

	gaps := 0
	for number, entry := range originals {
		if _, ok := translated[number]; !ok {
			translated[number] = entry
			gaps++
		}
	}

	out := make([]srt.Entry, 0, len(translated))
	for _, e := range translated {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, gaps
}

// reconcileByLines is the markerless fallback. It only trusts the response
// when the line count is within the ratio window of the batch size; outside
// the window every entry is left for gap-filling.
func reconcileByLines(entries []srt.Entry, clean string, opts Options, translated map[int]srt.Entry) {
	lines := make([]string, 0)
	for _, line := range strings.Split(clean, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(entries) == 0 || len(lines) == 0 {
		return
	}
	ratio := float64(len(lines)) / float64(len(entries))
	if ratio < opts.RatioMin || ratio > opts.RatioMax {
		return
	}
	assigned := lines
	if len(lines) != len(entries) {
		assigned = mergeSentences(lines)
	}
	for i, entry := range entries {
		if i >= len(assigned) {
			break
		}
		entry.Text = assigned[i]
		translated[entry.Number] = entry
	}
}

// mergeSentences joins lines into sentences: a line starting with an
// uppercase letter opens a new sentence, everything else accumulates into the
// current one.
func mergeSentences(lines []string) []string {
	sentences := make([]string, 0, len(lines))
	current := ""
	for _, line := range lines {
		r, _ := utf8.DecodeRuneInString(line)
		switch {
		case unicode.IsUpper(r) && current != "":
			sentences = append(sentences, strings.TrimSpace(current))
			current = line
		case current == "":
			current = line
		default:
			current += " " + line
		}
	}
	if current != "" {
		sentences = append(sentences, strings.TrimSpace(current))
	}
	return sentences
}
