package srt

import "fmt"

// Batch is a contiguous slice of a document plus its 1-based position in the
// planned sequence. Entries share backing storage with the parsed document
// and are never mutated; translation works on copies.
type Batch struct {
	Index   int     `json:"index"`
	Entries []Entry `json:"entries"`
}

// CreateBatches partitions entries into batches of exactly size entries, the
// last batch holding the remainder. A size below 1 is a caller error.
func CreateBatches(entries []Entry, size int) ([]Batch, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", size)
	}
	batches := make([]Batch, 0, (len(entries)+size-1)/size)
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		batches = append(batches, Batch{Index: len(batches) + 1, Entries: entries[i:end]})
	}
	return batches, nil
}
