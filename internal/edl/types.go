// Package edl builds, validates and queries edit decision lists over
// recorded segments.
package edl

// Operation tags what an entry does to its original range.
type Operation string

const (
	OpKeep Operation = "keep"
	OpCut  Operation = "cut"
	OpMove Operation = "move"
)

// EmptyVideoID is the video id of a list built from no segments.
const EmptyVideoID = "empty"

// Entry maps one original range onto the edited timeline.
type Entry struct {
	OriginalStartMs int64     `json:"original_start_ms"`
	OriginalEndMs   int64     `json:"original_end_ms"`
	NewStartMs      int64     `json:"new_start_ms"`
	NewEndMs        int64     `json:"new_end_ms"`
	Operation       Operation `json:"operation"`
}

// OriginalDurationMs is the length of the entry's original range.
func (e Entry) OriginalDurationMs() int64 {
	return e.OriginalEndMs - e.OriginalStartMs
}

// List is an edit decision list. Entries are in play order, which is not
// necessarily sorted by original start.
type List struct {
	VideoID            string  `json:"video_id"`
	Entries            []Entry `json:"entries"`
	OriginalDurationMs int64   `json:"original_duration_ms"`
	NewDurationMs      int64   `json:"new_duration_ms"`
}

func (o Operation) valid() bool {
	switch o {
	case OpKeep, OpCut, OpMove:
		return true
	default:
		return false
	}
}
