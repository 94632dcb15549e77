package edl

import "github.com/heimdex/reeldraft/internal/recording"

// Build lays the kept range of each segment end to end on the new timeline.
//
// Original ranges are positions inside each segment's own clip, not in a
// merged original timeline. OriginalDurationMs counts every segment in full,
// trimmed or not. Cuts are implicit gaps and never appear as entries.
func Build(segments []recording.Segment) List {
	list := List{
		VideoID: EmptyVideoID,
		Entries: make([]Entry, 0, len(segments)),
	}
	if len(segments) > 0 {
		list.VideoID = segments[0].ID
	}

	var cursor int64
	for _, seg := range segments {
		in, out := seg.KeptRangeMs()
		length := out - in

		list.Entries = append(list.Entries, Entry{
			OriginalStartMs: in,
			OriginalEndMs:   out,
			NewStartMs:      cursor,
			NewEndMs:        cursor + length,
			Operation:       OpKeep,
		})

		cursor += length
		list.OriginalDurationMs += seg.FullDurationMs()
	}

	list.NewDurationMs = cursor
	return list
}
