package transcript

import (
	"strings"
	"time"

	"github.com/heimdex/reeldraft/internal/edl"
)

// RetimedSuffix marks ids derived by Retime.
const RetimedSuffix = "_retimed"

// Stats summarises what a retiming pass kept and dropped.
type Stats struct {
	WordsKept       int `json:"words_kept"`
	WordsDropped    int `json:"words_dropped"`
	SegmentsKept    int `json:"segments_kept"`
	SegmentsDropped int `json:"segments_dropped"`
}

var now = time.Now

// Retime maps t onto the timeline described by list. Words whose start or
// end falls outside every kept range are dropped, and segments left without
// words are omitted. The input is not modified.
func Retime(t VideoTranscript, list edl.List) VideoTranscript {
	out, _ := RetimeWithStats(t, list)
	return out
}

// RetimeWithStats is Retime plus counters for what was kept.
func RetimeWithStats(t VideoTranscript, list edl.List) (VideoTranscript, Stats) {
	var stats Stats

	out := VideoTranscript{
		ID:         t.ID + RetimedSuffix,
		VideoID:    t.VideoID,
		Language:   t.Language,
		Segments:   make([]Segment, 0, len(t.Segments)),
		DurationMs: list.NewDurationMs,
		CreatedAt:  now(),
	}

	for _, seg := range t.Segments {
		words := make([]Word, 0, len(seg.Words))
		for _, w := range seg.Words {
			start, okStart := edl.MapPoint(w.StartMs, list)
			end, okEnd := edl.MapPoint(w.EndMs, list)
			if !okStart || !okEnd {
				stats.WordsDropped++
				continue
			}
			retimed := w
			retimed.StartMs = start
			retimed.EndMs = end
			words = append(words, retimed)
		}
		stats.WordsKept += len(words)

		if len(words) == 0 {
			stats.SegmentsDropped++
			continue
		}

		minStart, maxEnd := words[0].StartMs, words[0].EndMs
		texts := make([]string, len(words))
		for i, w := range words {
			if w.StartMs < minStart {
				minStart = w.StartMs
			}
			if w.EndMs > maxEnd {
				maxEnd = w.EndMs
			}
			texts[i] = w.Text
		}

		out.Segments = append(out.Segments, Segment{
			ID:      seg.ID + RetimedSuffix,
			Text:    strings.Join(texts, " "),
			StartMs: minStart,
			EndMs:   maxEnd,
			Words:   words,
		})
		stats.SegmentsKept++
	}

	return out, stats
}
