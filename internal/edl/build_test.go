package edl

import (
	"testing"

	"github.com/heimdex/reeldraft/internal/recording"
)

func TestBuild_TrimmedSegments(t *testing.T) {
	segs := []recording.Segment{
		{ID: "a", DurationSeconds: 3, TrimInMs: recording.Int64(0), TrimOutMs: recording.Int64(3000)},
		{ID: "b", DurationSeconds: 2, TrimInMs: recording.Int64(500), TrimOutMs: recording.Int64(2500)},
	}

	list := Build(segs)

	want := []Entry{
		{OriginalStartMs: 0, OriginalEndMs: 3000, NewStartMs: 0, NewEndMs: 3000, Operation: OpKeep},
		{OriginalStartMs: 500, OriginalEndMs: 2500, NewStartMs: 3000, NewEndMs: 5000, Operation: OpKeep},
	}
	if len(list.Entries) != len(want) {
		t.Fatalf("len(Entries) = %d, want %d", len(list.Entries), len(want))
	}
	for i := range want {
		if list.Entries[i] != want[i] {
			t.Errorf("Entries[%d] = %+v, want %+v", i, list.Entries[i], want[i])
		}
	}
	if list.NewDurationMs != 5000 {
		t.Errorf("NewDurationMs = %d, want 5000", list.NewDurationMs)
	}
	if list.VideoID != "a" {
		t.Errorf("VideoID = %q, want a", list.VideoID)
	}
}

func TestBuild_OriginalDurationCountsUntrimmed(t *testing.T) {
	segs := []recording.Segment{
		{ID: "a", DurationSeconds: 4, TrimInMs: recording.Int64(1000), TrimOutMs: recording.Int64(2000)},
		{ID: "b", DurationSeconds: 1},
	}

	list := Build(segs)

	if list.OriginalDurationMs != 5000 {
		t.Errorf("OriginalDurationMs = %d, want 5000", list.OriginalDurationMs)
	}
	if list.NewDurationMs != 2000 {
		t.Errorf("NewDurationMs = %d, want 2000", list.NewDurationMs)
	}
}

func TestBuild_UntrimmedIsContiguous(t *testing.T) {
	durations := []float64{1.5, 2, 0.25, 7}
	segs := make([]recording.Segment, len(durations))
	var wantTotal int64
	for i, d := range durations {
		segs[i] = recording.Segment{ID: recording.NewID(), DurationSeconds: d}
		wantTotal += int64(d * 1000)
	}

	list := Build(segs)

	if len(list.Entries) != len(segs) {
		t.Fatalf("len(Entries) = %d, want %d", len(list.Entries), len(segs))
	}
	var cursor int64
	for i, e := range list.Entries {
		if e.Operation != OpKeep {
			t.Errorf("Entries[%d].Operation = %s, want keep", i, e.Operation)
		}
		if e.NewStartMs != cursor {
			t.Errorf("Entries[%d].NewStartMs = %d, want %d", i, e.NewStartMs, cursor)
		}
		cursor = e.NewEndMs
	}
	if list.NewDurationMs != wantTotal {
		t.Errorf("NewDurationMs = %d, want %d", list.NewDurationMs, wantTotal)
	}
}

func TestBuild_Empty(t *testing.T) {
	list := Build(nil)

	if len(list.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(list.Entries))
	}
	if list.NewDurationMs != 0 || list.OriginalDurationMs != 0 {
		t.Errorf("durations = %d/%d, want 0/0", list.OriginalDurationMs, list.NewDurationMs)
	}
	if list.VideoID != EmptyVideoID {
		t.Errorf("VideoID = %q, want %q", list.VideoID, EmptyVideoID)
	}
}
