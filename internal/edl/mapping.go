package edl

// MapPoint maps an original-timeline millisecond onto the edited timeline.
//
// Entries are scanned in stored order and the first entry whose closed range
// [OriginalStartMs, OriginalEndMs] contains ms wins, so a point on the shared
// edge of two entries belongs to whichever is listed first. The second
// return value is false when the point falls in a gap or in a cut entry.
func MapPoint(ms int64, list List) (int64, bool) {
	for _, e := range list.Entries {
		if ms < e.OriginalStartMs || ms > e.OriginalEndMs {
			continue
		}
		if e.Operation == OpCut {
			return 0, false
		}
		return e.NewStartMs + (ms - e.OriginalStartMs), true
	}
	return 0, false
}
