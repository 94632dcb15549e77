package edl

import (
	"fmt"
	"math"
	"strings"

	"github.com/heimdex/reeldraft/internal/recording"
)

// Reel names the source clip behind an entry in a CMX3600 rendering.
type Reel struct {
	ClipName  string
	MediaPath string
}

// ReelsFor names each segment's clip by its id, in the order Build emits
// entries.
func ReelsFor(segs []recording.Segment) []Reel {
	reels := make([]Reel, len(segs))
	for i, seg := range segs {
		reels[i] = Reel{ClipName: seg.ID, MediaPath: seg.MediaRef}
	}
	return reels
}

// RenderCMX3600 writes list as a CMX3600 event list. reels[i] describes the
// clip behind list.Entries[i]; missing reels render without comments. Cut
// entries are skipped.
func RenderCMX3600(list List, reels []Reel, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	event := 0
	for i, e := range list.Entries {
		if e.Operation == OpCut {
			continue
		}
		event++

		reel := fmt.Sprintf("AX%02d", event%100)
		lines = append(lines, fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s",
			event, reel, "V",
			msToTimecode(e.OriginalStartMs, fps), msToTimecode(e.OriginalEndMs, fps),
			msToTimecode(e.NewStartMs, fps), msToTimecode(e.NewEndMs, fps)))

		if i < len(reels) {
			if reels[i].ClipName != "" {
				lines = append(lines, fmt.Sprintf("* FROM CLIP NAME:  %s", reels[i].ClipName))
			}
			if reels[i].MediaPath != "" {
				lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", reels[i].MediaPath))
			}
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	f := int64(fps)
	frames := totalFrames % f
	totalSeconds := totalFrames / f
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
