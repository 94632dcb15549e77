// Package draft owns recording-in-progress state: the live segment list,
// undo/redo, auto-save and cleanup of media files nothing references any
// more.
package draft

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heimdex/reeldraft/internal/recording"
)

// Mode partitions drafts into disjoint namespaces.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeUpload Mode = "upload"
)

var (
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
	ErrNothingToSave   = errors.New("draft has no segments")
	ErrInvalidMode     = errors.New("invalid draft mode")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrMediaMissing    = errors.New("segment media is missing")
	ErrInvalidSegment  = errors.New("invalid segment")
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCamera, ModeUpload:
		return Mode(s), nil
	case "":
		return ModeCamera, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) Valid() bool {
	return m == ModeCamera || m == ModeUpload
}

// Draft is the persisted form of a resumable recording.
type Draft struct {
	ID                  string              `json:"id"`
	Mode                Mode                `json:"mode"`
	Segments            []recording.Segment `json:"segments"`
	TotalDurationBudget float64             `json:"total_duration_budget"`
	CreatedAt           time.Time           `json:"created_at"`
	LastModified        time.Time           `json:"last_modified"`
	ThumbnailRef        string              `json:"thumbnail_ref,omitempty"`
}

// RedoEntry is the persisted pending redo stack. Segments are ordered with
// the most recently undone last.
type RedoEntry struct {
	DraftID  string              `json:"draft_id"`
	Mode     Mode                `json:"mode"`
	Segments []recording.Segment `json:"segments"`
}

// NewDraftID derives an id from t with a short random suffix so two drafts
// minted in the same millisecond stay distinct.
func NewDraftID(t time.Time) string {
	return fmt.Sprintf("draft_%d_%s", t.UnixMilli(), uuid.NewString()[:8])
}

func cloneSegments(segs []recording.Segment) []recording.Segment {
	if len(segs) == 0 {
		return nil
	}
	out := make([]recording.Segment, len(segs))
	copy(out, segs)
	return out
}
