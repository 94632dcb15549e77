// Package export turns a finished segment list into a deliverable: one
// video file, its edit decision list and a transcript retimed onto it.
package export

import (
	"time"

	"github.com/heimdex/reeldraft/internal/edl"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/transcript"
)

type Request struct {
	DraftID     string                      `json:"draft_id,omitempty"`
	Mode        string                      `json:"mode,omitempty"`
	ProjectName string                      `json:"project_name,omitempty"`
	Segments    []recording.Segment         `json:"segments"`
	Quality     pipeline.Quality            `json:"quality,omitempty"`
	FrameRate   float64                     `json:"frame_rate,omitempty"`
	OutputDir   string                      `json:"output_dir,omitempty"`
	Language    string                      `json:"language,omitempty"`
	Transcript  *transcript.VideoTranscript `json:"transcript,omitempty"`
}

type Result struct {
	VideoID      string                      `json:"video_id"`
	OutputPath   string                      `json:"output_path"`
	Concatenated bool                        `json:"concatenated"`
	EDL          edl.List                    `json:"edl"`
	EDLPath      string                      `json:"edl_path,omitempty"`
	EDLValid     bool                        `json:"edl_valid"`
	EDLProblems  []string                    `json:"edl_problems,omitempty"`
	Transcript   *transcript.VideoTranscript `json:"transcript,omitempty"`
	RetimeStats  *transcript.Stats           `json:"retime_stats,omitempty"`
	Duration     time.Duration               `json:"duration"`
}
