package api

import (
	"time"

	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/edl"
	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/transcript"
)

type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	UptimeS int64         `json:"uptime_s"`
	FFmpeg  *FFmpegStatus `json:"ffmpeg,omitempty"`
}

type FFmpegStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	ProbedAt  string `json:"probed_at"`
}

type LoadSessionRequest struct {
	DraftID string `json:"draft_id,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

type AppendSegmentRequest struct {
	ID              string                 `json:"id,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	MediaRef        string                 `json:"media_ref"`
	ThumbnailRef    string                 `json:"thumbnail_ref,omitempty"`
	TrimInMs        *int64                 `json:"trim_in_ms,omitempty"`
	TrimOutMs       *int64                 `json:"trim_out_ms,omitempty"`
	FillerWordSpans []recording.FillerSpan `json:"filler_word_spans,omitempty"`
	DurationBudget  float64                `json:"duration_budget,omitempty"`
}

type AppendSegmentResponse struct {
	Segment recording.Segment `json:"segment"`
	State   draft.State       `json:"state"`
}

type TrimRequest struct {
	TrimInMs  *int64 `json:"trim_in_ms"`
	TrimOutMs *int64 `json:"trim_out_ms"`
}

type TrimResponse struct {
	Segment recording.Segment `json:"segment"`
	State   draft.State       `json:"state"`
}

type SaveDraftRequest struct {
	DurationBudget float64 `json:"duration_budget,omitempty"`
	ForceNew       bool    `json:"force_new,omitempty"`
}

type DraftSummary struct {
	ID             string  `json:"id"`
	Mode           string  `json:"mode"`
	SegmentCount   int     `json:"segment_count"`
	TotalSeconds   float64 `json:"total_seconds"`
	DurationBudget float64 `json:"duration_budget"`
	ThumbnailRef   string  `json:"thumbnail_ref,omitempty"`
	CreatedAt      string  `json:"created_at"`
	LastModified   string  `json:"last_modified"`
}

type DraftsResponse struct {
	Drafts []DraftSummary `json:"drafts"`
}

type DeleteDraftResponse struct {
	DraftID      string `json:"draft_id"`
	DeletedFiles int    `json:"deleted_files"`
}

// ExportRequest exports the live session unless Segments is supplied.
type ExportRequest struct {
	ProjectName string                      `json:"project_name,omitempty"`
	Quality     string                      `json:"quality,omitempty"`
	FrameRate   float64                     `json:"frame_rate,omitempty"`
	OutputDir   string                      `json:"output_dir,omitempty"`
	Language    string                      `json:"language,omitempty"`
	Transcript  *transcript.VideoTranscript `json:"transcript,omitempty"`
	Segments    []recording.Segment         `json:"segments,omitempty"`
}

type ExportResponse struct {
	VideoID      string                      `json:"video_id"`
	OutputPath   string                      `json:"output_path"`
	Concatenated bool                        `json:"concatenated"`
	EDL          edl.List                    `json:"edl"`
	EDLPath      string                      `json:"edl_path,omitempty"`
	EDLValid     bool                        `json:"edl_valid"`
	EDLProblems  []string                    `json:"edl_problems,omitempty"`
	Transcript   *transcript.VideoTranscript `json:"transcript,omitempty"`
	RetimeStats  *transcript.Stats           `json:"retime_stats,omitempty"`
	DurationMs   int64                       `json:"duration_ms"`
}

type EDLBuildRequest struct {
	VideoID  string              `json:"video_id,omitempty"`
	Segments []recording.Segment `json:"segments"`
}

type EDLValidateResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

type EDLMapRequest struct {
	EDL      edl.List `json:"edl"`
	PointsMs []int64  `json:"points_ms"`
}

type MappedPoint struct {
	OriginalMs int64 `json:"original_ms"`
	NewMs      int64 `json:"new_ms"`
	Kept       bool  `json:"kept"`
}

type EDLMapResponse struct {
	Points []MappedPoint `json:"points"`
}

// EDLRetimeRequest retimes against EDL, or against a list built from
// Segments when EDL is absent.
type EDLRetimeRequest struct {
	Transcript transcript.VideoTranscript `json:"transcript"`
	EDL        *edl.List                  `json:"edl,omitempty"`
	Segments   []recording.Segment        `json:"segments,omitempty"`
}

type EDLRetimeResponse struct {
	Transcript transcript.VideoTranscript `json:"transcript"`
	Stats      transcript.Stats           `json:"stats"`
}

type CMX3600Request struct {
	EDL       edl.List            `json:"edl"`
	Segments  []recording.Segment `json:"segments,omitempty"`
	Title     string              `json:"title,omitempty"`
	FrameRate float64             `json:"frame_rate,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func DraftToSummary(d draft.Draft) DraftSummary {
	return DraftSummary{
		ID:             d.ID,
		Mode:           string(d.Mode),
		SegmentCount:   len(d.Segments),
		TotalSeconds:   recording.TotalKeptSeconds(d.Segments),
		DurationBudget: d.TotalDurationBudget,
		ThumbnailRef:   d.ThumbnailRef,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		LastModified:   d.LastModified.Format(time.RFC3339),
	}
}

func ExportToResponse(res *export.Result) ExportResponse {
	return ExportResponse{
		VideoID:      res.VideoID,
		OutputPath:   res.OutputPath,
		Concatenated: res.Concatenated,
		EDL:          res.EDL,
		EDLPath:      res.EDLPath,
		EDLValid:     res.EDLValid,
		EDLProblems:  res.EDLProblems,
		Transcript:   res.Transcript,
		RetimeStats:  res.RetimeStats,
		DurationMs:   res.Duration.Milliseconds(),
	}
}
