package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/reeldraft/internal/db"
	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/edl"
	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/filestore"
	"github.com/heimdex/reeldraft/internal/logging"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/playback"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/store"
	"github.com/heimdex/reeldraft/internal/transcript"
)

type apiEnv struct {
	cfg      ServerConfig
	router   http.Handler
	token    string
	manager  *draft.Manager
	srcDir   string
	mediaDir string
}

func newAPIEnv(t *testing.T, mutate ...func(*ServerConfig)) *apiEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	logger := logging.Discard()
	blobs := store.NewSQLiteStore(database.Conn())
	mediaDir := filepath.Join(dir, "media")
	files, err := filestore.NewLocalStore(mediaDir, logger)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	drafts := draft.NewStore(blobs, files)
	manager := draft.NewManager(draft.Config{
		Store:         drafts,
		Files:         files,
		Logger:        logger,
		AutosaveDelay: time.Hour,
		DefaultBudget: 60,
	})
	t.Cleanup(manager.Teardown)

	exporter := export.NewService(export.Config{
		ExportDir:    filepath.Join(dir, "exports"),
		Concatenator: pipeline.NewStubConcatenator(logger),
		Blobs:        blobs,
		Logger:       logger,
	})

	token, err := EnsureAuthToken(context.Background(), blobs)
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}

	srcDir := filepath.Join(dir, "recordings")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatalf("failed to create recordings dir: %v", err)
	}

	cfg := ServerConfig{
		Session:   manager,
		Drafts:    drafts,
		Exporter:  exporter,
		Media:     playback.NewServer(logger, mediaDir),
		Blobs:     blobs,
		Logger:    logger,
		StartTime: time.Now(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	return &apiEnv{
		cfg:      cfg,
		router:   NewRouter(cfg),
		token:    token,
		manager:  manager,
		srcDir:   srcDir,
		mediaDir: mediaDir,
	}
}

// do sends an authenticated request from a loopback peer.
func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *apiEnv) record(t *testing.T, seconds float64) AppendSegmentRequest {
	t.Helper()
	id := recording.NewID()
	src := filepath.Join(e.srcDir, id+".mp4")
	if err := os.WriteFile(src, []byte("frames-"+id), 0o644); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}
	return AppendSegmentRequest{ID: id, DurationSeconds: seconds, MediaRef: src}
}

func (e *apiEnv) appendSegment(t *testing.T, seconds float64) recording.Segment {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/session/segments", e.record(t, seconds))
	if rr.Code != http.StatusCreated {
		t.Fatalf("append status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp AppendSegmentResponse
	decodeInto(t, rr, &resp)
	return resp.Segment
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if got, _ := body["code"].(string); got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}

type fakeProber struct {
	caps *pipeline.Capabilities
}

func (f *fakeProber) Probe(ctx context.Context) (*pipeline.Capabilities, error) {
	return f.caps, nil
}

func TestHealth_NoAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if _, ok := body["ffmpeg"]; ok {
		t.Error("ffmpeg should be omitted without a probe")
	}
}

func TestHealth_ReportsProbedFFmpeg(t *testing.T) {
	probe := pipeline.NewCachedProbe(&fakeProber{caps: &pipeline.Capabilities{
		FFmpeg:   true,
		Version:  "6.1",
		ProbedAt: time.Now(),
	}}, nil)
	if _, err := probe.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	env := newAPIEnv(t, func(c *ServerConfig) { c.Probe = probe })

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	decodeInto(t, rr, &resp)
	if resp.FFmpeg == nil || !resp.FFmpeg.Available || resp.FFmpeg.Version != "6.1" {
		t.Errorf("ffmpeg = %+v, want available 6.1", resp.FFmpeg)
	}
}

func TestMetricsRoute_Mounted(t *testing.T) {
	env := newAPIEnv(t, func(c *ServerConfig) {
		c.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		})
	})

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Errorf("metrics: status = %d body = %q", rr.Code, rr.Body.String())
	}
}

func TestSession_AppendUndoRedo(t *testing.T) {
	env := newAPIEnv(t)
	first := env.appendSegment(t, 1)
	env.appendSegment(t, 2)

	rr := env.do(t, http.MethodPost, "/session/undo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("undo status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var state draft.State
	decodeInto(t, rr, &state)
	if len(state.Segments) != 1 || state.Segments[0].ID != first.ID {
		t.Fatalf("after undo segments = %+v", state.Segments)
	}
	if !state.CanRedo || state.RedoCount != 1 {
		t.Errorf("redo state = %v/%d, want true/1", state.CanRedo, state.RedoCount)
	}

	rr = env.do(t, http.MethodPost, "/session/redo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("redo status = %d, body = %s", rr.Code, rr.Body.String())
	}
	decodeInto(t, rr, &state)
	if len(state.Segments) != 2 {
		t.Errorf("after redo segments = %d, want 2", len(state.Segments))
	}

	assertError(t, env.do(t, http.MethodPost, "/session/redo", nil), http.StatusConflict, "NOTHING_TO_REDO")
}

func TestSession_UndoEmpty(t *testing.T) {
	env := newAPIEnv(t)
	assertError(t, env.do(t, http.MethodPost, "/session/undo", nil), http.StatusConflict, "NOTHING_TO_UNDO")
}

func TestSession_AppendRejectsBadInput(t *testing.T) {
	env := newAPIEnv(t)

	req := env.record(t, 1)
	req.DurationSeconds = 0
	assertError(t, env.do(t, http.MethodPost, "/session/segments", req), http.StatusBadRequest, "INVALID_SEGMENT")

	req = env.record(t, 1)
	req.TrimInMs = recording.Int64(900)
	req.TrimOutMs = recording.Int64(100)
	assertError(t, env.do(t, http.MethodPost, "/session/segments", req), http.StatusBadRequest, "INVALID_SEGMENT")

	rr := httptest.NewRecorder()
	bad := httptest.NewRequest(http.MethodPost, "/session/segments", bytes.NewBufferString("{not json"))
	bad.Header.Set("Authorization", "Bearer "+env.token)
	env.router.ServeHTTP(rr, bad)
	assertError(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}

func TestSession_AppendRunsFillerDetection(t *testing.T) {
	env := newAPIEnv(t, func(c *ServerConfig) { c.FillerDetector = spanDetector{} })

	seg := env.appendSegment(t, 1)
	if len(seg.FillerWordSpans) != 1 || seg.FillerWordSpans[0].Word != "um" {
		t.Errorf("filler spans = %+v, want one um", seg.FillerWordSpans)
	}
}

type spanDetector struct{}

func (spanDetector) Detect(ctx context.Context, mediaRef string) ([]recording.FillerSpan, error) {
	return []recording.FillerSpan{{Word: "um", StartMs: 100, EndMs: 300, Confidence: 0.9}}, nil
}

func TestSession_Trim(t *testing.T) {
	env := newAPIEnv(t)
	seg := env.appendSegment(t, 1)

	rr := env.do(t, http.MethodPatch, "/session/segments/"+seg.ID+"/trim",
		TrimRequest{TrimInMs: recording.Int64(100), TrimOutMs: recording.Int64(800)})
	if rr.Code != http.StatusOK {
		t.Fatalf("trim status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp TrimResponse
	decodeInto(t, rr, &resp)
	if resp.Segment.TrimInMs == nil || *resp.Segment.TrimInMs != 100 {
		t.Errorf("trim_in_ms = %v, want 100", resp.Segment.TrimInMs)
	}
	if !resp.State.AutosavePending {
		t.Error("trim should schedule an auto-save")
	}

	assertError(t, env.do(t, http.MethodPatch, "/session/segments/"+seg.ID+"/trim",
		TrimRequest{TrimInMs: recording.Int64(0), TrimOutMs: recording.Int64(5000)}),
		http.StatusBadRequest, "INVALID_SEGMENT")
	assertError(t, env.do(t, http.MethodPatch, "/session/segments/nope/trim", TrimRequest{}),
		http.StatusNotFound, "SEGMENT_NOT_FOUND")
}

func TestSession_LoadInvalidMode(t *testing.T) {
	env := newAPIEnv(t)
	assertError(t, env.do(t, http.MethodPost, "/session/load", LoadSessionRequest{Mode: "studio"}),
		http.StatusBadRequest, "INVALID_MODE")
}

func TestSession_LoadResumesLatestDraft(t *testing.T) {
	env := newAPIEnv(t)
	seg := env.appendSegment(t, 1)
	if rr := env.do(t, http.MethodPost, "/session/close", nil); rr.Code != http.StatusOK {
		t.Fatalf("close status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr := env.do(t, http.MethodPost, "/session/load", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var state draft.State
	decodeInto(t, rr, &state)
	if len(state.Segments) != 1 || state.Segments[0].ID != seg.ID {
		t.Errorf("resumed segments = %+v", state.Segments)
	}
	if state.Mode != draft.ModeCamera {
		t.Errorf("mode = %q, want camera", state.Mode)
	}
}

func TestSession_SaveAndListDrafts(t *testing.T) {
	env := newAPIEnv(t)
	assertError(t, env.do(t, http.MethodPost, "/session/save", nil), http.StatusConflict, "NOTHING_TO_SAVE")

	env.appendSegment(t, 2)
	rr := env.do(t, http.MethodPost, "/session/save", SaveDraftRequest{DurationBudget: 90})
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var saved DraftSummary
	decodeInto(t, rr, &saved)
	if saved.SegmentCount != 1 || saved.DurationBudget != 90 {
		t.Errorf("saved = %+v", saved)
	}

	rr = env.do(t, http.MethodGet, "/drafts?mode=camera", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list DraftsResponse
	decodeInto(t, rr, &list)
	if len(list.Drafts) != 1 || list.Drafts[0].ID != saved.ID {
		t.Errorf("drafts = %+v, want [%s]", list.Drafts, saved.ID)
	}

	rr = env.do(t, http.MethodGet, "/drafts?mode=upload", nil)
	decodeInto(t, rr, &list)
	if len(list.Drafts) != 0 {
		t.Errorf("upload drafts = %d, want 0", len(list.Drafts))
	}
}

func TestDrafts_Delete(t *testing.T) {
	env := newAPIEnv(t)
	seg := env.appendSegment(t, 1)
	id := env.manager.State().DraftID

	assertError(t, env.do(t, http.MethodDelete, "/drafts/"+id+"?mode=camera", nil), http.StatusConflict, "DRAFT_IN_USE")

	env.do(t, http.MethodPost, "/session/start-new", nil)
	rr := env.do(t, http.MethodDelete, "/drafts/"+id+"?mode=camera", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp DeleteDraftResponse
	decodeInto(t, rr, &resp)
	if resp.DeletedFiles != 1 {
		t.Errorf("deleted_files = %d, want 1", resp.DeletedFiles)
	}
	if _, err := os.Stat(seg.MediaRef); !os.IsNotExist(err) {
		t.Errorf("media still present: %v", err)
	}

	assertError(t, env.do(t, http.MethodDelete, "/drafts/"+id+"?mode=camera", nil), http.StatusNotFound, "DRAFT_NOT_FOUND")
	assertError(t, env.do(t, http.MethodDelete, "/drafts/"+id+"?mode=tape", nil), http.StatusBadRequest, "INVALID_MODE")
}

func TestSegmentMedia(t *testing.T) {
	env := newAPIEnv(t)
	seg := env.appendSegment(t, 1)

	rr := env.do(t, http.MethodGet, "/session/segments/"+seg.ID+"/media", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("media status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "frames-"+seg.ID {
		t.Errorf("media body = %q", got)
	}

	assertError(t, env.do(t, http.MethodGet, "/session/segments/missing/media", nil), http.StatusNotFound, "SEGMENT_NOT_FOUND")

	req := httptest.NewRequest(http.MethodGet, "/session/segments/"+seg.ID+"/media?access_token="+env.token, nil)
	req.RemoteAddr = "203.0.113.9:5000"
	remote := httptest.NewRecorder()
	env.router.ServeHTTP(remote, req)
	assertError(t, remote, http.StatusForbidden, "FORBIDDEN")
}

func TestExport_LiveSession(t *testing.T) {
	env := newAPIEnv(t)
	env.appendSegment(t, 1)
	env.appendSegment(t, 1)

	tr := &transcript.VideoTranscript{
		ID:      "t1",
		VideoID: "src",
		Segments: []transcript.Segment{{
			ID: "s1", Text: "hello world", StartMs: 100, EndMs: 600,
			Words: []transcript.Word{
				{Text: "hello", StartMs: 100, EndMs: 300},
				{Text: "world", StartMs: 350, EndMs: 600},
			},
		}},
	}
	rr := env.do(t, http.MethodPost, "/export", ExportRequest{ProjectName: "demo", Transcript: tr})
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp ExportResponse
	decodeInto(t, rr, &resp)
	if !resp.Concatenated {
		t.Error("two segments should be concatenated")
	}
	if len(resp.EDL.Entries) != 2 || resp.EDL.VideoID != resp.VideoID {
		t.Errorf("edl = %+v", resp.EDL)
	}
	if resp.Transcript == nil || resp.RetimeStats == nil || resp.RetimeStats.WordsKept != 2 {
		t.Fatalf("transcript = %+v stats = %+v", resp.Transcript, resp.RetimeStats)
	}

	rr = env.do(t, http.MethodGet, "/transcripts/"+resp.VideoID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("transcript status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var stored transcript.VideoTranscript
	decodeInto(t, rr, &stored)
	if stored.ID != "t1"+transcript.RetimedSuffix || stored.VideoID != resp.VideoID {
		t.Errorf("stored transcript id/video = %s/%s", stored.ID, stored.VideoID)
	}

	assertError(t, env.do(t, http.MethodGet, "/transcripts/unknown", nil), http.StatusNotFound, "TRANSCRIPT_NOT_FOUND")
}

func TestExport_Errors(t *testing.T) {
	env := newAPIEnv(t)
	assertError(t, env.do(t, http.MethodPost, "/export", nil), http.StatusUnprocessableEntity, "NO_SEGMENTS")

	env.appendSegment(t, 1)
	assertError(t, env.do(t, http.MethodPost, "/export", ExportRequest{Quality: "ultra"}), http.StatusBadRequest, "INVALID_QUALITY")
	assertError(t, env.do(t, http.MethodPost, "/export", ExportRequest{OutputDir: "relative/dir"}), http.StatusBadRequest, "INVALID_OUTPUT_DIR")
}

func TestEDLTools(t *testing.T) {
	env := newAPIEnv(t)
	segs := []recording.Segment{
		{ID: "a", DurationSeconds: 2, MediaRef: "/clips/a.mp4"},
		{ID: "b", DurationSeconds: 1, MediaRef: "/clips/b.mp4"},
	}

	rr := env.do(t, http.MethodPost, "/edl/build", EDLBuildRequest{VideoID: "v1", Segments: segs[:1]})
	if rr.Code != http.StatusOK {
		t.Fatalf("build status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var list edl.List
	decodeInto(t, rr, &list)
	if list.VideoID != "v1" || list.NewDurationMs != 2000 || len(list.Entries) != 1 {
		t.Fatalf("built list = %+v", list)
	}

	rr = env.do(t, http.MethodPost, "/edl/validate", list)
	var valid EDLValidateResponse
	decodeInto(t, rr, &valid)
	if !valid.Valid || len(valid.Problems) != 0 {
		t.Errorf("single-entry list should validate, got %+v", valid)
	}

	broken := list
	broken.Entries = []edl.Entry{{OriginalStartMs: 500, OriginalEndMs: 100, NewStartMs: 0, NewEndMs: 400, Operation: edl.OpKeep}}
	rr = env.do(t, http.MethodPost, "/edl/validate", broken)
	decodeInto(t, rr, &valid)
	if valid.Valid || len(valid.Problems) == 0 {
		t.Errorf("inverted range should be reported, got %+v", valid)
	}

	rr = env.do(t, http.MethodPost, "/edl/map", EDLMapRequest{EDL: list, PointsMs: []int64{500, 5000}})
	var mapped EDLMapResponse
	decodeInto(t, rr, &mapped)
	if len(mapped.Points) != 2 || !mapped.Points[0].Kept || mapped.Points[0].NewMs != 500 || mapped.Points[1].Kept {
		t.Errorf("mapped = %+v", mapped.Points)
	}

	tr := transcript.VideoTranscript{
		ID: "t", VideoID: "v1",
		Segments: []transcript.Segment{{
			ID: "s", Text: "in out", StartMs: 100, EndMs: 2600,
			Words: []transcript.Word{
				{Text: "in", StartMs: 100, EndMs: 400},
				{Text: "out", StartMs: 2500, EndMs: 2600},
			},
		}},
	}
	rr = env.do(t, http.MethodPost, "/edl/retime", EDLRetimeRequest{Transcript: tr, Segments: segs[:1]})
	if rr.Code != http.StatusOK {
		t.Fatalf("retime status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var retimed EDLRetimeResponse
	decodeInto(t, rr, &retimed)
	if retimed.Stats.WordsKept != 1 || retimed.Stats.WordsDropped != 1 {
		t.Errorf("stats = %+v, want 1 kept 1 dropped", retimed.Stats)
	}
	if len(retimed.Transcript.Segments) != 1 || retimed.Transcript.Segments[0].Text != "in" {
		t.Errorf("retimed segments = %+v", retimed.Transcript.Segments)
	}

	assertError(t, env.do(t, http.MethodPost, "/edl/retime", EDLRetimeRequest{Transcript: tr}), http.StatusBadRequest, "BAD_REQUEST")

	rr = env.do(t, http.MethodPost, "/edl/cmx3600", CMX3600Request{EDL: list, Segments: segs[:1], Title: "Demo"})
	if rr.Code != http.StatusOK {
		t.Fatalf("cmx3600 status = %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.HasPrefix(body, "TITLE: Demo") {
		t.Errorf("cmx3600 body = %q", body)
	}
}
