package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/reeldraft/internal/filestore"
	"github.com/heimdex/reeldraft/internal/logging"
	"github.com/heimdex/reeldraft/internal/observe"
	"github.com/heimdex/reeldraft/internal/recording"
)

const (
	DefaultAutosaveDelay = 1500 * time.Millisecond

	existenceCheckConcurrency = 8
)

type Config struct {
	Store         *Store
	Files         filestore.FileStore
	Logger        *slog.Logger
	Metrics       *observe.Metrics
	AutosaveDelay time.Duration
	// DefaultBudget is used when a caller passes a non-positive budget.
	DefaultBudget float64
}

// Manager is the session object for the one draft being recorded. It
// assumes a single logical writer; the mutex only guards against the
// auto-save timer and concurrent readers.
type Manager struct {
	mu sync.Mutex

	store    *Store
	files    filestore.FileStore
	logger   *slog.Logger
	metrics  *observe.Metrics
	autosave *debouncer
	now      func() time.Time

	defaultBudget float64

	mode            Mode
	segments        []recording.Segment
	redoStack       []recording.Segment
	currentDraftID  string
	originalDraftID string
	hasStartedOver  bool
	forceNewDraft   bool
	durationBudget  float64

	// seedPending is set when Load restored a redo stack without adopting
	// its draft; the first append or redo pulls the persisted segments in.
	seedPending bool

	lastPersistedSegmentCount int
	dirty                     bool
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	delay := cfg.AutosaveDelay
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}

	m := &Manager{
		store:         cfg.Store,
		files:         cfg.Files,
		logger:        logger.With("component", "draft"),
		metrics:       cfg.Metrics,
		now:           time.Now,
		defaultBudget: cfg.DefaultBudget,
		mode:          ModeCamera,
	}
	m.autosave = newDebouncer(delay, m.autosaveTick)
	return m
}

// State is a read-only view of the session.
type State struct {
	Mode               Mode                `json:"mode"`
	DraftID            string              `json:"draft_id,omitempty"`
	OriginalDraftID    string              `json:"original_draft_id,omitempty"`
	Segments           []recording.Segment `json:"segments"`
	RedoCount          int                 `json:"redo_count"`
	HasStartedOver     bool                `json:"has_started_over"`
	TotalSeconds       float64             `json:"total_seconds"`
	DurationBudget     float64             `json:"duration_budget"`
	CanUndo            bool                `json:"can_undo"`
	CanRedo            bool                `json:"can_redo"`
	AutosavePending    bool                `json:"autosave_pending"`
	LastPersistedCount int                 `json:"last_persisted_count"`
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	segs := cloneSegments(m.segments)
	if segs == nil {
		segs = []recording.Segment{}
	}
	return State{
		Mode:               m.mode,
		DraftID:            m.currentDraftID,
		OriginalDraftID:    m.originalDraftID,
		Segments:           segs,
		RedoCount:          len(m.redoStack),
		HasStartedOver:     m.hasStartedOver,
		TotalSeconds:       recording.TotalKeptSeconds(m.segments),
		DurationBudget:     m.budgetLocked(),
		CanUndo:            len(m.segments) > 0,
		CanRedo:            len(m.redoStack) > 0,
		AutosavePending:    m.autosave.Pending(),
		LastPersistedCount: m.lastPersistedSegmentCount,
	}
}

// Segments returns a copy of the live segment list.
func (m *Manager) Segments() []recording.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSegments(m.segments)
}

// TotalDurationSeconds is the kept duration of the live segments.
func (m *Manager) TotalDurationSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recording.TotalKeptSeconds(m.segments)
}

// RemainingSeconds is how much of the duration budget is left.
func (m *Manager) RemainingSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := m.budgetLocked() - recording.TotalKeptSeconds(m.segments)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Load resets the session and resumes a draft. With an explicit id only that
// draft is considered; a missing draft leaves the session empty. Without one,
// a pending redo stack for mode takes precedence over auto-resume, and only
// camera mode auto-resumes the most recent draft.
func (m *Manager) Load(ctx context.Context, explicitID string, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.autosave.Cancel()
	m.resetLocked()
	m.mode = mode

	if explicitID != "" {
		d, err := m.store.Get(ctx, mode, explicitID)
		if err != nil {
			m.logger.Warn("failed to load draft", "draft_id", explicitID, "error", err)
			m.metrics.RecordDraftOp(ctx, "load", err)
			return nil
		}
		if d == nil {
			m.logger.Info("draft not found", "draft_id", explicitID, "mode", mode)
			return nil
		}
		m.adoptLocked(ctx, *d)
		m.metrics.RecordDraftOp(ctx, "load", nil)
		return nil
	}

	if restored := m.restoreRedoLocked(ctx, ""); restored {
		m.seedPending = true
		m.logger.Info("pending redo stack found, not auto-resuming",
			"draft_id", m.originalDraftID, "redo_count", len(m.redoStack))
		m.metrics.RecordDraftOp(ctx, "load", nil)
		return nil
	}

	if mode != ModeCamera {
		return nil
	}

	latest, err := m.store.Latest(ctx, mode)
	if err != nil {
		m.logger.Warn("failed to list drafts", "mode", mode, "error", err)
		m.metrics.RecordDraftOp(ctx, "load", err)
		return nil
	}
	if latest != nil {
		m.adoptLocked(ctx, *latest)
	}
	m.metrics.RecordDraftOp(ctx, "load", nil)
	return nil
}

// AppendSegment imports seg's media into the draft's managed directory and
// appends it. A new recording makes the redo stack unreachable, so its files
// are deleted once the draft metadata is written. A failed write puts the
// media back and leaves the session and redo stack untouched.
func (m *Manager) AppendSegment(ctx context.Context, seg recording.Segment, budget float64) (recording.Segment, error) {
	if seg.MediaRef == "" {
		return recording.Segment{}, fmt.Errorf("%w: media ref is required", ErrInvalidSegment)
	}
	if seg.DurationSeconds <= 0 {
		return recording.Segment{}, fmt.Errorf("%w: duration must be positive", ErrInvalidSegment)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if seg.ID == "" {
		seg.ID = recording.NewID()
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = m.now()
	}

	if !m.forceNewDraft {
		m.seedFromStoreLocked(ctx)
	}

	snap := m.snapshotLocked()
	forceNew, prevBudget := m.forceNewDraft, m.durationBudget
	source := seg.MediaRef

	target := m.targetDraftIDLocked()
	ref, err := m.files.ImportMedia(ctx, target, source, seg.ID+filepath.Ext(source))
	if err != nil {
		m.metrics.RecordDraftOp(ctx, "append", err)
		return recording.Segment{}, fmt.Errorf("import segment: %w", err)
	}
	seg.MediaRef = ref

	stale := m.redoStack
	m.redoStack = nil
	m.segments = append(cloneSegments(m.segments), seg)
	m.currentDraftID = target
	if m.originalDraftID == "" || m.forceNewDraft {
		m.originalDraftID = target
	}
	m.forceNewDraft = false
	if budget > 0 {
		m.durationBudget = budget
	}

	if err := m.saveDraftLocked(ctx); err != nil {
		m.restoreLocked(snap)
		m.forceNewDraft, m.durationBudget = forceNew, prevBudget
		m.undoMovesLocked(ctx, []move{{from: source, to: ref}})
		m.logger.Error("append failed, state rolled back", "draft_id", target, "error", err)
		m.metrics.RecordDraftOp(ctx, "append", err)
		return recording.Segment{}, fmt.Errorf("persist draft: %w", err)
	}

	staleRefs := recording.Refs(stale)
	if pending, err := m.store.LoadRedo(ctx); err != nil {
		m.logger.Warn("failed to read redo stack", "error", err)
	} else if pending != nil && pending.Mode == m.mode {
		staleRefs = append(staleRefs, recording.Refs(pending.Segments)...)
		if err := m.store.ClearRedo(ctx); err != nil {
			m.logger.Warn("failed to clear redo stack", "error", err)
		}
	}
	m.deleteFilesLocked(ctx, m.unreferencedLocked(staleRefs), "redo_invalidated")

	m.metrics.RecordDraftOp(ctx, "append", nil)
	m.logger.Debug("segment appended", "draft_id", target, "segment_id", seg.ID, "count", len(m.segments))
	return seg, nil
}

// Undo moves the last segment onto the redo stack. When that empties the
// draft its metadata is deleted but its files stay for a later redo.
func (m *Manager) Undo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seedFromStoreLocked(ctx)
	if len(m.segments) == 0 {
		return ErrNothingToUndo
	}

	snap := m.snapshotLocked()
	last := m.segments[len(m.segments)-1]
	m.segments = cloneSegments(m.segments[:len(m.segments)-1])
	m.redoStack = append(cloneSegments(m.redoStack), last)

	draftID := m.draftIDLocked()
	err := m.store.SaveRedo(ctx, RedoEntry{DraftID: draftID, Mode: m.mode, Segments: m.redoStack})
	if err == nil {
		if len(m.segments) == 0 {
			err = m.store.DeleteMetadataOnly(ctx, m.mode, draftID)
		} else {
			err = m.saveDraftLocked(ctx)
		}
		if err != nil {
			m.restorePersistedLocked(ctx, snap)
		}
	}
	if err != nil {
		m.restoreLocked(snap)
		m.logger.Error("undo failed, state rolled back", "draft_id", draftID, "error", err)
		m.metrics.RecordDraftOp(ctx, "undo", err)
		return fmt.Errorf("undo: %w", err)
	}

	m.autosave.Cancel()
	m.lastPersistedSegmentCount = len(m.segments)
	m.dirty = false
	m.metrics.RecordDraftOp(ctx, "undo", nil)
	return nil
}

// Redo appends the most recently undone segment again, recreating the draft
// metadata under the original id if the last undo deleted it.
func (m *Manager) Redo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.redoStack) == 0 {
		return ErrNothingToRedo
	}

	m.seedFromStoreLocked(ctx)
	snap := m.snapshotLocked()
	seg := m.redoStack[len(m.redoStack)-1]
	m.redoStack = cloneSegments(m.redoStack[:len(m.redoStack)-1])

	draftID := m.draftIDLocked()
	if draftID == "" {
		draftID = NewDraftID(m.now())
	}

	if !m.files.FileExists(ctx, seg.MediaRef) {
		err := m.store.SaveRedo(ctx, RedoEntry{DraftID: draftID, Mode: m.mode, Segments: m.redoStack})
		if err != nil {
			m.restoreLocked(snap)
			m.metrics.RecordDraftOp(ctx, "redo", err)
			return fmt.Errorf("redo: %w", err)
		}
		m.logger.Warn("redo target media missing, dropped", "segment_id", seg.ID)
		m.metrics.RecordSegmentsPruned(ctx, 1)
		m.metrics.RecordDraftOp(ctx, "redo", ErrMediaMissing)
		return fmt.Errorf("redo: %w", ErrMediaMissing)
	}

	m.segments = append(cloneSegments(m.segments), seg)
	m.currentDraftID = draftID
	if m.originalDraftID == "" {
		m.originalDraftID = draftID
	}

	err := m.saveDraftLocked(ctx)
	if err == nil {
		err = m.store.SaveRedo(ctx, RedoEntry{DraftID: draftID, Mode: m.mode, Segments: m.redoStack})
		if err != nil {
			m.restorePersistedLocked(ctx, snap)
		}
	}
	if err != nil {
		m.restoreLocked(snap)
		m.logger.Error("redo failed, state rolled back", "draft_id", draftID, "error", err)
		m.metrics.RecordDraftOp(ctx, "redo", err)
		return fmt.Errorf("redo: %w", err)
	}

	m.autosave.Cancel()
	m.metrics.RecordDraftOp(ctx, "redo", nil)
	return nil
}

// SetTrim changes a live segment's trim points. The change is persisted by
// the next auto-save pass.
func (m *Manager) SetTrim(segmentID string, inMs, outMs *int64) (recording.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.segments {
		if s.ID != segmentID {
			continue
		}
		trimmed, err := s.WithTrim(inMs, outMs)
		if err != nil {
			return recording.Segment{}, fmt.Errorf("%w: %w", ErrInvalidSegment, err)
		}
		segs := cloneSegments(m.segments)
		segs[i] = trimmed
		m.segments = segs
		m.dirty = true
		m.autosave.Schedule()
		return trimmed, nil
	}
	return recording.Segment{}, ErrSegmentNotFound
}

// StartOver clears the session but keeps the original draft id, so the next
// recording may reuse it. Files are only removed on Close.
func (m *Manager) StartOver() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.autosave.Cancel()
	m.segments = nil
	m.redoStack = nil
	m.currentDraftID = ""
	m.hasStartedOver = true
	m.forceNewDraft = false
	m.lastPersistedSegmentCount = 0
	m.dirty = false
}

// StartNew abandons the current draft; the next appended segment mints a new
// draft id. The abandoned draft stays persisted.
func (m *Manager) StartNew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.autosave.Cancel()
	m.segments = nil
	m.redoStack = nil
	m.currentDraftID = ""
	m.originalDraftID = ""
	m.forceNewDraft = true
	m.lastPersistedSegmentCount = 0
	m.dirty = false
}

// SaveAsDraft persists the live segments and clears the session. The draft
// is updated in place unless the user started over or forceNew is set, in
// which case it is saved under a new id and its media moves with it.
func (m *Manager) SaveAsDraft(ctx context.Context, budget float64, forceNew bool) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.segments) == 0 {
		return nil, ErrNothingToSave
	}
	if budget > 0 {
		m.durationBudget = budget
	}

	snap := m.snapshotLocked()
	prevID := m.currentDraftID
	var moves []move

	inPlace := m.currentDraftID != "" && !m.hasStartedOver && !forceNew
	if !inPlace {
		id := m.draftIDLocked()
		if forceNew || id == "" {
			id = NewDraftID(m.now())
		}
		var err error
		moves, err = m.rehomeLocked(ctx, id)
		if err != nil {
			m.restoreLocked(snap)
			m.metrics.RecordDraftOp(ctx, "save", err)
			return nil, fmt.Errorf("save draft: %w", err)
		}
		m.currentDraftID = id
	}

	if err := m.saveDraftLocked(ctx); err != nil {
		m.undoMovesLocked(ctx, moves)
		m.restoreLocked(snap)
		m.logger.Error("save draft failed, state rolled back", "error", err)
		m.metrics.RecordDraftOp(ctx, "save", err)
		return nil, fmt.Errorf("save draft: %w", err)
	}

	if prevID != "" && prevID != m.currentDraftID {
		if err := m.store.DeleteMetadataOnly(ctx, m.mode, prevID); err != nil {
			m.logger.Warn("failed to drop superseded draft", "draft_id", prevID, "error", err)
		}
	}

	saved, err := m.store.Get(ctx, m.mode, m.currentDraftID)
	if err != nil || saved == nil {
		saved = &Draft{ID: m.currentDraftID, Mode: m.mode, Segments: cloneSegments(m.segments)}
	}

	m.discardRedoLocked(ctx, "draft_saved")
	m.autosave.Cancel()
	m.resetLocked()
	m.metrics.RecordDraftOp(ctx, "save", nil)
	m.logger.Info("draft saved", "draft_id", saved.ID, "segments", len(saved.Segments))
	return saved, nil
}

// Flush runs a pending auto-save immediately.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.autosave.Cancel()
	return m.persistIfNeededLocked(ctx)
}

// Close tears the session down. A started-over draft that ended empty is
// deleted with its files; an empty session also discards the pending redo
// stack. Otherwise files in the draft directory that nothing references are
// swept.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	if m.autosave.Cancel() {
		if err := m.persistIfNeededLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if m.hasStartedOver && len(m.segments) == 0 && m.originalDraftID != "" {
		n, err := m.store.DeleteFilesAndMetadata(ctx, m.mode, m.originalDraftID)
		if err != nil {
			m.logger.Warn("failed to delete started-over draft", "draft_id", m.originalDraftID, "error", err)
			errs = append(errs, err)
		}
		m.metrics.RecordFilesDeleted(ctx, "started_over", n)
	}

	if len(m.segments) == 0 {
		m.discardRedoLocked(ctx, "closed_empty")
	} else if m.currentDraftID != "" {
		if err := m.sweepOrphansLocked(ctx, m.currentDraftID); err != nil {
			errs = append(errs, err)
		}
	}

	m.resetLocked()
	err := errors.Join(errs...)
	m.metrics.RecordDraftOp(ctx, "close", err)
	return err
}

// Teardown cancels pending auto-save without persisting.
func (m *Manager) Teardown() {
	m.autosave.Cancel()
}

func (m *Manager) autosaveTick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	if err := m.persistIfNeededLocked(ctx); err != nil {
		m.logger.Error("auto-save failed", "draft_id", m.currentDraftID, "error", err)
		m.metrics.RecordDraftOp(ctx, "autosave", err)
		return
	}
	m.metrics.RecordDraftOp(ctx, "autosave", nil)
}

func (m *Manager) persistIfNeededLocked(ctx context.Context) error {
	if len(m.segments) == 0 || m.currentDraftID == "" {
		return nil
	}
	if !m.dirty && len(m.segments) == m.lastPersistedSegmentCount {
		return nil
	}
	return m.saveDraftLocked(ctx)
}

func (m *Manager) saveDraftLocked(ctx context.Context) error {
	id := m.draftIDLocked()
	if id == "" {
		return errors.New("no draft id assigned")
	}

	now := m.now()
	d := Draft{
		ID:                  id,
		Mode:                m.mode,
		Segments:            cloneSegments(m.segments),
		TotalDurationBudget: m.budgetLocked(),
		CreatedAt:           now,
		LastModified:        now,
	}
	if existing, err := m.store.Get(ctx, m.mode, id); err != nil {
		return err
	} else if existing != nil {
		d.CreatedAt = existing.CreatedAt
	}
	if len(d.Segments) > 0 {
		d.ThumbnailRef = d.Segments[0].ThumbnailRef
	}

	if err := m.store.Save(ctx, d); err != nil {
		return err
	}
	m.lastPersistedSegmentCount = len(m.segments)
	m.dirty = false
	return nil
}

// adoptLocked makes d the live draft after dropping segments whose media no
// longer exists. A draft left with nothing is deleted from metadata storage.
func (m *Manager) adoptLocked(ctx context.Context, d Draft) {
	kept, missing := m.partitionExistingLocked(ctx, d.Segments)
	if len(missing) > 0 {
		m.logger.Warn("pruned segments with missing media",
			"draft_id", d.ID, "missing", len(missing), "kept", len(kept))
		m.metrics.RecordSegmentsPruned(ctx, len(missing))

		if len(kept) == 0 {
			if err := m.store.DeleteMetadataOnly(ctx, d.Mode, d.ID); err != nil {
				m.logger.Warn("failed to delete emptied draft", "draft_id", d.ID, "error", err)
			}
			m.restoreRedoLocked(ctx, d.ID)
			return
		}

		d.Segments = kept
		d.LastModified = m.now()
		if err := m.store.Save(ctx, d); err != nil {
			m.logger.Warn("failed to persist pruned draft", "draft_id", d.ID, "error", err)
		}
	}

	m.segments = cloneSegments(kept)
	m.currentDraftID = d.ID
	m.originalDraftID = d.ID
	m.durationBudget = d.TotalDurationBudget
	m.lastPersistedSegmentCount = len(kept)
	m.restoreRedoLocked(ctx, d.ID)
}

// restoreRedoLocked pulls the persisted redo stack for the current mode into
// memory, pruning entries whose media is gone. With draftID set, only a stack
// belonging to that draft is restored.
func (m *Manager) restoreRedoLocked(ctx context.Context, draftID string) bool {
	pending, err := m.store.LoadRedo(ctx)
	if err != nil {
		m.logger.Warn("failed to read redo stack", "error", err)
		return false
	}
	if pending == nil || pending.Mode != m.mode || len(pending.Segments) == 0 {
		return false
	}
	if draftID != "" && pending.DraftID != draftID {
		return false
	}

	kept, missing := m.partitionExistingLocked(ctx, pending.Segments)
	if len(missing) > 0 {
		m.metrics.RecordSegmentsPruned(ctx, len(missing))
		pending.Segments = kept
		if err := m.store.SaveRedo(ctx, *pending); err != nil {
			m.logger.Warn("failed to persist pruned redo stack", "error", err)
		}
	}
	if len(kept) == 0 {
		return false
	}

	m.redoStack = cloneSegments(kept)
	if m.originalDraftID == "" {
		m.originalDraftID = pending.DraftID
	}
	if m.currentDraftID == "" {
		m.currentDraftID = pending.DraftID
	}
	return true
}

// discardRedoLocked deletes the files behind both the in-memory and the
// persisted redo stacks and clears the persisted one.
func (m *Manager) discardRedoLocked(ctx context.Context, reason string) {
	refs := recording.Refs(m.redoStack)
	var redoDraftID string

	pending, err := m.store.LoadRedo(ctx)
	if err != nil {
		m.logger.Warn("failed to read redo stack", "error", err)
	} else if pending != nil && pending.Mode == m.mode {
		refs = append(refs, recording.Refs(pending.Segments)...)
		redoDraftID = pending.DraftID
		if err := m.store.ClearRedo(ctx); err != nil {
			m.logger.Warn("failed to clear redo stack", "error", err)
		}
	}
	m.redoStack = nil

	m.deleteFilesLocked(ctx, m.unreferencedLocked(refs), reason)

	if redoDraftID == "" {
		return
	}
	if d, err := m.store.Get(ctx, m.mode, redoDraftID); err == nil && d == nil {
		if err := m.files.DeleteDraftDirectory(ctx, redoDraftID); err != nil {
			m.logger.Warn("failed to remove draft directory", "draft_id", redoDraftID, "error", err)
		}
	}
}

// seedFromStoreLocked pulls the persisted segments of the draft a restored
// redo stack belongs to, so that appending to it does not overwrite them.
func (m *Manager) seedFromStoreLocked(ctx context.Context) {
	if !m.seedPending {
		return
	}
	m.seedPending = false
	if len(m.segments) > 0 {
		return
	}
	id := m.draftIDLocked()
	if id == "" {
		return
	}

	d, err := m.store.Get(ctx, m.mode, id)
	if err != nil {
		m.logger.Warn("failed to read draft behind redo stack", "draft_id", id, "error", err)
		return
	}
	if d == nil {
		return
	}
	kept, missing := m.partitionExistingLocked(ctx, d.Segments)
	if len(missing) > 0 {
		m.metrics.RecordSegmentsPruned(ctx, len(missing))
	}
	m.segments = kept
	m.lastPersistedSegmentCount = len(d.Segments)
	if d.TotalDurationBudget > 0 && m.durationBudget == 0 {
		m.durationBudget = d.TotalDurationBudget
	}
}

// partitionExistingLocked splits segs by whether their media is still on
// disk. Checks run in parallel.
func (m *Manager) partitionExistingLocked(ctx context.Context, segs []recording.Segment) (kept, missing []recording.Segment) {
	exists := make([]bool, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(existenceCheckConcurrency)
	for i, s := range segs {
		i, s := i, s
		g.Go(func() error {
			exists[i] = s.MediaRef != "" && m.files.FileExists(gctx, s.MediaRef)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range segs {
		if exists[i] {
			kept = append(kept, s)
		} else {
			missing = append(missing, s)
		}
	}
	return kept, missing
}

// sweepOrphansLocked deletes files in draftID's directory that neither the
// live segments nor a pending redo stack reference.
func (m *Manager) sweepOrphansLocked(ctx context.Context, draftID string) error {
	refs, err := m.files.ListRefs(ctx, draftID)
	if err != nil {
		return fmt.Errorf("list draft files: %w", err)
	}

	keep := make(map[string]bool)
	for _, r := range recording.Refs(m.segments) {
		keep[r] = true
	}
	for _, r := range recording.Refs(m.redoStack) {
		keep[r] = true
	}
	pending, err := m.store.LoadRedo(ctx)
	if err != nil {
		return err
	}
	if pending != nil {
		for _, r := range recording.Refs(pending.Segments) {
			keep[r] = true
		}
	}

	var orphans []string
	for _, r := range refs {
		if !keep[r] {
			orphans = append(orphans, r)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	if err := m.files.DeleteRefs(ctx, orphans); err != nil {
		return fmt.Errorf("delete orphans: %w", err)
	}
	m.logger.Info("swept orphaned files", "draft_id", draftID, "count", len(orphans))
	m.metrics.RecordFilesDeleted(ctx, "orphaned", len(orphans))
	return nil
}

// move records one file relocated by the manager.
type move struct {
	from string
	to   string
}

// rehomeLocked moves every live segment's media into draftID's directory.
// On error the files already moved are put back.
func (m *Manager) rehomeLocked(ctx context.Context, draftID string) ([]move, error) {
	if err := m.files.EnsureDirs(ctx, draftID); err != nil {
		return nil, err
	}
	segs := cloneSegments(m.segments)
	var moves []move
	for i, s := range segs {
		ref, err := m.files.ImportMedia(ctx, draftID, s.MediaRef, filepath.Base(s.MediaRef))
		if err != nil {
			m.undoMovesLocked(ctx, moves)
			return nil, err
		}
		if ref != s.MediaRef {
			moves = append(moves, move{from: s.MediaRef, to: ref})
		}
		segs[i].MediaRef = ref
	}
	m.segments = segs
	return moves, nil
}

// undoMovesLocked returns moved files to where they came from, newest first.
func (m *Manager) undoMovesLocked(ctx context.Context, moves []move) {
	ctx = context.WithoutCancel(ctx)
	for i := len(moves) - 1; i >= 0; i-- {
		mv := moves[i]
		if mv.from == mv.to {
			continue
		}
		if err := m.files.Restore(ctx, mv.to, mv.from); err != nil {
			m.logger.Error("failed to move media back", "ref", mv.to, "original", mv.from, "error", err)
		}
	}
}

func (m *Manager) deleteFilesLocked(ctx context.Context, refs []string, reason string) {
	if len(refs) == 0 {
		return
	}
	if err := m.files.DeleteRefs(ctx, refs); err != nil {
		m.logger.Warn("failed to delete files", "reason", reason, "count", len(refs), "error", err)
		return
	}
	m.metrics.RecordFilesDeleted(ctx, reason, len(refs))
}

// unreferencedLocked filters out refs still used by live segments.
func (m *Manager) unreferencedLocked(refs []string) []string {
	live := make(map[string]bool, len(m.segments))
	for _, s := range m.segments {
		live[s.MediaRef] = true
	}
	seen := make(map[string]bool, len(refs))
	var out []string
	for _, r := range refs {
		if r == "" || live[r] || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func (m *Manager) targetDraftIDLocked() string {
	if m.forceNewDraft {
		return NewDraftID(m.now())
	}
	if id := m.draftIDLocked(); id != "" {
		return id
	}
	return NewDraftID(m.now())
}

func (m *Manager) draftIDLocked() string {
	if m.currentDraftID != "" {
		return m.currentDraftID
	}
	return m.originalDraftID
}

func (m *Manager) budgetLocked() float64 {
	if m.durationBudget > 0 {
		return m.durationBudget
	}
	return m.defaultBudget
}

type snapshot struct {
	segments                  []recording.Segment
	redoStack                 []recording.Segment
	currentDraftID            string
	originalDraftID           string
	lastPersistedSegmentCount int
	dirty                     bool
}

func (m *Manager) snapshotLocked() snapshot {
	return snapshot{
		segments:                  cloneSegments(m.segments),
		redoStack:                 cloneSegments(m.redoStack),
		currentDraftID:            m.currentDraftID,
		originalDraftID:           m.originalDraftID,
		lastPersistedSegmentCount: m.lastPersistedSegmentCount,
		dirty:                     m.dirty,
	}
}

func (m *Manager) restoreLocked(s snapshot) {
	m.segments = s.segments
	m.redoStack = s.redoStack
	m.currentDraftID = s.currentDraftID
	m.originalDraftID = s.originalDraftID
	m.lastPersistedSegmentCount = s.lastPersistedSegmentCount
	m.dirty = s.dirty
}

// restorePersistedLocked best-effort rewrites storage to match s after a
// multi-step persist failed half way.
func (m *Manager) restorePersistedLocked(ctx context.Context, s snapshot) {
	id := s.currentDraftID
	if id == "" {
		id = s.originalDraftID
	}
	if err := m.store.SaveRedo(ctx, RedoEntry{DraftID: id, Mode: m.mode, Segments: s.redoStack}); err != nil {
		m.logger.Warn("failed to restore redo stack", "error", err)
	}
	if id == "" {
		return
	}

	cur := m.segments
	m.segments = s.segments
	defer func() { m.segments = cur }()

	var err error
	if len(s.segments) == 0 {
		err = m.store.DeleteMetadataOnly(ctx, m.mode, id)
	} else {
		err = m.saveDraftLocked(ctx)
	}
	if err != nil {
		m.logger.Warn("failed to restore draft metadata", "draft_id", id, "error", err)
	}
}

func (m *Manager) resetLocked() {
	m.segments = nil
	m.redoStack = nil
	m.currentDraftID = ""
	m.originalDraftID = ""
	m.hasStartedOver = false
	m.forceNewDraft = false
	m.seedPending = false
	m.durationBudget = 0
	m.lastPersistedSegmentCount = 0
	m.dirty = false
}
