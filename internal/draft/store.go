package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/heimdex/reeldraft/internal/filestore"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/store"
)

const (
	draftsKeyPrefix = "drafts/"
	redoKey         = "redo_stack"
)

// Store persists draft metadata and the pending redo stack in a blob store.
// Deleting metadata and deleting files are separate operations: a terminal
// undo drops the metadata while the redo stack still needs the files.
type Store struct {
	blobs store.BlobStore
	files filestore.FileStore
}

func NewStore(blobs store.BlobStore, files filestore.FileStore) *Store {
	return &Store{blobs: blobs, files: files}
}

func draftsKey(mode Mode) string {
	return draftsKeyPrefix + string(mode)
}

// List returns the drafts for mode, most recently modified first.
func (s *Store) List(ctx context.Context, mode Mode) ([]Draft, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	raw, ok, err := s.blobs.Get(ctx, draftsKey(mode))
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var drafts []Draft
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil {
		return nil, fmt.Errorf("decode drafts: %w", err)
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].LastModified.After(drafts[j].LastModified)
	})
	return drafts, nil
}

// Get returns nil when the draft does not exist.
func (s *Store) Get(ctx context.Context, mode Mode, id string) (*Draft, error) {
	drafts, err := s.List(ctx, mode)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		if drafts[i].ID == id {
			return &drafts[i], nil
		}
	}
	return nil, nil
}

// Latest returns the most recently modified draft for mode, or nil.
func (s *Store) Latest(ctx context.Context, mode Mode) (*Draft, error) {
	drafts, err := s.List(ctx, mode)
	if err != nil || len(drafts) == 0 {
		return nil, err
	}
	return &drafts[0], nil
}

// Save creates or replaces d in its mode's namespace.
func (s *Store) Save(ctx context.Context, d Draft) error {
	drafts, err := s.List(ctx, d.Mode)
	if err != nil {
		return err
	}

	replaced := false
	for i := range drafts {
		if drafts[i].ID == d.ID {
			drafts[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		drafts = append(drafts, d)
	}
	return s.writeDrafts(ctx, d.Mode, drafts)
}

// DeleteMetadataOnly removes the draft record and leaves its files alone.
func (s *Store) DeleteMetadataOnly(ctx context.Context, mode Mode, id string) error {
	drafts, err := s.List(ctx, mode)
	if err != nil {
		return err
	}

	kept := drafts[:0]
	for _, d := range drafts {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(drafts) {
		return nil
	}
	return s.writeDrafts(ctx, mode, kept)
}

// DeleteFilesAndMetadata removes the draft record, every file it or a
// pending redo stack for it references, and its managed directory.
func (s *Store) DeleteFilesAndMetadata(ctx context.Context, mode Mode, id string) (int, error) {
	d, err := s.Get(ctx, mode, id)
	if err != nil {
		return 0, err
	}

	var refs []string
	if d != nil {
		refs = append(refs, recording.Refs(d.Segments)...)
	}

	redo, err := s.LoadRedo(ctx)
	if err != nil {
		return 0, err
	}
	if redo != nil && redo.DraftID == id && redo.Mode == mode {
		refs = append(refs, recording.Refs(redo.Segments)...)
	}

	if err := s.DeleteMetadataOnly(ctx, mode, id); err != nil {
		return 0, err
	}
	if redo != nil && redo.DraftID == id && redo.Mode == mode {
		if err := s.ClearRedo(ctx); err != nil {
			return 0, err
		}
	}

	var errs []error
	if err := s.files.DeleteRefs(ctx, refs); err != nil {
		errs = append(errs, err)
	}
	if err := s.files.DeleteDraftDirectory(ctx, id); err != nil {
		errs = append(errs, err)
	}
	return len(refs), errors.Join(errs...)
}

// LoadRedo returns the pending redo stack, or nil when there is none.
func (s *Store) LoadRedo(ctx context.Context) (*RedoEntry, error) {
	raw, ok, err := s.blobs.Get(ctx, redoKey)
	if err != nil {
		return nil, fmt.Errorf("read redo stack: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var entry RedoEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode redo stack: %w", err)
	}
	return &entry, nil
}

// SaveRedo replaces the pending redo stack. An empty stack clears it.
func (s *Store) SaveRedo(ctx context.Context, entry RedoEntry) error {
	if len(entry.Segments) == 0 {
		return s.ClearRedo(ctx)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode redo stack: %w", err)
	}
	if err := s.blobs.Set(ctx, redoKey, string(data)); err != nil {
		return fmt.Errorf("write redo stack: %w", err)
	}
	return nil
}

func (s *Store) ClearRedo(ctx context.Context) error {
	if err := s.blobs.Remove(ctx, redoKey); err != nil {
		return fmt.Errorf("clear redo stack: %w", err)
	}
	return nil
}

func (s *Store) writeDrafts(ctx context.Context, mode Mode, drafts []Draft) error {
	if len(drafts) == 0 {
		if err := s.blobs.Remove(ctx, draftsKey(mode)); err != nil {
			return fmt.Errorf("write drafts: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(drafts)
	if err != nil {
		return fmt.Errorf("encode drafts: %w", err)
	}
	if err := s.blobs.Set(ctx, draftsKey(mode), string(data)); err != nil {
		return fmt.Errorf("write drafts: %w", err)
	}
	return nil
}
