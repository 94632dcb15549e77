// Package filestore keeps recorded media in per-draft directories under a
// managed root. The store never decides when a file is unreferenced; the
// draft manager does.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/reeldraft/internal/logging"
)

const defaultDeleteParallelism = 4

type FileStore interface {
	EnsureDirs(ctx context.Context, draftID string) error
	// ImportMedia moves sourceRef into the draft's directory and returns the
	// managed ref.
	ImportMedia(ctx context.Context, draftID, sourceRef, name string) (string, error)
	// DeleteRefs removes files; already-absent files are not an error.
	DeleteRefs(ctx context.Context, refs []string) error
	// Restore moves a managed ref back to the path it was imported from.
	Restore(ctx context.Context, ref, originalRef string) error
	DeleteDraftDirectory(ctx context.Context, draftID string) error
	FileExists(ctx context.Context, ref string) bool
	ListRefs(ctx context.Context, draftID string) ([]string, error)
}

type LocalStore struct {
	root   string
	logger *slog.Logger
}

func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid media root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LocalStore{root: abs, logger: logger}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) draftDir(draftID string) (string, error) {
	if !validDraftID(draftID) {
		return "", fmt.Errorf("invalid draft id %q", draftID)
	}
	return filepath.Join(s.root, draftID), nil
}

func (s *LocalStore) EnsureDirs(ctx context.Context, draftID string) error {
	dir, err := s.draftDir(draftID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create draft directory: %w", err)
	}
	return nil
}

func (s *LocalStore) ImportMedia(ctx context.Context, draftID, sourceRef, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.EnsureDirs(ctx, draftID); err != nil {
		return "", err
	}

	dir, _ := s.draftDir(draftID)
	clean := SanitizeName(name, 120)
	if clean == "" || clean == "." {
		clean = "segment" + filepath.Ext(sourceRef)
	}
	target := filepath.Join(dir, clean)

	if filepath.Clean(sourceRef) == target {
		return target, nil
	}

	err := os.Rename(sourceRef, target)
	if err == nil {
		return target, nil
	}
	s.logger.Debug("rename failed, falling back to copy", "source", sourceRef, "error", err)

	if err := copyFile(sourceRef, target); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to import %s: %w", filepath.Base(sourceRef), err)
	}
	if err := os.Remove(sourceRef); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove imported source", "source", sourceRef, "error", err)
	}
	return target, nil
}

func (s *LocalStore) Restore(ctx context.Context, ref, originalRef string) error {
	if filepath.Clean(ref) == filepath.Clean(originalRef) {
		return nil
	}
	if !s.owns(ref) {
		return fmt.Errorf("refusing to move %s: outside media root", filepath.Base(ref))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(originalRef), 0755); err != nil {
		return fmt.Errorf("failed to recreate %s: %w", filepath.Dir(originalRef), err)
	}
	if err := os.Rename(ref, originalRef); err == nil {
		return nil
	}
	if err := copyFile(ref, originalRef); err != nil {
		os.Remove(originalRef)
		return fmt.Errorf("failed to restore %s: %w", filepath.Base(originalRef), err)
	}
	return os.Remove(ref)
}

func (s *LocalStore) DeleteRefs(ctx context.Context, refs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultDeleteParallelism)

	for _, ref := range refs {
		ref := ref
		if ref == "" {
			continue
		}
		if !s.owns(ref) {
			s.logger.Warn("refusing to delete file outside media root", "ref", ref)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to delete %s: %w", filepath.Base(ref), err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *LocalStore) DeleteDraftDirectory(ctx context.Context, draftID string) error {
	dir, err := s.draftDir(draftID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete draft directory: %w", err)
	}
	return nil
}

func (s *LocalStore) FileExists(ctx context.Context, ref string) bool {
	if ref == "" {
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

func (s *LocalStore) ListRefs(ctx context.Context, draftID string) ([]string, error) {
	dir, err := s.draftDir(draftID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			refs = append(refs, filepath.Join(dir, e.Name()))
		}
	}
	return refs, nil
}

func (s *LocalStore) owns(ref string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(ref))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
