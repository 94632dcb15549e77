// Package playback streams recorded segments and exported videos back to the
// client for preview, with byte-range support for scrubbing.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrOutsideRoots = errors.New("media path is outside the served directories")

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".m4a":  "audio/mp4",
	".jpg":  "image/jpeg",
	".png":  "image/png",
}

type MediaServer interface {
	ServeMedia(w http.ResponseWriter, r *http.Request, path string) error
}

// Server serves files that live under one of its roots, typically the draft
// media directory and the export directory.
type Server struct {
	roots  []string
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, roots ...string) *Server {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	return &Server{roots: cleaned, logger: logger}
}

// ServeMedia writes path to w, honouring Range and HEAD. A missing file is
// answered with 404 and no error; a path outside the roots returns
// ErrOutsideRoots without writing anything.
func (s *Server) ServeMedia(w http.ResponseWriter, r *http.Request, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil || !s.allowed(abs) {
		return ErrOutsideRoots
	}

	file, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "media not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "media not found", http.StatusNotFound)
		return nil
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(abs))

	br, err := ParseByteRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// Malformed ranges are ignored and the whole file is sent.
		br = nil
	}

	if br == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			if _, err := io.Copy(w, file); err != nil && s.logger != nil {
				s.logger.Debug("media copy interrupted", "error", err)
			}
		}
		return nil
	}

	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek media: %w", err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(br.Len(), 10))
	w.Header().Set("Content-Range", br.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		if _, err := io.CopyN(w, file, br.Len()); err != nil && s.logger != nil {
			s.logger.Debug("media copy interrupted", "error", err)
		}
	}
	return nil
}

func (s *Server) allowed(abs string) bool {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
