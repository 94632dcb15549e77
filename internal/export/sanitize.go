package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/reeldraft/internal/filestore"
)

var ErrInvalidOutputDir = errors.New("invalid output dir")

// ValidateOutputDir accepts only clean, existing directories without
// traversal segments.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidOutputDir)
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: output_dir cannot contain path traversal", ErrInvalidOutputDir)
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: output_dir must be clean path", ErrInvalidOutputDir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: output_dir does not exist", ErrInvalidOutputDir)
		}
		return fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: output_dir is not a directory", ErrInvalidOutputDir)
	}

	return nil
}

// fileStem names export artifacts: the sanitized project name, or "export",
// followed by the video id.
func fileStem(projectName, videoID string) string {
	name := filestore.SanitizeName(projectName, 80)
	name = strings.Trim(name, "._")
	if name == "" {
		name = "export"
	}
	return name + "_" + videoID
}
