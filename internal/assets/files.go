package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/otiai10/copy"
)

// CopyAll copies every match to destDir, keeping its path relative to the glob base.
// It returns the number of files copied.
func CopyAll(ctx context.Context, matches []Match, destDir string) (int, error) {
	copied := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		dest := filepath.Join(destDir, filepath.FromSlash(m.Rel))
		if err := CopyFile(m.Path, dest); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// CopyFile copies src to dest, creating parent directories and keeping the source mode.
func CopyFile(src, dest string) error {
	if err := copy.Copy(src, dest, copy.Options{
		PermissionControl: copy.PerservePermission,
		Sync:              true,
	}); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// WriteFileAtomic replaces path with data. Readers see either the old or the
// new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, data, perm, renameio.IgnoreUmask()); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ErrUnsafeClean is returned when a clean target would escape the project.
var ErrUnsafeClean = errors.New("refusing to clean directory outside the project")

// Clean removes dir and everything below it. dir must be strictly inside root.
func Clean(root, dir string) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(rootAbs, dir)
	}
	dirAbs := filepath.Clean(dir)

	if err := CheckContained(rootAbs, dirAbs); err != nil {
		return err
	}
	if err := os.RemoveAll(dirAbs); err != nil {
		return fmt.Errorf("failed to clean %s: %w", dirAbs, err)
	}
	return nil
}

// CheckContained returns ErrUnsafeClean unless dir lies strictly below root.
func CheckContained(root, dir string) error {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsafeClean, dir)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafeClean, dir)
	}
	return nil
}
