// Package fileutil provides atomic file replacement and advisory locks for
// the catalog cache directory.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eunmann/dist-s1-trigger/pkg/logging"
)

// partialSuffix marks files still being written by WriteAtomic.
const partialSuffix = ".partial"

// IsNonEmpty reports whether path exists and has non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// WriteAtomic replaces path with the content write puts into f. The content is
// staged next to path and renamed over it after an fsync, so readers see
// either the old file or the complete new one.
func WriteAtomic(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*"+partialSuffix)
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	staged := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(staged)
		}
	}()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", staged, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", staged, err)
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// RemovePartial deletes files left behind by interrupted WriteAtomic calls
// under dir and returns how many were removed. Callers must hold the
// directory lock so no live writer loses its staged file.
func RemovePartial(dir string) (int, error) {
	var removed int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), partialSuffix) {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})

	if removed > 0 {
		logging.L().Debug().Int("files_removed", removed).Str("dir", dir).Msg("removed partial cache files")
	}
	return removed, err
}
