package orchestrator

import (
	"os"
	"path/filepath"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// removeEmptyParents walks up from filepath.Dir(path), removing directories
// that are now empty, stopping at root (exclusive) or at the first
// directory that still has something in it. Items land in per-download
// subdirectories under the temp roots; once the last file in one is gone,
// the subdirectory itself is leftover clutter rather than something a later
// item will reuse.
func removeEmptyParents(root, path string, log *logging.Logger) {
	if root == "" || path == "" {
		return
	}
	root = filepath.Clean(root)
	dir := filepath.Clean(filepath.Dir(path))

	for dir != root && len(dir) > len(root) && filepath.Dir(dir) != dir {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.WithField("dir", dir).WithError(err).Warn("failed to inspect directory during cleanup")
			}
			return
		}
		if len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			log.WithField("dir", dir).WithError(err).Warn("failed to remove empty directory")
			return
		}
		dir = filepath.Dir(dir)
	}
}
