package download

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// audioExtensions is the preference order used when a download's temp_path
// turns out to be a directory rather than a single file.
var audioExtensions = []string{".m4b", ".m4a", ".mp3", ".aax", ".aaxc", ".flac", ".ogg", ".wav"}

// Locator watches temp download directories for artifact creation so the
// pipeline can react to a finished download without pure polling; a
// directory walk is the fallback when no filesystem event arrives in time.
type Locator struct {
	fsWatcher *fsnotify.Watcher
	log       *logging.Logger
}

// NewLocator creates a Locator. Close must be called when done.
func NewLocator(log *logging.Logger) (*Locator, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("locator: create fsnotify watcher: %w", err)
	}
	return &Locator{fsWatcher: w, log: log}, nil
}

// Close releases the underlying fsnotify watcher.
func (l *Locator) Close() error {
	return l.fsWatcher.Close()
}

// Locate resolves path (the item's temp_path) to the single artifact file
// that should be converted/imported. If path is already a file, it is
// returned directly. If it is a directory, Locate waits up to timeout for
// an fsnotify create event under it; if none arrives, it falls back to a
// recursive walk and returns the largest file with a known audio
// extension in audioExtensions preference order.
func (l *Locator) Locate(path string, timeout time.Duration) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("locator: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	if err := l.fsWatcher.Add(path); err != nil {
		l.log.WithError(err).Warn("locator: failed to watch directory, falling back to walk")
		return l.walk(path)
	}
	defer l.fsWatcher.Remove(path)

	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-l.fsWatcher.Events:
			if !ok {
				return l.walk(path)
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if hasAudioExtension(event.Name) {
				return event.Name, nil
			}
		case <-l.fsWatcher.Errors:
			return l.walk(path)
		case <-deadline:
			return l.walk(path)
		}
	}
}

// walk recursively scans dir for the largest file with a known audio
// extension, in preference order.
func (l *Locator) walk(dir string) (string, error) {
	byExt := make(map[string]struct {
		path string
		size int64
	})

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		ext := extensionOf(p)
		if !isKnownAudioExtension(ext) {
			return nil
		}
		best, ok := byExt[ext]
		if !ok || info.Size() > best.size {
			byExt[ext] = struct {
				path string
				size int64
			}{path: p, size: info.Size()}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("locator: walk %s: %w", dir, err)
	}

	for _, ext := range audioExtensions {
		if found, ok := byExt[ext]; ok {
			return found.path, nil
		}
	}
	return "", fmt.Errorf("locator: no recognized audio file found under %s", dir)
}

func hasAudioExtension(name string) bool {
	return isKnownAudioExtension(extensionOf(name))
}

func isKnownAudioExtension(ext string) bool {
	for _, known := range audioExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

func extensionOf(name string) string {
	ext := filepath.Ext(name)
	for i := 0; i < len(ext); i++ {
		if ext[i] >= 'A' && ext[i] <= 'Z' {
			return toLowerASCII(ext)
		}
	}
	return ext
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
