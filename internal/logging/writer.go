// Package logging builds the process-wide slog logger and provides the
// size-rotated file sink it writes to when log output is a file path.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupStamp = "20060102-150405"

// RotatingWriter is an io.WriteCloser that starts a fresh log file once the
// current one would grow past the configured size. Rotated files are renamed
// to <base>-<timestamp><ext>; a bounded number of backups is retained and
// backups past the age limit are removed.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	out      *os.File
	written  int64
	limit    int64
	backups  int
	ageLimit time.Duration
}

// NewRotatingWriter opens (or creates) the log file at path and returns a
// writer that rotates once the file exceeds maxSizeMB megabytes.
func NewRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		limit:    int64(maxSizeMB) * 1024 * 1024,
		backups:  maxBackups,
		ageLimit: time.Duration(maxAgeDays) * 24 * time.Hour,
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p to the current log file, rotating first when the write
// would push the file past the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the current log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	return w.out.Close()
}

func (w *RotatingWriter) openCurrent() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.out = f
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) splitPath() (base, ext string) {
	ext = filepath.Ext(w.path)
	base = strings.TrimSuffix(w.path, ext)
	if ext == "" {
		ext = ".log"
	}
	return base, ext
}

func (w *RotatingWriter) rotate() error {
	if w.out != nil {
		w.out.Close()
	}

	base, ext := w.splitPath()
	backup := fmt.Sprintf("%s-%s%s", base, time.Now().Format(backupStamp), ext)
	os.Rename(w.path, backup) //nolint:errcheck

	if err := w.openCurrent(); err != nil {
		return err
	}

	go w.prune()
	return nil
}

// prune removes rotated backups beyond the retention count, then any that
// have outlived the age limit. Runs off the write path.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	base, ext := w.splitPath()
	prefix := filepath.Base(base) + "-"
	current := filepath.Base(w.path)

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if name == current {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			backups = append(backups, name)
		}
	}

	// Timestamped names sort oldest first.
	sort.Strings(backups)

	for len(backups) > w.backups {
		os.Remove(filepath.Join(dir, backups[0])) //nolint:errcheck
		backups = backups[1:]
	}

	cutoff := time.Now().Add(-w.ageLimit)
	for _, name := range backups {
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(full) //nolint:errcheck
		}
	}
}
