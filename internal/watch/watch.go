// Package watch follows an exported character file and reports each change
// of its content.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the file must stay quiet before it is read.
const DefaultSettle = 100 * time.Millisecond

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ChangeFunc receives the new content of the watched file.
type ChangeFunc func(data []byte)

// Watcher reports content changes of a single file.
type Watcher struct {
	path     string
	settle   time.Duration
	logger   *slog.Logger
	onChange ChangeFunc

	last string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher for path. The content present when Run starts is
// the baseline and is not reported.
func New(path string, onChange ChangeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		settle:   DefaultSettle,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that editors replacing the file by rename are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(w.path), err)
	}
	if data, err := os.ReadFile(w.path); err == nil {
		w.last = Checksum(data)
	}

	w.logger.Info("watch: started", slog.String("path", w.path))

	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(w.settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("watch: stopped")
			return nil

		case <-settleCh:
			w.check()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// check reads the file and reports it when the checksum moved.
func (w *Watcher) check() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("watch: read failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	sum := Checksum(data)
	if sum == w.last {
		w.logger.Debug("watch: unchanged", slog.String("path", w.path))
		return
	}
	w.last = sum
	w.logger.Debug("watch: changed", slog.String("path", w.path), slog.String("checksum", sum))
	w.onChange(data)
}
