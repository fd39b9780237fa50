package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vrdl/internal/logging"
)

const reloadDebounce = 200 * time.Millisecond

// FileSource reads the record from a JSON file.
type FileSource struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

// NewFileSource loads path. A missing file is not an error; the record is
// absent until the file appears.
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: filepath.Clean(path)}
	if err := s.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Path returns the watched file.
func (s *FileSource) Path() string {
	return s.path
}

// Current implements Source.
func (s *FileSource) Current() (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.cfg.Complete()
}

// Reload re-reads the file. On error the previous record is kept, except
// that a deleted file clears it.
func (s *FileSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.cfg = Config{}
			s.mu.Unlock()
		}
		return fmt.Errorf("read endpoint file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse endpoint file: %w", err)
	}
	s.mu.Lock()
	s.cfg = normalize(cfg)
	s.mu.Unlock()
	return nil
}

// Watch reloads the file on change until ctx is done. The parent directory is
// watched so editors that replace the file are handled.
func (s *FileSource) Watch(ctx context.Context, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "endpoint")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create endpoint watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				logging.WarnWithContext(logger, "endpoint reload failed", "endpoint_reload_failed",
					logging.String("path", s.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the endpoint JSON file"),
					logging.String(logging.FieldImpact, "transfers fail with missing configuration until fixed"),
				)
				continue
			}
			_, complete := s.Current()
			logger.Info("endpoint reloaded",
				logging.String("path", s.path),
				logging.Bool("complete", complete),
				logging.String(logging.FieldEventType, "endpoint_reloaded"),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("endpoint watcher error", logging.Error(err))
		}
	}
}
