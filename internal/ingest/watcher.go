// Package ingest discovers new card images in watched inbox directories and
// feeds them to the pipeline.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Allowed extensions for discovery (lowercase, without '.').
var defaultExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// WatchConfig controls discovery.
type WatchConfig struct {
	Roots       []string // directories to watch (recursive)
	AllowedExts map[string]struct{}
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid create/write bursts
}

// StartWatcher emits discovered image paths until ctx is done. The error
// channel carries watcher-level failures; both channels close on shutdown.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = defaultExts
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && Allowed(path, cfg.AllowedExts) {
				select {
				case evCh <- path:
				default:
				}
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add watch root", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() { _ = w.Close() }()

		pending := map[string]struct{}{}
		timer := time.NewTimer(cfg.Debounce)
		if !timer.Stop() {
			<-timer.C
		}

		// Directories created under a watched root need their own watches,
		// and files dropped into them before the watch lands never fire
		// events of their own, so the walk picks those up too.
		watchNewTree := func(root string) error {
			return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				if d.IsDir() {
					return w.Add(path)
				}
				if Allowed(path, cfg.AllowedExts) {
					pending[path] = struct{}{}
				}
				return nil
			})
		}

		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
					logger.Warn("ingest channel full, dropping discovery", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				flush()
				return
			case ev, ok := <-w.Events:
				if !ok {
					flush()
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if ev.Op&fsnotify.Create != 0 {
					if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
						if err := watchNewTree(ev.Name); err != nil {
							logger.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
						}
						timer.Reset(cfg.Debounce)
						continue
					}
				}
				if !Allowed(ev.Name, cfg.AllowedExts) {
					continue
				}
				pending[ev.Name] = struct{}{}
				timer.Reset(cfg.Debounce)
			case err, ok := <-w.Errors:
				if !ok {
					flush()
					return
				}
				select {
				case errCh <- err:
				default:
				}
			case <-timer.C:
				flush()
			}
		}
	}()

	logger.Info("inbox watcher started", "roots", cfg.Roots)
	return evCh, errCh, nil
}

// Allowed reports whether path carries one of the accepted extensions.
func Allowed(path string, exts map[string]struct{}) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := exts[ext]
	return ok
}

// MIMEForPath derives the MIME type the pipeline expects from a file path.
func MIMEForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	switch strings.TrimPrefix(ext, ".") {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
