// Package imagewatch ingests images dropped into watched directories.
// Arrivals are debounced so a camera writing several frames produces one
// submission, and each settled group is copied into the blob store and
// handed to a submit callback.
package imagewatch

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
)

// defaultExtensions is the accepted set when Options names none
var defaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"}

// SubmitFunc receives the store references of one settled group of images
type SubmitFunc func(refs []string)

// Options tunes a Watcher.
type Options struct {
	// Extensions lists accepted file extensions, lowercase with dot.
	Extensions []string

	// Debounce is the settle time after the last filesystem event.
	Debounce time.Duration

	// MaxFileSize in bytes; larger files are skipped with a warning.
	MaxFileSize int64

	// UploadTTL bounds the lifetime of ingested blobs.
	UploadTTL time.Duration
}

// Watcher monitors directories for new image files
type Watcher struct {
	store  *blobstore.Store
	submit SubmitFunc
	log    *slog.Logger

	watcher   *fsnotify.Watcher
	exts      map[string]struct{}
	debounce  time.Duration
	maxSize   int64
	uploadTTL time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// New creates a watcher that ingests into store and submits settled
// groups through submit.
func New(store *blobstore.Store, submit SubmitFunc, opts Options, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	extList := opts.Extensions
	if len(extList) == 0 {
		extList = defaultExtensions
	}
	exts := make(map[string]struct{}, len(extList))
	for _, ext := range extList {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		store:     store,
		submit:    submit,
		log:       log.With("component", "imagewatch"),
		watcher:   fsw,
		exts:      exts,
		debounce:  debounce,
		maxSize:   opts.MaxFileSize,
		uploadTTL: opts.UploadTTL,
		pending:   make(map[string]struct{}),
	}, nil
}

// Add starts watching a directory. Only new arrivals are ingested;
// files already present are left alone.
func (w *Watcher) Add(dir string) error {
	return w.watcher.Add(dir)
}

// Start begins consuming filesystem events until Stop or context end
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", "error", err)
			}
		}
	}()
}

// Stop ends event consumption and closes the underlying watcher
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce adjusts the settle time for subsequent events
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if _, ok := w.exts[ext]; !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush ingests the settled group and submits it. Runs on the debounce
// timer goroutine, outside the event lock.
func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	group := uuid.NewString()
	refs := make([]string, 0, len(paths))
	for _, path := range paths {
		if ref, ok := w.ingest(group, path); ok {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return
	}

	w.log.Info("ingested image group", "count", len(refs))
	if w.submit != nil {
		w.submit(refs)
	}
}

// ingest copies one file into the store and returns its reference
func (w *Watcher) ingest(group, path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if w.maxSize > 0 && info.Size() > w.maxSize {
		w.log.Warn("image exceeds size guard, skipped", "path", path, "size", info.Size())
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("image unreadable, skipped", "path", path, "error", err)
		return "", false
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := blobstore.UploadKey(group, filepath.Base(path))
	w.store.Put(key, data, contentType, w.uploadTTL)
	return key, true
}
