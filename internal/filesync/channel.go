// Package filesync mirrors the profile collection into a shared file and
// imports external edits to that file back into the store. The file is the
// rendezvous point with the companion extension; neither side talks to the
// other directly.
package filesync

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stylist-dev/stylist/internal/profile"
)

// Mode selects how an import reconciles the file against the store.
type Mode string

const (
	// ModeReplace overwrites the store with the file contents (one-way
	// mirroring; used by the automatic watch-triggered import).
	ModeReplace Mode = "replace"
	// ModeMerge reconciles file and store through the merge algorithm.
	ModeMerge Mode = "merge"
)

// Status reports the outcome of one export or import attempt. A non-nil
// Err is a warning: the channel keeps running.
type Status struct {
	Op    string // "export" or "import"
	Path  string
	Err   error
	Stats *profile.MergeStats // set on successful merge imports
}

// Channel watches a shared file for external changes and mirrors local
// store changes into it.
type Channel struct {
	store           *profile.Manager
	path            string
	logger          *slog.Logger
	onStatus        func(Status)
	debounce        time.Duration
	storageLocation string

	// importing guards against feedback loops: a store change caused by an
	// in-flight import must not re-export the data just read from the file.
	importing atomic.Bool

	// Hash of the last payload this channel wrote, so the watcher can tell
	// its own writes apart from the peer's.
	hashMu     sync.Mutex
	lastExport [sha256.Size]byte
	hasExport  bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithStatusFunc installs a callback invoked after every export/import
// attempt, success or failure.
func WithStatusFunc(fn func(Status)) Option {
	return func(c *Channel) { c.onStatus = fn }
}

// WithDebounce overrides the watch debounce window (for testing).
func WithDebounce(d time.Duration) Option {
	return func(c *Channel) { c.debounce = d }
}

// WithStorageLocation sets the storage location preference written into
// exports when the collection carries none. The value is peer-facing and
// never interpreted locally.
func WithStorageLocation(loc string) Option {
	return func(c *Channel) { c.storageLocation = loc }
}

// New creates a Channel syncing the store against the file at path.
func New(store *profile.Manager, path string, opts ...Option) *Channel {
	c := &Channel{
		store:    store,
		path:     path,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.onStatus == nil {
		c.onStatus = func(s Status) {
			if s.Err != nil {
				c.logger.Warn("file sync failed", "op", s.Op, "path", s.Path, "error", s.Err)
			}
		}
	}
	return c
}

// Run watches the sync file and the store until ctx is cancelled. Watch
// setup failure is returned; individual sync failures are reported through
// the status callback and do not stop the loop.
func (c *Channel) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory: atomic writes replace the file by rename,
	// which would silently detach a watch on the file itself.
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sync directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	changes, unsubscribe := c.store.Subscribe()
	defer unsubscribe()

	c.logger.Info("file sync channel started", "path", c.path)

	var pendingSince time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != c.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pendingSince = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if pendingSince.IsZero() || time.Since(pendingSince) < c.debounce {
				continue
			}
			pendingSince = time.Time{}
			c.handleFileChanged()

		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			c.handleStoreChanged(ev)
		}
	}
}

// handleStoreChanged exports the collection unless the change originated
// from this channel's own import.
func (c *Channel) handleStoreChanged(ev profile.ChangeEvent) {
	if ev.Origin == profile.OriginFile {
		return
	}
	if c.importing.Load() {
		return
	}
	c.Export()
}

// handleFileChanged imports the file after a settled external edit. The
// channel's own exports are recognized by content hash and skipped.
func (c *Channel) handleFileChanged() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.onStatus(Status{Op: "import", Path: c.path, Err: fmt.Errorf("reading sync file: %w", err)})
		}
		return
	}
	if c.isOwnWrite(data) {
		return
	}
	// Watch-triggered imports mirror the peer one-way.
	c.Import(ModeReplace)
}

// Export serializes the current collection to the sync file as a single
// atomic write, creating parent directories if missing. The outcome is
// always reported via the status callback; failure never crashes the
// channel.
func (c *Channel) Export() error {
	err := c.exportOnce()
	c.onStatus(Status{Op: "export", Path: c.path, Err: err})
	return err
}

func (c *Channel) exportOnce() error {
	cfg, err := c.store.GetAll()
	if err != nil {
		return fmt.Errorf("reading store: %w", err)
	}
	if cfg.StorageLocation == "" {
		cfg.StorageLocation = c.storageLocation
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sync directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing sync file: %w", err)
	}

	c.hashMu.Lock()
	c.lastExport = sha256.Sum256(data)
	c.hasExport = true
	c.hashMu.Unlock()

	c.logger.Debug("exported profiles", "path", c.path, "bytes", len(data))
	return nil
}

// Import reads, validates, and applies the sync file. Validation failure
// aborts before anything reaches the store. The import guard is held for
// the whole operation so the resulting store change is not re-exported.
func (c *Channel) Import(mode Mode) error {
	c.importing.Store(true)
	defer c.importing.Store(false)

	stats, err := c.importOnce(mode)
	c.onStatus(Status{Op: "import", Path: c.path, Err: err, Stats: stats})
	return err
}

func (c *Channel) importOnce(mode Mode) (*profile.MergeStats, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading sync file: %w", err)
	}

	parsed, err := profile.ParseConfig(data)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeMerge:
		local, err := c.store.GetAll()
		if err != nil {
			return nil, fmt.Errorf("reading store: %w", err)
		}
		merged, stats := profile.Merge(local, parsed)
		if err := c.store.Save(merged, profile.OriginFile); err != nil {
			return nil, err
		}
		c.logger.Info("merged sync file", "added", stats.Added, "updated", stats.Updated, "kept", stats.Kept)
		return &stats, nil

	case ModeReplace:
		if err := c.store.Save(parsed, profile.OriginFile); err != nil {
			return nil, err
		}
		c.logger.Info("imported sync file", "profiles", len(parsed.List))
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}
}

func (c *Channel) isOwnWrite(data []byte) bool {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	return c.hasExport && sha256.Sum256(data) == c.lastExport
}

// Importing reports whether an import is currently in flight.
func (c *Channel) Importing() bool {
	return c.importing.Load()
}
