// Package watch uploads files from a local directory tree as they settle.
// Filesystem events are debounced per path so an editor's burst of writes
// produces one upload once the file has been quiet for the debounce window.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"
)

// Defaults and loop timing.
const (
	DefaultDebounce = 2 * time.Second
	minTick         = 10 * time.Millisecond
)

// Uploader sends one settled local file to remotePath.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, localPath, remotePath string) error

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, localPath, remotePath string) error {
	return f(ctx, localPath, remotePath)
}

// FsWatcher is the subset of fsnotify.Watcher used by the loop, so tests can
// inject events without touching the filesystem notification layer.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// Options configures a Watcher.
type Options struct {
	Root         string        // local directory to observe
	RemotePrefix string        // prepended to the slash-separated relative path
	Debounce     time.Duration // quiet period before a file is uploaded
	SkipDotfiles bool          // ignore files and directories starting with "."
	MaxFileSize  uint64        // 0 = unlimited
}

// Stats counts what a Run did.
type Stats struct {
	Uploaded int
	Failed   int
	Skipped  int
}

// Watcher observes Options.Root and hands settled files to an Uploader.
type Watcher struct {
	opts     Options
	uploader Uploader
	logger   *slog.Logger

	newFsWatcher func() (FsWatcher, error)
	nowFunc      func() time.Time

	pending map[string]time.Time // absolute path -> last event time
	stats   Stats
}

// New creates a Watcher. A zero Debounce uses DefaultDebounce.
func New(opts Options, uploader Uploader, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	opts.Root = filepath.Clean(opts.Root)

	return &Watcher{
		opts:         opts,
		uploader:     uploader,
		logger:       logger,
		newFsWatcher: newFsnotifyWatcher,
		nowFunc:      time.Now,
		pending:      make(map[string]time.Time),
	}
}

// Run watches until ctx is canceled. Upload failures are logged and counted;
// they never stop the loop. Files still pending at cancellation are dropped.
func (w *Watcher) Run(ctx context.Context) (Stats, error) {
	info, err := os.Stat(w.opts.Root)
	if err != nil {
		return w.stats, err
	}

	if !info.IsDir() {
		return w.stats, &fs.PathError{Op: "watch", Path: w.opts.Root, Err: errors.New("not a directory")}
	}

	fw, err := w.newFsWatcher()
	if err != nil {
		return w.stats, err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.opts.Root, false); err != nil {
		return w.stats, err
	}

	w.logger.Info("watching directory",
		slog.String("root", w.opts.Root),
		slog.String("remote_prefix", w.opts.RemotePrefix),
		slog.Duration("debounce", w.opts.Debounce),
	)

	tick := max(w.opts.Debounce/4, minTick)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(w.pending) > 0 {
				w.logger.Info("watch stopped with unsettled files", slog.Int("pending", len(w.pending)))
			}

			return w.stats, nil

		case ev, ok := <-fw.Events():
			if !ok {
				return w.stats, nil
			}

			w.handleEvent(fw, ev)

		case werr, ok := <-fw.Errors():
			if !ok {
				return w.stats, nil
			}

			w.logger.Warn("filesystem watcher error", slog.String("error", werr.Error()))

		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

// handleEvent records or discards a pending path for one fsnotify event.
func (w *Watcher) handleEvent(fw FsWatcher, ev fsnotify.Event) {
	// Mode changes alone carry no new content.
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	if w.excluded(ev.Name) {
		w.logger.Debug("watch: skipping excluded path", slog.String("path", ev.Name))
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Gone again before we looked.
			return
		}

		if info.IsDir() {
			if err := w.addTree(fw, ev.Name, true); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}

			return
		}

		w.touch(ev.Name)

	case ev.Has(fsnotify.Write):
		w.touch(ev.Name)
	}
}

func (w *Watcher) touch(p string) {
	w.pending[p] = w.nowFunc()
}

// addTree adds watches for dir and all its subdirectories. When enqueue is
// set, files already present are queued; they may have been written before
// the watch on a freshly created directory was registered.
func (w *Watcher) addTree(fw FsWatcher, dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("walk error", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}

		if p != dir && w.excluded(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return fw.Add(p)
		}

		if enqueue && d.Type().IsRegular() {
			w.touch(p)
		}

		return nil
	})
}

// flushSettled uploads every pending file whose last event is older than the
// debounce window.
func (w *Watcher) flushSettled(ctx context.Context) {
	now := w.nowFunc()

	for p, last := range w.pending {
		if ctx.Err() != nil {
			return
		}

		if now.Sub(last) < w.opts.Debounce {
			continue
		}

		delete(w.pending, p)
		w.upload(ctx, p)
	}
}

func (w *Watcher) upload(ctx context.Context, localPath string) {
	info, err := os.Stat(localPath)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	if w.opts.MaxFileSize > 0 && uint64(info.Size()) > w.opts.MaxFileSize {
		w.stats.Skipped++

		w.logger.Warn("skipping file above max_file_size",
			slog.String("path", localPath),
			slog.Int64("size", info.Size()),
		)

		return
	}

	remote, err := w.remotePath(localPath)
	if err != nil {
		w.stats.Skipped++
		return
	}

	if err := w.uploader.Upload(ctx, localPath, remote); err != nil {
		w.stats.Failed++

		w.logger.Error("upload failed",
			slog.String("path", localPath),
			slog.String("remote", remote),
			slog.String("error", err.Error()),
		)

		return
	}

	w.stats.Uploaded++

	w.logger.Info("uploaded", slog.String("path", localPath), slog.String("remote", remote))
}

// remotePath maps a local path under Root to its remote path.
func (w *Watcher) remotePath(localPath string) (string, error) {
	rel, err := filepath.Rel(w.opts.Root, localPath)
	if err != nil {
		return "", err
	}

	rel = norm.NFC.String(filepath.ToSlash(rel))

	return strings.TrimPrefix(path.Join(w.opts.RemotePrefix, rel), "/"), nil
}

// excluded reports whether p should never be uploaded.
func (w *Watcher) excluded(p string) bool {
	name := filepath.Base(p)

	if isTempName(name) {
		return true
	}

	if !w.opts.SkipDotfiles {
		return false
	}

	rel, err := filepath.Rel(w.opts.Root, p)
	if err != nil {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}

	return false
}

// tempSuffixes are editor and download temporaries that are never uploaded.
var tempSuffixes = []string{".partial", ".tmp", ".swp", ".crdownload"}

func isTempName(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range tempSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	// Editor backups (~file) and LibreOffice locks (.~lock).
	return strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~")
}
