// Package watcher produces debounced batches of raw filesystem
// notifications from fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/internal/patterns"
)

// ErrWatcherClosed is returned when using a stopped watcher
var ErrWatcherClosed = errors.New("watcher is closed")

// Options configures a FileWatcher
type Options struct {
	// Window is the debounce window. Defaults to DefaultWindow.
	Window time.Duration

	// BufferSize is the capacity of the results channel. Default: 16
	BufferSize int

	// Matcher skips ignored directories when registering recursive
	// watches. Optional.
	Matcher *patterns.Matcher

	// Logger defaults to a null logger.
	Logger hclog.Logger
}

// FileWatcher wraps fsnotify and emits one Result per debounce window
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	matcher   *patterns.Matcher
	logger    hclog.Logger
	results   chan Result
	mu        sync.RWMutex
	watching  map[string]bool
	roots     map[string]bool // roots registered recursively
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	stopped   bool
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(opts Options) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		watcher:   w,
		debouncer: NewDebouncer(opts.Window),
		matcher:   opts.Matcher,
		logger:    opts.Logger,
		results:   make(chan Result, opts.BufferSize),
		watching:  make(map[string]bool),
		roots:     make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Start starts the event loop
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.stopped {
		return ErrWatcherClosed
	}
	if fw.started {
		return nil
	}
	fw.started = true
	go fw.processEvents()
	return nil
}

// Stop closes the fsnotify watcher and the results channel. A window still
// open when Stop is called is discarded.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	started := fw.started
	fw.mu.Unlock()

	fw.cancel()
	err := fw.watcher.Close()

	if started {
		<-fw.done
	} else {
		close(fw.results)
	}
	return err
}

// AddPath adds a path to watch. With recursive set, every directory below a
// directory path is registered too, and directories created later are
// picked up as they appear.
func (fw *FileWatcher) AddPath(path string, recursive bool) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.stopped {
		return ErrWatcherClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", absPath, err)
	}

	if !fw.watching[absPath] {
		if err := fw.watcher.Add(absPath); err != nil {
			return fmt.Errorf("watch %s: %w", absPath, err)
		}
		fw.watching[absPath] = true
		fw.logger.Info("watching path", "path", absPath, "recursive", recursive)
	}

	if recursive && info.IsDir() {
		fw.roots[absPath] = true
		fw.addDirectoryRecursive(absPath)
	}

	return nil
}

// addDirectoryRecursive registers every directory below dirPath.
// Callers hold fw.mu.
func (fw *FileWatcher) addDirectoryRecursive(dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fw.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() || path == dirPath && fw.watching[path] {
			return nil
		}

		if fw.matcher.IsIgnored(path) {
			return filepath.SkipDir
		}

		if !fw.watching[path] {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Warn("error adding directory", "path", path, "error", err)
				return nil
			}
			fw.watching[path] = true
		}
		return nil
	})
}

// RemovePath stops watching a path
func (fw *FileWatcher) RemovePath(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if !fw.watching[absPath] {
		return nil
	}

	if err := fw.watcher.Remove(absPath); err != nil {
		return fmt.Errorf("unwatch %s: %w", absPath, err)
	}

	delete(fw.watching, absPath)
	delete(fw.roots, absPath)
	return nil
}

// WatchedPaths returns the registered paths, sorted
func (fw *FileWatcher) WatchedPaths() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	paths := make([]string, 0, len(fw.watching))
	for p := range fw.watching {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Results returns the channel of per-window results.
// The channel is closed when the watcher stops.
func (fw *FileWatcher) Results() <-chan Result {
	return fw.results
}

// processEvents owns the debouncer and its timer
func (fw *FileWatcher) processEvents() {
	defer close(fw.done)
	defer close(fw.results)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	arm := func(opened bool) {
		if opened && timer == nil {
			timer = time.NewTimer(fw.debouncer.Window())
			timerC = timer.C
		}
	}

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			arm(fw.handleEvent(event))
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watcher error", "error", err)
			arm(fw.debouncer.AddError(err))
		case <-timerC:
			timer, timerC = nil, nil
			fw.emit(fw.debouncer.Take())
		case <-fw.ctx.Done():
			return
		}
	}
}

// handleEvent feeds one fsnotify event to the debouncer and reports whether
// it opened a new window.
func (fw *FileWatcher) handleEvent(event fsnotify.Event) bool {
	now := time.Now()

	switch {
	case event.Has(fsnotify.Create):
		fw.watchNewDirectory(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.forget(event.Name)
	}

	opened := false
	for _, ev := range translate(event, now) {
		if fw.debouncer.Add(ev) {
			opened = true
		}
	}
	return opened
}

func (fw *FileWatcher) emit(res Result) {
	if !res.Degraded() && len(res.Batch) == 0 {
		return
	}
	fw.logger.Debug("debounced window", "events", len(res.Batch), "errors", len(res.Errs), "batch", res.Batch)

	select {
	case fw.results <- res:
	case <-fw.ctx.Done():
	}
}

func (fw *FileWatcher) watchNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.stopped || !fw.underRecursiveRoot(path) {
		return
	}
	fw.addDirectoryRecursive(path)
}

// forget drops bookkeeping for a path fsnotify no longer watches
func (fw *FileWatcher) forget(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for p := range fw.watching {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(fw.watching, p)
		}
	}
}

func (fw *FileWatcher) underRecursiveRoot(path string) bool {
	for root := range fw.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// translate maps an fsnotify event to raw events.
//
// fsnotify reports a rename as Rename on the old name and Create on the new
// one; the debouncer stitches the two. A plain Remove is reported both as an
// unqualified removal and as a metadata change on the vanished path, the way
// platforms that fold deletions into modify notifications do.
func translate(event fsnotify.Event, at time.Time) []RawEvent {
	var paths []string
	if event.Name != "" {
		paths = []string{event.Name}
	}

	switch {
	case event.Has(fsnotify.Create):
		return []RawEvent{{Op: OpCreate, Paths: paths, Time: at}}
	case event.Has(fsnotify.Remove):
		return []RawEvent{
			{Op: OpRemoveAny, Paths: paths, Time: at},
			{Op: OpModifyOther, Paths: paths, Time: at},
		}
	case event.Has(fsnotify.Rename):
		return []RawEvent{{Op: OpModifyName, Paths: paths, Time: at}}
	case event.Has(fsnotify.Write):
		return []RawEvent{{Op: OpModifyData, Paths: paths, Time: at}}
	case event.Has(fsnotify.Chmod):
		return []RawEvent{{Op: OpModifyOther, Paths: paths, Time: at}}
	default:
		return []RawEvent{{Op: OpOther, Paths: paths, Time: at}}
	}
}
