// Package classifier reduces a debounced batch of raw filesystem
// notifications to a single semantic event.
//
// Rules are evaluated per event, in batch order, and the first event that
// matches any rule decides the outcome. Later events are never consulted.
package classifier

import (
	"os"
	"path/filepath"

	"github.com/obby/fsclassify/internal/patterns"
	"github.com/obby/fsclassify/internal/watcher"
)

// Options configures a Classifier
type Options struct {
	// MetadataFile is the sidecar filename whose events are ignored.
	// Defaults to DefaultMetadataFile.
	MetadataFile string

	// Ignore holds extra glob patterns for noise paths. Optional.
	Ignore *patterns.Matcher

	// SkipIgnoredRemovals excludes ignorable events when looking for an
	// unqualified removal in the batch. Off by default, so a removal of a
	// metadata file still counts as the source half of a move.
	SkipIgnoredRemovals bool

	// Exists reports whether a path is present at classification time.
	// Defaults to an os.Stat check where any error counts as absent.
	Exists func(path string) bool
}

// DefaultOptions returns the options used by the package-level Classify
func DefaultOptions() Options {
	return Options{
		MetadataFile: DefaultMetadataFile,
		Exists:       pathExists,
	}
}

// Classifier turns batches into semantic events. It holds no per-batch
// state and is safe for concurrent use.
type Classifier struct {
	opts Options
}

// New creates a classifier, filling unset options with defaults
func New(opts Options) *Classifier {
	if opts.MetadataFile == "" {
		opts.MetadataFile = DefaultMetadataFile
	}
	if opts.Exists == nil {
		opts.Exists = pathExists
	}
	return &Classifier{opts: opts}
}

var defaultClassifier = New(DefaultOptions())

// Classify classifies a batch with default options
func Classify(b watcher.Batch) Event {
	return defaultClassifier.Classify(b)
}

// Classify reduces the batch to exactly one event. It never fails; a batch
// with nothing classifiable yields Unknown.
func (c *Classifier) Classify(b watcher.Batch) Event {
	ev, _ := c.Explain(b)
	return ev
}

// Explain is Classify that also returns the name of the rule that decided
// the outcome, or "" for Unknown.
func (c *Classifier) Explain(b watcher.Batch) (Event, string) {
	if len(b) == 0 {
		return Unknown(), ""
	}

	s := &scan{c: c, batch: b, removeAny: c.hasUnqualifiedRemoval(b)}

	for _, ev := range b {
		if c.Ignored(ev) {
			continue
		}
		for _, r := range rules {
			if out, ok := r.match(s, ev); ok {
				return out, r.name
			}
		}
	}

	return Unknown(), ""
}

// Ignored reports whether the classifier skips the event: no paths, a
// metadata sidecar, or a path matching an ignore pattern.
func (c *Classifier) Ignored(ev watcher.RawEvent) bool {
	if isNoise(ev, c.opts.MetadataFile) {
		return true
	}
	if c.opts.Ignore == nil {
		return false
	}
	for _, p := range ev.Paths {
		if c.opts.Ignore.IsIgnored(p) {
			return true
		}
	}
	return false
}

func (c *Classifier) hasUnqualifiedRemoval(b watcher.Batch) bool {
	if !c.opts.SkipIgnoredRemovals {
		return HasUnqualifiedRemoval(b)
	}
	return firstUnqualifiedRemoval(b, c.Ignored) >= 0
}

// scan is the state shared by the rules while classifying one batch
type scan struct {
	c         *Classifier
	batch     watcher.Batch
	removeAny bool
}

type rule struct {
	name  string
	match func(s *scan, ev watcher.RawEvent) (Event, bool)
}

// rules in priority order
var rules = []rule{
	{name: "create-after-remove", match: matchCreateAfterRemove},
	{name: "create", match: matchCreate},
	{name: "modify-content", match: matchModifyContent},
	{name: "rename", match: matchRename},
	{name: "vanished", match: matchVanished},
}

// Some platforms report a cross-directory move as a removal at the source
// plus a creation at the destination, landing in the same window.
func matchCreateAfterRemove(s *scan, ev watcher.RawEvent) (Event, bool) {
	if !ev.Op.IsCreate() || !s.removeAny {
		return Event{}, false
	}

	i := firstUnqualifiedRemoval(s.batch, func(r watcher.RawEvent) bool {
		return len(r.Paths) == 0 || (s.c.opts.SkipIgnoredRemovals && s.c.Ignored(r))
	})
	if i < 0 {
		return Event{}, false
	}

	from, to := s.batch[i].Paths[0], ev.Paths[0]
	switch {
	case from == to:
		return Modify(to), true
	case sameParent(from, to):
		return Rename(from, to), true
	default:
		return Move(from, to), true
	}
}

func matchCreate(_ *scan, ev watcher.RawEvent) (Event, bool) {
	if !ev.Op.IsCreate() {
		return Event{}, false
	}
	return Create(ev.Paths[0]), true
}

// Some platforms report deletions as plain data writes, so existence is
// checked live rather than trusted from the op.
func matchModifyContent(s *scan, ev watcher.RawEvent) (Event, bool) {
	if ev.Op != watcher.OpModifyData && ev.Op != watcher.OpModifyAny {
		return Event{}, false
	}
	path := ev.Paths[0]
	if !s.c.opts.Exists(path) {
		return Delete(path), true
	}
	return Modify(path), true
}

func matchRename(_ *scan, ev watcher.RawEvent) (Event, bool) {
	if ev.Op != watcher.OpModifyName || len(ev.Paths) != 2 {
		return Event{}, false
	}
	from, to := ev.Paths[0], ev.Paths[1]
	if sameParent(from, to) {
		return Rename(from, to), true
	}
	return Move(from, to), true
}

func matchVanished(s *scan, ev watcher.RawEvent) (Event, bool) {
	if !ev.Op.IsModify() {
		return Event{}, false
	}
	path := ev.Paths[0]
	if s.c.opts.Exists(path) {
		return Event{}, false
	}
	return Delete(path), true
}

func sameParent(a, b string) bool {
	return filepath.Dir(a) == filepath.Dir(b)
}

// pathExists folds every stat error, including permission errors, into
// "absent".
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
