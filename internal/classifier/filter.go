package classifier

import (
	"path/filepath"

	"github.com/obby/fsclassify/internal/watcher"
)

// DefaultMetadataFile is the per-directory attribute store macOS Finder
// drops next to files.
const DefaultMetadataFile = ".DS_Store"

// ShouldIgnore reports whether a raw event carries no usable path or refers
// to the metadata sidecar file.
func ShouldIgnore(ev watcher.RawEvent) bool {
	return isNoise(ev, DefaultMetadataFile)
}

// HasUnqualifiedRemoval reports whether any event in the batch is a removal
// without further detail.
func HasUnqualifiedRemoval(b watcher.Batch) bool {
	return firstUnqualifiedRemoval(b, nil) >= 0
}

func isNoise(ev watcher.RawEvent, metadataFile string) bool {
	if len(ev.Paths) == 0 {
		return true
	}
	if metadataFile == "" {
		return false
	}
	for _, p := range ev.Paths {
		if filepath.Base(p) == metadataFile {
			return true
		}
	}
	return false
}

// firstUnqualifiedRemoval returns the index of the first Remove(Any) event
// for which skip returns false, or -1.
func firstUnqualifiedRemoval(b watcher.Batch, skip func(watcher.RawEvent) bool) int {
	for i, ev := range b {
		if ev.Op != watcher.OpRemoveAny {
			continue
		}
		if skip != nil && skip(ev) {
			continue
		}
		return i
	}
	return -1
}
