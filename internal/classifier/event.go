package classifier

import "fmt"

// Kind identifies which semantic outcome an Event describes
type Kind string

// Kind constants
const (
	KindCreate  Kind = "created"
	KindModify  Kind = "modified"
	KindDelete  Kind = "deleted"
	KindRename  Kind = "renamed"
	KindMove    Kind = "moved"
	KindUnknown Kind = "unknown"
)

// Kinds lists every kind in a stable order
var Kinds = []Kind{KindCreate, KindModify, KindDelete, KindRename, KindMove, KindUnknown}

// Event is the semantic event a batch of raw notifications reduces to.
// NewPath is set only for renames and moves.
type Event struct {
	Kind    Kind
	Path    string
	NewPath string
}

// Create builds a creation event
func Create(path string) Event {
	return Event{Kind: KindCreate, Path: path}
}

// Modify builds a content modification event
func Modify(path string) Event {
	return Event{Kind: KindModify, Path: path}
}

// Delete builds a deletion event
func Delete(path string) Event {
	return Event{Kind: KindDelete, Path: path}
}

// Rename builds a rename within one directory
func Rename(oldPath, newPath string) Event {
	return Event{Kind: KindRename, Path: oldPath, NewPath: newPath}
}

// Move builds a move across directories
func Move(oldPath, newPath string) Event {
	return Event{Kind: KindMove, Path: oldPath, NewPath: newPath}
}

// Unknown builds the event for a batch with nothing classifiable in it
func Unknown() Event {
	return Event{Kind: KindUnknown}
}

// IsUnknown reports whether the event carries no classification
func (e Event) IsUnknown() bool {
	return e.Kind == KindUnknown || e.Kind == ""
}

// HasNewPath reports whether the event is a rename or a move
func (e Event) HasNewPath() bool {
	return e.Kind == KindRename || e.Kind == KindMove
}

// Paths returns the paths the event refers to, old path first
func (e Event) Paths() []string {
	switch {
	case e.IsUnknown():
		return nil
	case e.HasNewPath():
		return []string{e.Path, e.NewPath}
	default:
		return []string{e.Path}
	}
}

func (e Event) String() string {
	switch {
	case e.IsUnknown():
		return string(KindUnknown)
	case e.HasNewPath():
		return fmt.Sprintf("%s(%s -> %s)", e.Kind, e.Path, e.NewPath)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
	}
}
