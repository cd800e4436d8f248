package watcher

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Op is the kind of a raw filesystem notification.
// Modify and Remove carry a subkind, flattened into one closed set.
type Op uint8

const (
	OpOther Op = iota
	OpCreate
	OpModifyData
	OpModifyName
	OpModifyAny
	OpModifyOther
	OpRemoveAny
	OpRemoveOther
)

// String returns a human-readable representation of the op
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "Create"
	case OpModifyData:
		return "Modify(Data)"
	case OpModifyName:
		return "Modify(Name)"
	case OpModifyAny:
		return "Modify(Any)"
	case OpModifyOther:
		return "Modify(Other)"
	case OpRemoveAny:
		return "Remove(Any)"
	case OpRemoveOther:
		return "Remove(Other)"
	default:
		return "Other"
	}
}

// IsCreate reports whether the op is a creation
func (op Op) IsCreate() bool {
	return op == OpCreate
}

// IsModify reports whether the op is any modify subkind
func (op Op) IsModify() bool {
	switch op {
	case OpModifyData, OpModifyName, OpModifyAny, OpModifyOther:
		return true
	}
	return false
}

// IsRemove reports whether the op is any remove subkind
func (op Op) IsRemove() bool {
	return op == OpRemoveAny || op == OpRemoveOther
}

// RawEvent is a single notification as observed by the watcher.
// Paths holds two entries only for rename notifications (old, new).
type RawEvent struct {
	Op    Op
	Paths []string
	Time  time.Time
}

// String formats the event for debug logs
func (e RawEvent) String() string {
	return fmt.Sprintf("%s[%s]", e.Op, strings.Join(e.Paths, " -> "))
}

// Batch is the ordered set of raw events collected in one debounce window
type Batch []RawEvent

// Result is what the watcher produces once per debounce window.
// Errs holds watcher errors reported during the window; a Result
// may carry both events and errors.
type Result struct {
	Batch Batch
	Errs  []error
}

// Degraded reports whether the window had errors, meaning the batch may be
// missing changes.
func (r Result) Degraded() bool {
	return len(r.Errs) > 0
}

// Err joins the window errors, nil when there were none
func (r Result) Err() error {
	return errors.Join(r.Errs...)
}
