package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obby/fsclassify/internal/watcher"
)

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		name string
		ev   watcher.RawEvent
		want bool
	}{
		{"no paths", raw(watcher.OpCreate), true},
		{"metadata file", raw(watcher.OpModifyData, "/d/.DS_Store"), true},
		{"metadata file as rename target", raw(watcher.OpModifyName, "/d/a", "/d/.DS_Store"), true},
		{"metadata name as a suffix only", raw(watcher.OpCreate, "/d/x.DS_Store"), false},
		{"metadata name as a directory", raw(watcher.OpCreate, "/d/.DS_Store/a"), false},
		{"regular file", raw(watcher.OpCreate, "/d/a.txt"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldIgnore(tt.ev))
		})
	}
}

func TestHasUnqualifiedRemoval(t *testing.T) {
	assert.False(t, HasUnqualifiedRemoval(nil))
	assert.False(t, HasUnqualifiedRemoval(watcher.Batch{
		raw(watcher.OpRemoveOther, "/d/a"),
		raw(watcher.OpCreate, "/d/b"),
	}))
	assert.True(t, HasUnqualifiedRemoval(watcher.Batch{
		raw(watcher.OpCreate, "/d/b"),
		raw(watcher.OpRemoveAny, "/d/a"),
	}))
	// Ignorable events still count.
	assert.True(t, HasUnqualifiedRemoval(watcher.Batch{raw(watcher.OpRemoveAny)}))
	assert.True(t, HasUnqualifiedRemoval(watcher.Batch{raw(watcher.OpRemoveAny, "/d/.DS_Store")}))
}
