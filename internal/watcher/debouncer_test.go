package watcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ev(op Op, paths ...string) RawEvent {
	return RawEvent{Op: op, Paths: paths}
}

func TestNewDebouncer_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewDebouncer(0).Window())
	assert.Equal(t, 50*time.Millisecond, NewDebouncer(50*time.Millisecond).Window())
}

func TestDebouncer_OpensWindowOnce(t *testing.T) {
	d := NewDebouncer(time.Second)

	assert.False(t, d.Pending())
	assert.True(t, d.Add(ev(OpCreate, "/d/a")))
	assert.False(t, d.Add(ev(OpModifyData, "/d/a")))
	assert.False(t, d.AddError(errors.New("overflow")))
	assert.True(t, d.Pending())

	res := d.Take()
	assert.Len(t, res.Batch, 2)
	assert.Len(t, res.Errs, 1)
	assert.False(t, d.Pending())

	assert.True(t, d.AddError(errors.New("again")), "error opens a fresh window")
}

func TestDebouncer_AddNilError(t *testing.T) {
	d := NewDebouncer(time.Second)
	assert.False(t, d.AddError(nil))
	assert.False(t, d.Pending())
}

func TestDebouncer_DropsRepeats(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(ev(OpModifyData, "/d/a"))
	d.Add(ev(OpModifyData, "/d/a"))
	d.Add(ev(OpModifyData, "/d/b"))
	d.Add(ev(OpModifyData, "/d/a"))

	res := d.Take()
	assert.Equal(t, Batch{
		ev(OpModifyData, "/d/a"),
		ev(OpModifyData, "/d/b"),
		ev(OpModifyData, "/d/a"),
	}, res.Batch)
}

func TestDebouncer_PairsRename(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(ev(OpModifyData, "/d/x"))
	d.Add(ev(OpModifyName, "/d/a"))
	d.Add(ev(OpCreate, "/e/b"))
	d.Add(ev(OpCreate, "/e/c"))

	res := d.Take()
	assert.Equal(t, Batch{
		ev(OpModifyData, "/d/x"),
		ev(OpModifyName, "/d/a", "/e/b"),
		ev(OpCreate, "/e/c"),
	}, res.Batch)
}

func TestDebouncer_DoesNotPairRecreatedPath(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(ev(OpModifyName, "/d/a"))
	d.Add(ev(OpCreate, "/d/a"))

	res := d.Take()
	assert.Equal(t, Batch{
		ev(OpModifyName, "/d/a"),
		ev(OpCreate, "/d/a"),
	}, res.Batch)
}

func TestDebouncer_Reset(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(ev(OpCreate, "/d/a"))
	d.Reset()
	assert.False(t, d.Pending())
	assert.Empty(t, d.Take().Batch)
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Result{}.Err())
	assert.False(t, Result{}.Degraded())

	first := errors.New("first")
	res := Result{Errs: []error{first, errors.New("second")}}
	assert.True(t, res.Degraded())
	assert.ErrorIs(t, res.Err(), first)
}

func TestOp_Predicates(t *testing.T) {
	assert.True(t, OpCreate.IsCreate())
	for _, op := range []Op{OpModifyData, OpModifyName, OpModifyAny, OpModifyOther} {
		assert.True(t, op.IsModify(), op.String())
		assert.False(t, op.IsRemove(), op.String())
	}
	assert.True(t, OpRemoveAny.IsRemove())
	assert.True(t, OpRemoveOther.IsRemove())
	assert.False(t, OpOther.IsModify())
	assert.Equal(t, "Modify(Name)[/d/a -> /d/b]", ev(OpModifyName, "/d/a", "/d/b").String())
}
