package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/watcher"
)

func testClassifier() *classifier.Classifier {
	return classifier.New(classifier.Options{
		Exists: func(p string) bool { return p == "/d/a.txt" },
	})
}

func TestConsumer_PreservesOrder(t *testing.T) {
	in := make(chan watcher.Result, 4)
	in <- watcher.Result{Batch: watcher.Batch{{Op: watcher.OpCreate, Paths: []string{"/d/a.txt"}}}}
	in <- watcher.Result{Batch: watcher.Batch{{Op: watcher.OpModifyData, Paths: []string{"/d/a.txt"}}}}
	in <- watcher.Result{Batch: watcher.Batch{{Op: watcher.OpModifyName, Paths: []string{"/d/a.txt", "/e/a.txt"}}}}
	in <- watcher.Result{}
	close(in)

	var got []classifier.Event
	for n := range NewConsumer(testClassifier(), nil).Run(in) {
		got = append(got, n.Event)
	}

	assert.Equal(t, []classifier.Event{
		classifier.Create("/d/a.txt"),
		classifier.Modify("/d/a.txt"),
		classifier.Move("/d/a.txt", "/e/a.txt"),
		classifier.Unknown(),
	}, got)
}

func TestConsumer_Degraded(t *testing.T) {
	overflow := errors.New("queue overflow")
	c := NewConsumer(testClassifier(), nil)

	n := c.Handle(watcher.Result{Errs: []error{overflow}})
	assert.True(t, n.Degraded())
	assert.True(t, n.Event.IsUnknown())
	assert.ErrorIs(t, n.Err(), overflow)

	n = c.Handle(watcher.Result{
		Batch: watcher.Batch{{Op: watcher.OpCreate, Paths: []string{"/d/b.txt"}}},
		Errs:  []error{overflow},
	})
	assert.True(t, n.Degraded())
	assert.Equal(t, classifier.Create("/d/b.txt"), n.Event)
	assert.Equal(t, "create", n.Rule)
	assert.False(t, n.Received.IsZero())
}

func TestConsumer_NilClassifier(t *testing.T) {
	n := NewConsumer(nil, nil).Handle(watcher.Result{})
	assert.True(t, n.Event.IsUnknown())
	assert.False(t, n.Degraded())
}

func TestDispatch(t *testing.T) {
	in := make(chan Notification, 3)
	in <- Notification{Event: classifier.Create("/d/a")}
	in <- Notification{Event: classifier.Delete("/d/a")}
	in <- Notification{Event: classifier.Unknown(), Errors: []error{errors.New("overflow")}}
	close(in)

	var seen []classifier.Kind
	record := SinkFunc(func(_ context.Context, n Notification) error {
		seen = append(seen, n.Event.Kind)
		return nil
	})
	failing := SinkFunc(func(context.Context, Notification) error {
		return errors.New("sink down")
	})
	var buf bytes.Buffer

	Dispatch(context.Background(), in, nil, failing, record, NewPrinter(&buf))

	assert.Equal(t, []classifier.Kind{classifier.KindCreate, classifier.KindDelete, classifier.KindUnknown}, seen)
	require.Equal(t,
		"Event: created(/d/a)\nEvent: deleted(/d/a)\nEvent: unknown (degraded: overflow)\n",
		buf.String())
}
