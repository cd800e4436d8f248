package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Sink receives notifications from Dispatch
type Sink interface {
	Handle(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, n Notification) error

// Handle calls f
func (f SinkFunc) Handle(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Dispatch delivers every notification to each sink in order until in is
// closed. Sink errors are logged and do not stop delivery.
func Dispatch(ctx context.Context, in <-chan Notification, logger hclog.Logger, sinks ...Sink) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	for n := range in {
		for _, sink := range sinks {
			if err := sink.Handle(ctx, n); err != nil {
				logger.Error("sink failed", "sink", fmt.Sprintf("%T", sink), "event", n.Event, "error", err)
			}
		}
	}
}

// Printer writes one line per notification
type Printer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPrinter creates a printer sink writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Handle prints the event, flagging degraded windows
func (p *Printer) Handle(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n.Degraded() {
		_, err := fmt.Fprintf(p.w, "Event: %s (degraded: %v)\n", n.Event, n.Err())
		return err
	}
	_, err := fmt.Fprintf(p.w, "Event: %s\n", n.Event)
	return err
}
