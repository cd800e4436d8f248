// Package pipeline connects the watcher to the classifier and fans the
// classified events out to sinks.
package pipeline

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/watcher"
)

// Notification is what the consumer hands to sinks for each window
type Notification struct {
	Event classifier.Event

	// Rule names the classifier rule that produced Event, "" for Unknown.
	Rule string

	// Errors are watcher errors reported during the window. When present
	// the observation was partial and Event may miss changes.
	Errors []error

	Received time.Time
}

// Degraded reports whether the window had watcher errors
func (n Notification) Degraded() bool {
	return len(n.Errors) > 0
}

// Err joins the window errors
func (n Notification) Err() error {
	return errors.Join(n.Errors...)
}

// Consumer classifies results in arrival order
type Consumer struct {
	classifier *classifier.Classifier
	logger     hclog.Logger
	bufferSize int
}

// NewConsumer creates a consumer. A nil classifier uses default options.
func NewConsumer(c *classifier.Classifier, logger hclog.Logger) *Consumer {
	if c == nil {
		c = classifier.New(classifier.DefaultOptions())
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Consumer{classifier: c, logger: logger, bufferSize: 16}
}

// Run classifies every result received on in and returns the channel of
// notifications. The returned channel is closed once in is closed and
// drained.
func (c *Consumer) Run(in <-chan watcher.Result) <-chan Notification {
	out := make(chan Notification, c.bufferSize)
	go func() {
		defer close(out)
		for res := range in {
			out <- c.Handle(res)
		}
	}()
	return out
}

// Handle classifies a single result
func (c *Consumer) Handle(res watcher.Result) Notification {
	ev, rule := c.classifier.Explain(res.Batch)
	n := Notification{
		Event:    ev,
		Rule:     rule,
		Errors:   res.Errs,
		Received: time.Now(),
	}

	if n.Degraded() {
		c.logger.Warn("partial observation", "errors", len(n.Errors), "error", n.Err())
	}
	c.logger.Debug("classified", "event", ev, "rule", rule, "raw", len(res.Batch))
	return n
}
