// Package logging builds the service's hclog logger.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name
const Name = "fsclassify"

// New creates a leveled logger writing to w. Unknown levels fall back to
// info; a nil writer means stderr.
func New(level string, w io.Writer) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   Name,
		Level:  lvl,
		Output: w,
	})
}
