package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true},
		{level: "INFO", wantDebug: false, wantInfo: true},
		{level: "warn", wantDebug: false, wantInfo: false},
		{level: "bogus", wantDebug: false, wantInfo: true},
		{level: "", wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(tt.level, &buf)
			assert.Equal(t, tt.wantDebug, logger.IsDebug())
			assert.Equal(t, tt.wantInfo, logger.IsInfo())
		})
	}
}

func TestNew_WritesNamedEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf).Named("watcher")

	logger.Info("watching", "path", "/d")

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "fsclassify.watcher")
	assert.Contains(t, out, "path=/d")
}
