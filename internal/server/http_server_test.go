package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/pipeline"
)

func TestHealth(t *testing.T) {
	s := NewHTTPServer(runHub(t), 0, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestTopicsFromRequest(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: nil},
		{query: "topics=created", want: []string{"created"}},
		{query: "topics=created,%20moved,,", want: []string{"created", "moved"}},
		{query: "topics=created&topics=degraded", want: []string{"created", "degraded"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/sse?"+tt.query, nil)
			assert.Equal(t, tt.want, topicsFromRequest(r))
		})
	}
}

func TestSSE_StreamsSubscribedTopics(t *testing.T) {
	h := runHub(t)
	srv := httptest.NewServer(NewHTTPServer(h, 0, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?topics=deleted", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Handle(ctx, pipeline.Notification{Event: classifier.Create("/d/skip"), Received: time.Now()}))
	require.NoError(t, h.Handle(ctx, pipeline.Notification{Event: classifier.Delete("/d/gone"), Rule: "vanished", Received: time.Now()}))

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case line == "event: deleted\n":
			eventLine = line
		case eventLine != "" && strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(dataLine), &envelope))
	assert.Equal(t, "deleted", envelope["topic"])

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(envelope["data"]), &payload))
	assert.Equal(t, "deleted", payload["kind"])
	assert.Equal(t, "/d/gone", payload["path"])
	assert.Equal(t, "vanished", payload["rule"])

	cancel()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
