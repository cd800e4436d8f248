package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/internal/hub"
)

// HTTPServer streams classified events to browsers over Server-Sent Events
type HTTPServer struct {
	hub          *hub.Hub
	mux          *http.ServeMux
	server       *http.Server
	logger       hclog.Logger
	pingInterval time.Duration
}

// NewHTTPServer creates a new HTTP SSE server
func NewHTTPServer(h *hub.Hub, port int, logger hclog.Logger) *HTTPServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	mux := http.NewServeMux()
	s := &HTTPServer{
		hub:          h,
		mux:          mux,
		logger:       logger,
		pingInterval: 30 * time.Second,
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
	}

	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Handler returns the routes, for embedding or tests
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// handleSSE handles a Server-Sent Events connection
func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	topics := topicsFromRequest(r)
	client := s.hub.NewClient(topics...)
	if !s.hub.Register(client) {
		http.Error(w, "hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unregister(client)

	s.logger.Info("sse client connected", "client", client.ID, "topics", topics)

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", client.ID)
	flusher.Flush()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]string{
				"event": msg.Event,
				"topic": msg.Topic,
				"data":  msg.Data,
			})
			if err != nil {
				s.logger.Error("marshal sse message", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, "event: ping\ndata: %s\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()

		case <-r.Context().Done():
			s.logger.Info("sse client disconnected", "client", client.ID)
			return
		}
	}
}

// handleHealth provides health check endpoint
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"clients":   s.hub.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("encode health response", "error", err)
	}
}

// topicsFromRequest reads a comma separated topics query parameter.
// No topics means every topic.
func topicsFromRequest(r *http.Request) []string {
	var topics []string
	for _, param := range r.URL.Query()["topics"] {
		for _, topic := range strings.Split(param, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				topics = append(topics, topic)
			}
		}
	}
	return topics
}

// Start serves until Stop is called
func (s *HTTPServer) Start() error {
	s.logger.Info("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}
