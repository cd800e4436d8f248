package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/internal/pipeline"
)

// TopicDegraded carries windows whose observation was partial
const TopicDegraded = "degraded"

// TopicAll subscribes a client to every topic
const TopicAll = "*"

// Message represents a published message
type Message struct {
	Event string
	Topic string
	Data  string
}

// EventPayload is the JSON body of an event message
type EventPayload struct {
	Kind      string   `json:"kind"`
	Path      string   `json:"path,omitempty"`
	NewPath   string   `json:"new_path,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Client represents a subscriber connection
type Client struct {
	ID     string
	Hub    *Hub
	Send   chan Message
	Topics map[string]bool
	mu     sync.RWMutex
}

// Hub manages subscribers and broadcasts classified events to them
type Hub struct {
	clients    map[string]*Client
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     hclog.Logger
	mu         sync.RWMutex
}

// NewHub creates a new hub
func NewHub(logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan Message, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// NewClient creates a new client subscribed to the given topics.
// No topics means every topic.
func (h *Hub) NewClient(topics ...string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Hub:    h,
		Send:   make(chan Message, 256),
		Topics: make(map[string]bool),
	}
	for _, topic := range topics {
		c.Subscribe(topic)
	}
	return c
}

// Register registers a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every subscribed client
func (h *Hub) Broadcast(ctx context.Context, msg Message) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle publishes a notification. Unknown events are only published when
// the window was degraded, on the degraded topic.
func (h *Hub) Handle(ctx context.Context, n pipeline.Notification) error {
	if n.Degraded() {
		if err := h.Broadcast(ctx, newMessage(TopicDegraded, n)); err != nil {
			return err
		}
	}
	if n.Event.IsUnknown() {
		return nil
	}
	return h.Broadcast(ctx, newMessage(string(n.Event.Kind), n))
}

// Done is closed when Run returns
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run runs the hub's main loop until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client", client.ID, "total", count)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.clients {
				if !client.IsSubscribed(message.Topic) {
					continue
				}
				select {
				case client.Send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			// Client buffer full, disconnect slow client
			for _, client := range slow {
				h.logger.Warn("dropping slow client", "client", client.ID)
				h.removeClient(client)
			}

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// IsSubscribed checks if client is subscribed to a topic
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If no topics specified, subscribe to all
	if len(c.Topics) == 0 || c.Topics[TopicAll] {
		return true
	}

	return c.Topics[topic]
}

// Subscribe subscribes client to a topic
func (c *Client) Subscribe(topic string) {
	if topic == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Topics[topic] = true
}

// Unsubscribe unsubscribes client from a topic
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Topics, topic)
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		delete(h.clients, client.ID)
		close(client.Send)
		h.logger.Debug("client unregistered", "client", client.ID)
	}
}

// shutdown closes every client channel
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
}

func newMessage(topic string, n pipeline.Notification) Message {
	payload := EventPayload{
		Kind:      string(n.Event.Kind),
		Path:      n.Event.Path,
		NewPath:   n.Event.NewPath,
		Rule:      n.Rule,
		Timestamp: n.Received.Unix(),
	}
	for _, err := range n.Errors {
		payload.Errors = append(payload.Errors, err.Error())
	}
	if n.Received.IsZero() {
		payload.Timestamp = time.Now().Unix()
	}

	// EventPayload holds only strings and ints; Marshal cannot fail.
	data, _ := json.Marshal(payload)
	return Message{Event: topic, Topic: topic, Data: string(data)}
}
