package websocket

import (
	"log/slog"
	"sync"
)

// Broadcaster is implemented by Hub; kept as an interface so observers don't
// depend on the concrete channel-based implementation (and so a future
// Redis-backed adapter can stand in for horizontal scaling, per the
// teacher's original comment on this type).
type Broadcaster interface {
	Broadcast(userID, topic string, event *WSEvent)
}

type broadcastMsg struct {
	userID string
	topic  string
	event  *WSEvent
}

// Hub manages WebSocket connections for the operator dashboard and
// broadcasts ledger/health events to clients subscribed to each topic
// (spec.md §5's two dashboard feeds: the Event Ledger and component
// health). It implements Broadcaster.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byUserID map[string]map[*Client]bool
	byTopic  map[string]map[*Client]bool

	logger *slog.Logger
	mu     sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byUserID:   make(map[string]map[*Client]bool),
		byTopic:    make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if client.userID != "" {
		if h.byUserID[client.userID] == nil {
			h.byUserID[client.userID] = make(map[*Client]bool)
		}
		h.byUserID[client.userID][client] = true
	}

	h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID, "total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if client.userID != "" {
		if clients, ok := h.byUserID[client.userID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byUserID, client.userID)
			}
		}
	}

	client.subs.mu.RLock()
	for topic := range client.subs.topics {
		if clients, ok := h.byTopic[topic]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byTopic, topic)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug("client unregistered", "client_id", client.id, "user_id", client.userID, "total_clients", len(h.clients))
}

// Broadcast sends an event to clients subscribed to topic (or, if userID is
// set, to that user's clients subscribed to topic).
func (h *Hub) Broadcast(userID, topic string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{userID: userID, topic: topic, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	if msg.userID != "" {
		if clients, ok := h.byUserID[msg.userID]; ok {
			for client := range clients {
				if client.shouldReceive(msg.topic) {
					targets[client] = true
				}
			}
		}
	} else if clients, ok := h.byTopic[msg.topic]; ok {
		for client := range clients {
			targets[client] = true
		}
	}

	for client := range targets {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn("client buffer full, dropping message", "client_id", client.id, "event_type", msg.event.Type)
		}
	}
}

// Subscribe adds a client's subscription to topic.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	client.subs.topics[topic] = true
	if h.byTopic[topic] == nil {
		h.byTopic[topic] = make(map[*Client]bool)
	}
	h.byTopic[topic][client] = true

	h.logger.Debug("client subscribed", "client_id", client.id, "topic", topic)
}

// Unsubscribe removes a client's subscription to topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	delete(client.subs.topics, topic)
	if clients, ok := h.byTopic[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byTopic, topic)
		}
	}

	h.logger.Debug("client unsubscribed", "client_id", client.id, "topic", topic)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
