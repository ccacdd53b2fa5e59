package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"armpose/internal/infrastructure"
)

// TypeConnection is sent to a client right after it registers
const TypeConnection = "connection"

const broadcastQueueSize = 256

// Message is the envelope of every event pushed to clients
type Message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *OTelMetrics

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *OTelMetrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		broadcast:  make(chan []byte, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "normal")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	ctx := client.context()
	hello, err := json.Marshal(Message{
		Type: TypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to armpose",
			"client_id": client.id,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   client.traceID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling connection message", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.totalConnections++
	// send is buffered and fresh, so the greeting always fits
	client.send <- hello
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))
	h.metrics.RecordConnection(ctx)
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
	h.metrics.RecordDisconnection(ctx, time.Since(client.connectedAt), reason)
}

func (h *Hub) fanOut(message []byte) {
	var slow []*Client

	// Sends happen under the lock so Stop cannot close a channel mid-send.
	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- message:
			h.messagesSent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.Unlock()

	for _, client := range slow {
		h.logger.Warn("Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.removeClient(client, "slow_consumer")
	}
}

// BroadcastUpdate queues an event for every connected client. It never
// blocks; when the queue is full the event is dropped and counted.
func (h *Hub) BroadcastUpdate(eventType, step, status string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, step, status, data, "")
}

// BroadcastUpdateWithTrace is BroadcastUpdate with a trace ID attached
func (h *Hub) BroadcastUpdateWithTrace(eventType, step, status string, data interface{}, traceID string) {
	msg := Message{
		Type:      eventType,
		Step:      step,
		Status:    status,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   traceID,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", eventType))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.RecordDropped(context.Background(), "broadcast")
		h.logger.Warn("Broadcast queue full, dropping message",
			slog.String("message_type", eventType))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetHubMetrics returns current hub counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
		"broadcast_queue":   len(h.broadcast),
	}
}

// Stop stops the loop and closes every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
