package events

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/binhbb2204/mangashelf/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pingPeriod     = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
	broadcastQueue = 256
)

// Hub fans published events out to every connected client. A client whose
// send buffer is full is disconnected.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewHub creates a hub accepting browser connections from allowedOrigin.
// Requests without an Origin header are always accepted.
func NewHub(allowedOrigin string) *Hub {
	h := &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.GetLogger().WithContext("component", "events"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowedOrigin == "" {
				return true
			}
			return sameOrigin(origin, allowedOrigin)
		},
	}
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			metrics.SetActiveConnections(int64(len(h.clients)))
			h.mu.Unlock()
			// Greeting marks the point from which the client sees broadcasts.
			if data, err := json.Marshal(NewEvent(Connected, "", "", nil)); err == nil {
				c.send <- data
			}

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					metrics.IncrementBroadcastDrops()
					h.log.Warn("events_client_dropped", "remote", c.remote)
					h.remove(c)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.remove(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.SetActiveConnections(int64(len(h.clients)))
}

// Stop ends Run and disconnects every client. It is safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues e for delivery. It never blocks; when the queue is full the
// event is dropped.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Error("events_marshal_failed", "error", err.Error())
		return
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- data:
		metrics.IncrementBroadcasts()
	default:
		metrics.IncrementBroadcastDrops()
		h.log.Warn("events_queue_full", "type", string(e.Type))
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("events_upgrade_failed", "error", err.Error())
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: c.ClientIP(),
	}

	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}

	h.log.Debug("events_client_connected", "remote", cl.remote)
	go cl.writePump()
	go cl.readPump()
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
