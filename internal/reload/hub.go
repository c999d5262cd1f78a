package reload

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagebuild/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

// Hub fans reload events out to browsers connected over server-sent events.
// Clients whose buffer is full are dropped rather than blocking the pipeline.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*client
	recorder metrics.Recorder
	logger   *slog.Logger
	closed   bool
}

type client struct {
	id   int
	ch   chan Event
	done chan struct{}
}

// NewHub creates a hub. A nil recorder or logger selects the defaults.
func NewHub(recorder metrics.Recorder, logger *slog.Logger) *Hub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: map[int]*client{}, recorder: recorder, logger: logger}
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "reload hub shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := &client{ch: make(chan Event, 8), done: make(chan struct{})}
	h.mu.Lock()
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	h.recorder.SetReloadClients(len(h.clients))
	h.mu.Unlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.removeClient(c.id)
		return
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(c.id)
			return
		case <-c.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				h.logger.Debug("reload ping write", "error", err)
				continue
			}
			_ = bw.Flush()
			flusher.Flush()
		case ev := <-c.ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := bw.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				h.logger.Debug("reload broadcast write", "error", err)
				continue
			}
			_ = bw.Flush()
			flusher.Flush()
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.recorder.SetReloadClients(len(h.clients))
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts ev to every connected client.
func (h *Hub) Notify(_ context.Context, ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncReloadBroadcast(string(ev.Kind))
	h.logger.Debug("reload broadcast", "kind", ev.Kind, "paths", len(ev.Paths), "clients", len(snapshot), "dropped", dropped)
}

// Shutdown disconnects every client and ignores later notifications.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetReloadClients(0)
}
