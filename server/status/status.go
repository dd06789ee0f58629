package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mediadl/mediadl/server/internal/queue"
	middlewares "github.com/mediadl/mediadl/server/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub pushes queue snapshots to websocket clients, periodically and whenever
// Notify is called.
type Hub struct {
	q       *queue.Queue
	clients map[chan []queue.Row]struct{}
	mu      sync.Mutex
	kick    chan struct{}
}

func NewHub(q *queue.Queue) *Hub {
	return &Hub{
		q:       q,
		clients: make(map[chan []queue.Row]struct{}),
		kick:    make(chan struct{}, 1),
	}
}

// Notify requests an immediate push. It is meant to be subscribed to the
// queue topics.
func (h *Hub) Notify(queue.Row) {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-h.kick:
		}
		h.broadcast(h.q.Snapshot())
	}
}

func (h *Hub) broadcast(rows []queue.Row) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		// only the latest snapshot matters to a slow client
		select {
		case <-c:
		default:
		}
		c <- rows
	}
}

func (h *Hub) subscribe() chan []queue.Row {
	c := make(chan []queue.Row, 1)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	return c
}

func (h *Hub) unsubscribe(c chan []queue.Row) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) webSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade status connection", slog.Any("err", err))
		return
	}
	defer conn.Close()

	updates := h.subscribe()
	defer h.unsubscribe(updates)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(h.q.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case rows := <-updates:
			if err := conn.WriteJSON(rows); err != nil {
				slog.Debug("status client gone", slog.Any("err", err))
				return
			}
		}
	}
}

func (h *Hub) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.q.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ApplyRouter(h *Hub) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		r.Get("/", h.snapshot)
		r.Get("/ws", h.webSocket)
	}
}
