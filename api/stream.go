package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"cdpledger/core/events"
	"cdpledger/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 256
)

// Hub fans ledger events out to websocket subscribers. Slow subscribers
// lose events instead of stalling block execution.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan *types.Event
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *types.Event)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(e events.Event) {
	ev := e.Event()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a new listener. The returned cancel func closes the
// channel.
func (h *Hub) Subscribe() (<-chan *types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan *types.Event, subscriberBuffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Dropped returns the number of events discarded for full subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// handleEvents streams events as JSON text frames. The optional "types"
// query parameter is a comma separated list of event types to keep.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseTypeFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter map[string]struct{}) error {
	updates, cancel := s.stream.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			if len(filter) > 0 {
				if _, keep := filter[ev.Type]; !keep {
					continue
				}
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev *types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]struct{} {
	filter := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter[part] = struct{}{}
		}
	}
	return filter
}

// Subscribers returns the number of connected listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
