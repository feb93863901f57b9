package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// sseFrame is one server-sent event: a bus event frame followed by a fresh
// snapshot frame, so a connected client never has to separately poll
// /api/snapshot to stay in sync (spec §6).
type sseFrame struct {
	event string
	data  any
}

// sseHub fans out frames to every connected SSE client.
type sseHub struct {
	mu      sync.Mutex
	clients map[chan sseFrame]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[chan sseFrame]struct{})}
}

func (h *sseHub) subscribe() chan sseFrame {
	ch := make(chan sseFrame, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *sseHub) unsubscribe(ch chan sseFrame) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *sseHub) publish(frame sseFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			// slow client; drop the frame rather than block the emitter.
		}
	}
}

func (h *sseHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.sse.subscribe()
	defer s.sse.unsubscribe(ch)

	writeFrame(w, sseFrame{event: "snapshot", data: s.snapshot()})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			writeFrame(w, frame)
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, frame sseFrame) {
	data, err := json.Marshal(frame.data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.event, data)
}
