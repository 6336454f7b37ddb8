package httpapi

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/martinemde/taskrouter/agentloop"
)

const subscriberBuffer = 64

// hub fans run events out to SSE subscribers. Slow subscribers lose events
// rather than stall the run.
type hub struct {
	mu     sync.Mutex
	subs   map[chan agentloop.RunEvent]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan agentloop.RunEvent]struct{})}
}

func (h *hub) pump(events <-chan agentloop.RunEvent) {
	for ev := range events {
		h.publish(ev)
	}
	h.close()
}

func (h *hub) publish(ev agentloop.RunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// subscribe returns a channel of events and a function that releases it.
// The channel is closed when the hub closes.
func (h *hub) subscribe() (<-chan agentloop.RunEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan agentloop.RunEvent, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.events == nil {
		writeError(c, http.StatusNotFound, "event streaming is disabled")
		return
	}
	events, release := s.events.subscribe()
	defer release()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		}
	})
}
