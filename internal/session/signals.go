package session

import (
	"sync"

	"fracturedechoes.app/internal/protocol"
)

// signalHub fans lifecycle signals out to subscribers. Publishing never
// blocks; a subscriber that stops draining misses signals rather than
// stalling a save.
type signalHub struct {
	mu   sync.Mutex
	subs map[int]chan protocol.SignalMsg
	next int
}

func newSignalHub() *signalHub {
	return &signalHub{subs: make(map[int]chan protocol.SignalMsg)}
}

func (h *signalHub) Subscribe() (<-chan protocol.SignalMsg, func()) {
	ch := make(chan protocol.SignalMsg, 64)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *signalHub) publish(msg protocol.SignalMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
