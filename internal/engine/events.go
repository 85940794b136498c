package engine

import (
	"sync"

	"github.com/dmitrijs2005/keepsake/internal/models"
)

// EventType discriminates engine notifications.
type EventType string

const (
	// EventStatusChanged is published whenever an asset's sync status
	// changes.
	EventStatusChanged EventType = "status_changed"
	// EventProgress is published on upload progress updates. For a
	// given memory id, progress values are observed in non-decreasing
	// order within one attempt.
	EventProgress EventType = "progress"
)

// Event is a state-change notification for UI layers. It replaces
// direct observation of mutable engine fields.
type Event struct {
	Type     EventType
	MemoryID string
	Status   models.SyncStatus
	Progress float64
	Err      string
}

// hub fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events rather than stalling a
// transfer.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// subscribe returns the event channel and a cancel function that
// removes the subscription. Cancel is idempotent.
func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[int]chan Event{}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	subs := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
