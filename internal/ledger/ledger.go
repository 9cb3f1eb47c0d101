// Package ledger tracks which one-time scripted events have already fired,
// so reloading a save never replays them. Repeatable events are not tracked.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"fracturedechoes.app/internal/save"
)

const TypeTag = "scripted_event_ledger"

// State is the serialized ledger shape: a set carried as a sorted list.
type State struct {
	Triggered []string `json:"triggered"`
}

type Ledger struct {
	mu        sync.Mutex
	triggered map[string]struct{}
}

func New() *Ledger {
	return &Ledger{triggered: make(map[string]struct{})}
}

// MarkTriggered records a one-time event as fired. Idempotent.
func (l *Ledger) MarkTriggered(eventID string) {
	if eventID == "" {
		return
	}
	l.mu.Lock()
	l.triggered[eventID] = struct{}{}
	l.mu.Unlock()
}

func (l *Ledger) IsTriggered(eventID string) bool {
	l.mu.Lock()
	_, ok := l.triggered[eventID]
	l.mu.Unlock()
	return ok
}

// Snapshot returns the sorted set of fired event IDs.
func (l *Ledger) Snapshot() []string {
	l.mu.Lock()
	out := make([]string, 0, len(l.triggered))
	for id := range l.triggered {
		out = append(out, id)
	}
	l.mu.Unlock()
	sort.Strings(out)
	return out
}

// Restore replaces the ledger contents wholesale. A load fully supersedes
// prior in-memory state; nothing is merged.
func (l *Ledger) Restore(eventIDs []string) {
	next := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if id == "" {
			continue
		}
		next[id] = struct{}{}
	}
	l.mu.Lock()
	l.triggered = next
	l.mu.Unlock()
}

func (l *Ledger) SaveID() string  { return "scripted_events" }
func (l *Ledger) TypeTag() string { return TypeTag }

func (l *Ledger) CaptureState() (any, error) {
	return State{Triggered: l.Snapshot()}, nil
}

func (l *Ledger) RestoreState(v any) error {
	st, ok := v.(State)
	if !ok {
		return fmt.Errorf("ledger: unexpected state type %T", v)
	}
	l.Restore(st.Triggered)
	return nil
}

// RegisterCodec wires the ledger's decoder into a codec registry.
func RegisterCodec(c *save.Codec) error {
	return c.Register(TypeTag, save.JSONDecoder[State]())
}

var _ save.Saveable = (*Ledger)(nil)
