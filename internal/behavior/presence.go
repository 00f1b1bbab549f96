package behavior

import (
	"sync"
	"time"

	"github.com/your-org/vms/internal/models"
)

// PresenceState is the dwell record for one (visitor, camera) pair.
type PresenceState struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	LastLocation string
}

// Dwell is the observed time between the first and latest sighting.
func (p PresenceState) Dwell() time.Duration {
	return p.LastSeen.Sub(p.FirstSeen)
}

// PresenceTracker owns dwell state per (visitor, camera) and the set of visitors
// currently inside the venue.
type PresenceTracker struct {
	mu       sync.Mutex
	presence map[models.PresenceKey]*PresenceState
	inside   map[string]time.Time
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		presence: make(map[models.PresenceKey]*PresenceState),
		inside:   make(map[string]time.Time),
	}
}

// Observe records a sighting and returns the updated state. LastSeen never moves
// backwards for out-of-order timestamps. A sighting of a visitor who is inside
// also keeps their inside mark fresh.
func (t *PresenceTracker) Observe(key models.PresenceKey, location string, ts time.Time) PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if at, ok := t.inside[key.VisitorID]; ok && ts.After(at) {
		t.inside[key.VisitorID] = ts
	}

	st, ok := t.presence[key]
	if !ok {
		st = &PresenceState{FirstSeen: ts, LastSeen: ts}
		t.presence[key] = st
	}
	if ts.After(st.LastSeen) {
		st.LastSeen = ts
	}
	st.LastLocation = location
	return *st
}

// Enter marks the visitor inside and reports whether they already were.
func (t *PresenceTracker) Enter(visitorID string, ts time.Time) (wasInside bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, wasInside := t.inside[visitorID]
	if !wasInside || ts.After(at) {
		t.inside[visitorID] = ts
	}
	return wasInside
}

// Exit removes the visitor from the inside set.
func (t *PresenceTracker) Exit(visitorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inside, visitorID)
}

func (t *PresenceTracker) Inside(visitorID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inside[visitorID]
	return ok
}

// Len returns the number of tracked pairs and inside visitors.
func (t *PresenceTracker) Len() (pairs, inside int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.presence), len(t.inside)
}

// Sweep drops pairs not seen since cutoff. Inside marks are left alone.
func (t *PresenceTracker) Sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, st := range t.presence {
		if st.LastSeen.Before(cutoff) {
			delete(t.presence, k)
			n++
		}
	}
	return n
}

// SweepInside drops inside marks of visitors not seen anywhere since cutoff.
func (t *PresenceTracker) SweepInside(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, at := range t.inside {
		if at.Before(cutoff) {
			delete(t.inside, id)
			n++
		}
	}
	return n
}
