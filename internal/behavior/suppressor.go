package behavior

import (
	"sync"
	"time"

	"github.com/your-org/vms/internal/models"
)

// Suppressor enforces a minimum gap between alerts sharing the same key.
type Suppressor struct {
	window time.Duration

	mu   sync.Mutex
	last map[models.AlertKey]time.Time
}

func NewSuppressor(window time.Duration) *Suppressor {
	return &Suppressor{window: window, last: make(map[models.AlertKey]time.Time)}
}

// Allow reports whether an alert for key may fire at ts and, if so, records ts
// as the key's last emission.
func (s *Suppressor) Allow(key models.AlertKey, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[key]; ok && ts.Sub(prev) < s.window {
		return false
	}
	s.last[key] = ts
	return true
}

// Sweep forgets keys last emitted before cutoff.
func (s *Suppressor) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, at := range s.last {
		if at.Before(cutoff) {
			delete(s.last, k)
			n++
		}
	}
	return n
}

func (s *Suppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
