package listen

import (
	"sync"
	"time"

	"jarvis/internal/bus"
)

// DefaultTail covers the echo still in the room after the speaker stops.
const DefaultTail = 400 * time.Millisecond

// Gate tracks whether the assistant is talking. Audio captured while it was
// talking, or shortly after, must be thrown away.
type Gate struct {
	tail time.Duration
	now  func() time.Time

	mu       sync.Mutex
	speaking bool
	quietAt  time.Time
	epoch    uint64
}

func NewGate(tail time.Duration) *Gate {
	if tail <= 0 {
		tail = DefaultTail
	}
	return &Gate{tail: tail, now: time.Now}
}

// Attach follows system:status_fala.
func (g *Gate) Attach(b *bus.Bus) {
	b.Subscribe(bus.StatusFala, func(ev bus.Event) {
		g.Set(ev.Bool("status"))
	})
}

func (g *Gate) Set(speaking bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if speaking {
		g.epoch++
	} else if g.speaking {
		g.quietAt = g.now()
	}
	g.speaking = speaking
}

// Open reports whether the microphone may be trusted right now, and the
// epoch to hand to Clean once the capture ends.
func (g *Gate) Open() (bool, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openLocked(), g.epoch
}

// Clean reports whether nothing was spoken since Open returned epoch and
// the tail has passed.
func (g *Gate) Clean(epoch uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch == epoch && g.openLocked()
}

func (g *Gate) openLocked() bool {
	if g.speaking {
		return false
	}
	return g.quietAt.IsZero() || g.now().Sub(g.quietAt) >= g.tail
}
