// Package lifecycle stops the daemon's subsystems in reverse start order.
package lifecycle

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"jarvis/internal/bus"
)

// DefaultGrace is how long one stop hook may take.
const DefaultGrace = 2 * time.Second

type hook struct {
	name string
	stop func(ctx context.Context) error
}

type Manager struct {
	grace time.Duration

	mu    sync.Mutex
	hooks []hook

	once sync.Once
	done chan struct{}
}

func New(grace time.Duration) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{grace: grace, done: make(chan struct{})}
}

// Register adds a subsystem. Hooks run last-registered first.
func (m *Manager) Register(name string, stop func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, stop: stop})
}

// Attach shuts everything down when system:shutdown is published. The
// hooks run on their own goroutine so the publisher is not blocked.
func (m *Manager) Attach(b *bus.Bus) {
	b.Subscribe(bus.Shutdown, func(bus.Event) {
		go m.Shutdown()
	})
}

// Done is closed once every hook returned or timed out.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs the hooks once. Later calls wait for the first one.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		hooks := append([]hook(nil), m.hooks...)
		m.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			m.stop(hooks[i])
		}
		log.Info("Shutdown complete")
	})
	<-m.done
}

func (m *Manager) stop(h hook) {
	ctx, cancel := context.WithTimeout(context.Background(), m.grace)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Stop hook panicked", "subsystem", h.name, "err", r)
				errc <- nil
			}
		}()
		errc <- h.stop(ctx)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Warn("Subsystem stopped with error", "subsystem", h.name, "err", err)
			return
		}
		log.Debug("Subsystem stopped", "subsystem", h.name)
	case <-ctx.Done():
		log.Warn("Subsystem did not stop in time", "subsystem", h.name, "grace", m.grace)
	}
}
