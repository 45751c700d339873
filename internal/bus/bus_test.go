package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrder(t *testing.T) {
	b := New()

	var got []string
	b.Subscribe(Falar, func(Event) { got = append(got, "first") })
	b.Subscribe(Wildcard, func(Event) { got = append(got, "wildcard") })
	b.Subscribe(Falar, func(Event) { got = append(got, "second") })
	b.Subscribe(Pensando, func(Event) { got = append(got, "other") })

	b.Speak("oi")

	assert.Equal(t, []string{"first", "wildcard", "second"}, got)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	b := New()

	delivered := false
	b.Subscribe(Falar, func(Event) { panic("boom") })
	b.Subscribe(Falar, func(e Event) { delivered = e.Text("texto") == "oi" })

	require.NotPanics(t, func() { b.Speak("oi") })
	assert.True(t, delivered)
}

func TestSubscriberMayPublish(t *testing.T) {
	b := New()

	var spoken string
	b.Subscribe(FalaReconhecida, func(e Event) { b.Speak("eco " + e.Text("texto")) })
	b.Subscribe(Falar, func(e Event) { spoken = e.Text("texto") })

	b.Publish(FalaReconhecida, map[string]any{"texto": "teste"})

	assert.Equal(t, "eco teste", spoken)
}

func TestReset(t *testing.T) {
	b := New()

	calls := 0
	b.Subscribe(Wildcard, func(Event) { calls++ })
	b.Reset()
	b.Publish(Shutdown, nil)

	assert.Zero(t, calls)
}

func TestConcurrentPublish(t *testing.T) {
	b := New()

	var (
		mu    sync.Mutex
		count int
	)
	b.Subscribe(Log, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Log, map[string]any{"message": "x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
}
