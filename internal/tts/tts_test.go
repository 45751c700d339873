package tts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jarvis/internal/bus"
)

type fakeEngine struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeEngine) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeEngine) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func TestSplitEmotion(t *testing.T) {
	e, rest := SplitEmotion("(feliz) Bom dia, senhor.")
	assert.Equal(t, "feliz", e)
	assert.Equal(t, "Bom dia, senhor.", rest)

	e, rest = SplitEmotion("Sem etiqueta (aqui).")
	assert.Empty(t, e)
	assert.Equal(t, "Sem etiqueta (aqui).", rest)
}

func TestWorkerSpeaksInOrderWithStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.New()
	var (
		mu     sync.Mutex
		status []bool
	)
	b.Subscribe(bus.StatusFala, func(ev bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		status = append(status, ev.Bool("status"))
	})

	eng := &fakeEngine{}
	w := New(eng, b)
	w.Attach(b)
	w.Start(context.Background())

	b.Speak("(neutro) Um momento, senhor.")
	b.Speak("   ")
	b.Speak("Tocando coldplay no Spotify.")

	require.Eventually(t, func() bool { return len(eng.said()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))

	assert.Equal(t, []string{"Um momento, senhor.", "Tocando coldplay no Spotify."}, eng.said())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false, true, false}, status)
}

func TestEnqueueAfterStopIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	eng := &fakeEngine{}
	w := New(eng, bus.New())
	w.Start(context.Background())
	require.NoError(t, w.Stop(context.Background()))

	w.Enqueue("olá")
	assert.Empty(t, eng.said())
}

func TestDrainWaitsForQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	eng := &fakeEngine{}
	w := New(eng, bus.New())
	w.Enqueue("Desligando, senhor. Até logo.")
	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Drain(ctx))
	require.NoError(t, w.Stop(context.Background()))

	assert.Equal(t, []string{"Desligando, senhor. Até logo."}, eng.said())
}
