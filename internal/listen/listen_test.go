package listen

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

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newGate(c *clock) *Gate {
	g := NewGate(400 * time.Millisecond)
	g.now = c.now
	return g
}

func TestGateClosedWhileSpeakingAndDuringTail(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	g := newGate(c)

	ok, _ := g.Open()
	assert.True(t, ok)

	g.Set(true)
	ok, _ = g.Open()
	assert.False(t, ok)

	g.Set(false)
	c.advance(100 * time.Millisecond)
	ok, _ = g.Open()
	assert.False(t, ok, "inside the tail")

	c.advance(300 * time.Millisecond)
	ok, _ = g.Open()
	assert.True(t, ok)
}

func TestGateDetectsSpeechDuringCapture(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	g := newGate(c)

	_, epoch := g.Open()
	g.Set(true)
	g.Set(false)
	c.advance(time.Second)

	assert.False(t, g.Clean(epoch))

	_, epoch = g.Open()
	assert.True(t, g.Clean(epoch))
}

func TestGateFollowsBus(t *testing.T) {
	b := bus.New()
	g := NewGate(0)
	g.Attach(b)

	b.Publish(bus.StatusFala, map[string]any{"status": true})
	ok, _ := g.Open()
	assert.False(t, ok)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "jarvis tocar coldplay", Clean(" [BLANK_AUDIO] jarvis  tocar coldplay (música) "))
	assert.Empty(t, Clean("*risos*"))
}

type fakeSource struct {
	mu    sync.Mutex
	takes [][]float32
	onRec func()
}

func (f *fakeSource) Record(ctx context.Context) ([]float32, error) {
	f.mu.Lock()
	if len(f.takes) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	pcm := f.takes[0]
	f.takes = f.takes[1:]
	hook := f.onRec
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return pcm, nil
}

type fakeSTT struct{ texts []string }

func (f *fakeSTT) Transcribe(context.Context, []float32) (string, error) {
	t := f.texts[0]
	f.texts = f.texts[1:]
	return t, nil
}

func TestRunPublishesTranscripts(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.New()
	var (
		mu    sync.Mutex
		heard []string
	)
	b.Subscribe(bus.FalaReconhecida, func(ev bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		heard = append(heard, ev.Text("texto"))
	})

	speech := make([]float32, 16000)
	src := &fakeSource{takes: [][]float32{speech, make([]float32, 10), speech}}
	stt := &fakeSTT{texts: []string{"jarvis que horas são", "[BLANK_AUDIO]"}}
	l := New(src, stt, NewGate(0), b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.takes) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"jarvis que horas são"}, heard)
}

func TestOnceDropsSelfHearing(t *testing.T) {
	g := NewGate(time.Millisecond)
	src := &fakeSource{takes: [][]float32{make([]float32, 16000)}}
	src.onRec = func() {
		g.Set(true)
		g.Set(false)
	}
	l := New(src, &fakeSTT{texts: []string{"eco"}}, g, bus.New())

	text, err := l.Once(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text)
}
