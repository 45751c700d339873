// Package tts owns the speaker: it queues output:falar texts and says them
// one at a time, bracketing each with system:status_fala.
package tts

import (
	"context"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jarvis/internal/bus"
)

const queueSize = 32

// Engine turns text into sound and returns when it finished playing.
type Engine interface {
	Speak(ctx context.Context, text string) error
}

type Publisher interface {
	Publish(name string, data map[string]any)
}

var emotionRe = regexp.MustCompile(`^\s*\(([\p{L}_]+)\)\s*`)

// SplitEmotion separates the leading "(feliz)" tag from the text.
func SplitEmotion(text string) (emotion, rest string) {
	m := emotionRe.FindStringSubmatchIndex(text)
	if m == nil {
		return "", strings.TrimSpace(text)
	}
	return strings.ToLower(text[m[2]:m[3]]), strings.TrimSpace(text[m[1]:])
}

type Worker struct {
	engine Engine
	pub    Publisher
	queue  chan string
	busy   atomic.Int32

	wg   sync.WaitGroup
	once sync.Once
	stop chan struct{}
}

func New(engine Engine, pub Publisher) *Worker {
	return &Worker{
		engine: engine,
		pub:    pub,
		queue:  make(chan string, queueSize),
		stop:   make(chan struct{}),
	}
}

// Attach subscribes the worker to output:falar.
func (w *Worker) Attach(b *bus.Bus) {
	b.Subscribe(bus.Falar, func(ev bus.Event) {
		w.Enqueue(ev.Text("texto"))
	})
}

// Enqueue never blocks; when the queue is full the text is dropped.
func (w *Worker) Enqueue(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	select {
	case <-w.stop:
		return
	default:
	}
	w.busy.Add(1)
	select {
	case w.queue <- text:
	default:
		w.busy.Add(-1)
		log.Warn("Speech queue full, dropping", "text", text)
	}
}

// Drain waits until everything queued has been said or ctx ends.
func (w *Worker) Drain(ctx context.Context) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for w.busy.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Start runs the speaking goroutine until Stop or ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case text := <-w.queue:
				w.say(ctx, text)
				w.busy.Add(-1)
			}
		}
	}()
}

// Stop ends the worker; queued texts are discarded.
func (w *Worker) Stop(ctx context.Context) error {
	w.once.Do(func() { close(w.stop) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) say(ctx context.Context, text string) {
	emotion, body := SplitEmotion(text)
	if body == "" {
		return
	}

	w.pub.Publish(bus.StatusFala, map[string]any{"status": true})
	defer w.pub.Publish(bus.StatusFala, map[string]any{"status": false})

	log.Debug("Speaking", "emotion", emotion, "text", body)
	if err := w.engine.Speak(ctx, body); err != nil {
		log.Error("Failed to voice out", "err", err)
	}
}
