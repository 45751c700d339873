// Package notify plays the short sound that tells the user the assistant
// woke up.
package notify

import (
	"fmt"
	log "log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"jarvis/internal/bus"
)

const (
	sampleRate = beep.SampleRate(44100)
	toneFreq   = 880.0
	toneLength = 120 * time.Millisecond
)

// Earcon plays a file when one is configured and a synthesized tone
// otherwise.
type Earcon struct {
	path string

	initOnce sync.Once
	initErr  error
	mu       sync.Mutex
}

func NewEarcon(path string) *Earcon {
	return &Earcon{path: path}
}

// Attach plays the earcon on every fresh activation. Playback runs on its
// own goroutine; the bus is never blocked.
func (e *Earcon) Attach(b *bus.Bus) {
	b.Subscribe(bus.Atencao, func(ev bus.Event) {
		if !ev.Bool("ativo") {
			return
		}
		go func() {
			if err := e.Play(); err != nil {
				log.Warn("Earcon failed", "err", err)
			}
		}()
	})
}

// Play blocks until the sound finished.
func (e *Earcon) Play() error {
	e.initOnce.Do(func() {
		e.initErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	if e.initErr != nil {
		return fmt.Errorf("init speaker: %w", e.initErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stream, closeFn, err := e.stream()
	if err != nil {
		return err
	}
	defer closeFn()

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

func (e *Earcon) stream() (beep.Streamer, func(), error) {
	if e.path == "" {
		return Tone(sampleRate, toneFreq, toneLength), func() {}, nil
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open earcon: %w", err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(e.path)) {
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		s, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("decode %s: %w", e.path, err)
	}

	var out beep.Streamer = s
	if format.SampleRate != sampleRate {
		out = beep.Resample(4, format.SampleRate, sampleRate, s)
	}
	return out, func() { s.Close() }, nil
}

// Tone is a sine beep with a short linear fade at both ends.
func Tone(sr beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	total := sr.N(d)
	fade := total / 10
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			amp := 0.3
			switch {
			case pos < fade:
				amp *= float64(pos) / float64(fade)
			case pos > total-fade:
				amp *= float64(total-pos) / float64(fade)
			}
			v := amp * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i][0], samples[i][1] = v, v
			pos++
			n++
		}
		return n, true
	})
}
