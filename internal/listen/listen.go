// Package listen turns microphone audio into input:fala_reconhecida events.
package listen

import (
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"strings"
	"time"

	"jarvis/internal/bus"
)

// Source captures one utterance.
type Source interface {
	Record(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

type Publisher interface {
	Publish(name string, data map[string]any)
}

const (
	pollInterval  = 50 * time.Millisecond
	errorBackoff  = time.Second
	minSamples    = 16000 / 4
	transcribeCap = 60 * time.Second
)

// whisper marks non-speech with bracketed tags.
var annotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

type Listener struct {
	src  Source
	stt  Transcriber
	gate *Gate
	pub  Publisher
}

func New(src Source, stt Transcriber, gate *Gate, pub Publisher) *Listener {
	return &Listener{src: src, stt: stt, gate: gate, pub: pub}
}

// Run captures utterances until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	log.Info("Listening")
	for ctx.Err() == nil {
		ok, epoch := l.gate.Open()
		if !ok {
			sleep(ctx, pollInterval)
			continue
		}

		text, err := l.capture(ctx, epoch)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			log.Warn("Capture failed", "err", err)
			sleep(ctx, errorBackoff)
			continue
		}
		if text != "" {
			l.publish(text)
		}
	}
	return nil
}

// Once captures a single utterance, for the control socket trigger.
func (l *Listener) Once(ctx context.Context) (string, error) {
	for {
		ok, epoch := l.gate.Open()
		if ok {
			text, err := l.capture(ctx, epoch)
			if err != nil {
				return "", err
			}
			if text != "" {
				l.publish(text)
			}
			return text, nil
		}
		if !sleep(ctx, pollInterval) {
			return "", ctx.Err()
		}
	}
}

func (l *Listener) capture(ctx context.Context, epoch uint64) (string, error) {
	pcm, err := l.src.Record(ctx)
	if err != nil {
		return "", err
	}
	if len(pcm) < minSamples {
		return "", nil
	}
	if !l.gate.Clean(epoch) {
		log.Debug("Dropped audio captured while speaking", "samples", len(pcm))
		return "", nil
	}

	tctx, cancel := context.WithTimeout(ctx, transcribeCap)
	defer cancel()
	text, err := l.stt.Transcribe(tctx, pcm)
	if err != nil {
		return "", err
	}
	return Clean(text), nil
}

func (l *Listener) publish(text string) {
	log.Info("Transcribed", "text", text)
	l.pub.Publish(bus.FalaReconhecida, map[string]any{"texto": text})
}

// Clean removes whisper's non-speech annotations ("[BLANK_AUDIO]",
// "(música)") and surrounding space.
func Clean(text string) string {
	return strings.Join(strings.Fields(annotationRe.ReplaceAllString(text, " ")), " ")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
