// Package stt transcribes 16 kHz mono PCM with whisper.cpp.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// DefaultLanguage is Brazilian Portuguese; whisper only takes the base code.
const DefaultLanguage = "pt"

var ErrNoAudio = errors.New("no audio samples provided")

type Config struct {
	ModelPath     string
	Language      string // "auto" detects
	Threads       int    // <=0 uses every CPU
	InitialPrompt string // biases spelling, e.g. the wake words
	BeamSize      int    // 0 keeps greedy decoding
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

type Transcriber struct {
	cfg   Config
	model whisper.Model

	// one whisper context at a time
	mu sync.Mutex
}

func NewTranscriber(cfg Config) (*Transcriber, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("empty model path")
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	m, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.ModelPath, err)
	}
	return &Transcriber{cfg: cfg, model: m}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe returns the text of pcm16k (mono, 16 kHz, [-1, 1]).
func (t *Transcriber) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	res, err := t.TranscribePCM(ctx, pcm16k)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, ErrNoAudio
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(t.cfg.Language); err != nil {
		return Result{}, fmt.Errorf("set language %s: %w", t.cfg.Language, err)
	}
	wctx.SetTranslate(false)
	wctx.SetThreads(uint(t.cfg.Threads))
	if t.cfg.BeamSize > 0 {
		wctx.SetBeamSize(t.cfg.BeamSize)
	}
	if t.cfg.InitialPrompt != "" {
		wctx.SetInitialPrompt(t.cfg.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{Text: s.Text, StartSec: s.Start.Seconds(), EndSec: s.End.Seconds()})
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}
	return Result{Text: strings.Join(parts, " "), Segments: segs, Language: lang}, nil
}
