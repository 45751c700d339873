// Package audio captures microphone speech with portaudio.
package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is what the transcriber expects.
const SampleRate = 16000

var ErrNoSpeech = errors.New("no speech captured")

// Options tune voice activity detection. Zero fields take the defaults.
type Options struct {
	FrameSize    int           // samples per read, 320 = 20ms
	Threshold    float64       // RMS above which a frame is speech
	Silence      time.Duration // trailing silence that ends an utterance
	MaxUtterance time.Duration // hard cap on one utterance
}

func (o Options) withDefaults() Options {
	if o.FrameSize <= 0 {
		o.FrameSize = 320
	}
	if o.Threshold <= 0 {
		o.Threshold = 0.015
	}
	if o.Silence <= 0 {
		o.Silence = 600 * time.Millisecond
	}
	if o.MaxUtterance <= 0 {
		o.MaxUtterance = 10 * time.Second
	}
	return o
}

type Recorder struct {
	opt Options
}

func NewRecorder(opt Options) *Recorder {
	return &Recorder{opt: opt.withDefaults()}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

// Record waits for speech and returns it once the speaker pauses. It gives
// up with ErrNoSpeech when ctx ends before anyone spoke.
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	buf := make([]float32, r.opt.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	vad := newDetector(r.opt)
	for {
		if err := ctx.Err(); err != nil {
			if out := vad.utterance(); len(out) > 0 {
				return out, nil
			}
			return nil, ErrNoSpeech
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if vad.push(buf) {
			return vad.utterance(), nil
		}
	}
}

// detector is the silence-terminated capture logic, kept apart from the
// device so it can be tested.
type detector struct {
	opt      Options
	frameDur time.Duration
	out      []float32
	speaking bool
	silent   time.Duration
	captured time.Duration
}

func newDetector(opt Options) *detector {
	return &detector{
		opt:      opt,
		frameDur: time.Duration(opt.FrameSize) * time.Second / SampleRate,
		out:      make([]float32, 0, SampleRate*3),
	}
}

// push consumes one frame and reports whether the utterance is complete.
func (d *detector) push(frame []float32) bool {
	if FrameRMS(frame) > d.opt.Threshold {
		d.speaking = true
		d.silent = 0
		d.out = append(d.out, frame...)
	} else if d.speaking {
		d.silent += d.frameDur
		d.out = append(d.out, frame...)
		if d.silent >= d.opt.Silence {
			return true
		}
	}
	if d.speaking {
		d.captured += d.frameDur
	}
	return d.captured >= d.opt.MaxUtterance
}

func (d *detector) utterance() []float32 {
	if !d.speaking {
		return nil
	}
	return d.out
}

// FrameRMS is the root mean square of f.
func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s / float64(len(f)))
}
