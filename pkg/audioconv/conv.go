// Package audioconv decodes audio files into the 16 kHz mono float PCM the
// transcriber wants.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// TargetRate is the output sample rate of every decoder.
const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

// Options bound the decoded length. MaxSamples <= 0 means unbounded.
type Options struct {
	MaxSamples int
}

type decoder func(r io.ReadSeeker) ([]float32, int, error)

// DecodeFile reads path and returns 16 kHz mono PCM. The container is
// picked by extension and, failing that, by magic bytes.
func DecodeFile(path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, filepath.Ext(path), opt)
}

// Decode is DecodeFile for an already open stream. ext may be empty.
func Decode(r io.ReadSeeker, ext string, opt Options) ([]float32, error) {
	chain, err := decodersFor(r, ext)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, dec := range chain {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		pcm, rate, err := dec(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out := Resample(pcm, rate, TargetRate)
		if opt.MaxSamples > 0 && len(out) > opt.MaxSamples {
			out = out[:opt.MaxSamples]
		}
		return out, nil
	}
	return nil, fmt.Errorf("decode %s: %w", ext, errors.Join(errs...))
}

func decodersFor(r io.ReadSeeker, ext string) ([]decoder, error) {
	switch strings.ToLower(ext) {
	case ".wav":
		return []decoder{decodeWAV}, nil
	case ".mp3":
		return []decoder{decodeMP3}, nil
	case ".ogg", ".oga", ".opus":
		return []decoder{decodeVorbis, decodeOpus}, nil
	}

	magic, _ := bufio.NewReader(r).Peek(4)
	switch {
	case string(magic) == "RIFF":
		return []decoder{decodeWAV}, nil
	case string(magic) == "OggS":
		return []decoder{decodeVorbis, decodeOpus}, nil
	case len(magic) >= 3 && (string(magic[:3]) == "ID3" || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0)):
		return []decoder{decodeMP3}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	channels, rate := int(dec.NumChans), int(dec.SampleRate)
	if buf.Format != nil {
		channels, rate = buf.Format.NumChannels, buf.Format.SampleRate
	}
	if rate <= 0 {
		rate = 44100
	}
	return Downmix(IntsToFloat(buf.Data, depth), channels), rate, nil
}

func decodeMP3(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	samples := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, 0, err
	}
	// go-mp3 always yields interleaved stereo.
	return Downmix(Int16ToFloat(samples), 2), dec.SampleRate(), nil
}

func decodeVorbis(r io.ReadSeeker) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	return Downmix(pcm, format.Channels), format.SampleRate, nil
}

func decodeOpus(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz
	var (
		pcm []float32
		buf = make([]int16, 24000*ch)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, Int16ToFloat(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	if len(pcm) == 0 {
		return nil, 0, errors.New("empty opus stream")
	}
	return Downmix(pcm, ch), 48000, nil
}

// IntsToFloat scales signed integer samples of the given bit depth into
// [-1, 1].
func IntsToFloat(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(min(max(float64(v)*scale, -1), 1))
	}
	return out
}

func Int16ToFloat(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates by linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(float64(len(in))*ratio + 0.999999)
	out := make([]float32, n)
	last := len(in) - 1
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
