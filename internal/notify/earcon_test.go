package notify

import (
	"math"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
)

func TestToneLengthAndRange(t *testing.T) {
	sr := beep.SampleRate(8000)
	s := Tone(sr, 440, 100*time.Millisecond)

	buf := make([][2]float64, 256)
	total := 0
	for {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			assert.LessOrEqual(t, math.Abs(smp[0]), 0.3)
			assert.Equal(t, smp[0], smp[1])
		}
		total += n
		if !ok {
			break
		}
	}
	assert.Equal(t, sr.N(100*time.Millisecond), total)
}

func TestToneFadesIn(t *testing.T) {
	s := Tone(beep.SampleRate(8000), 440, 100*time.Millisecond)
	buf := make([][2]float64, 1)
	s.Stream(buf)
	assert.Zero(t, buf[0][0])
}
