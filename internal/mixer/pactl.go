// Package mixer drives PulseAudio through pactl: master volume for the
// sistema specialist and ducking of other streams while the assistant talks.
package mixer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"jarvis/internal/sysexec"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const (
	defaultSink = "@DEFAULT_SINK@"
	maxPercent  = 150
)

type stream struct {
	ID      int
	Volume  int
	AppName string
}

// Mixer wraps pactl.
type Mixer struct {
	run sysexec.Runner
}

func New(run sysexec.Runner) *Mixer {
	if run == nil {
		run = sysexec.Exec{}
	}
	return &Mixer{run: run}
}

// Volume returns the default sink volume in percent.
func (m *Mixer) Volume(ctx context.Context) (int, error) {
	out, err := m.run.Run(ctx, "pactl", "get-sink-volume", defaultSink)
	if err != nil {
		return 0, err
	}
	match := percentRe.FindStringSubmatch(string(out))
	if len(match) < 2 {
		return 0, fmt.Errorf("no volume in pactl output %q", strings.TrimSpace(string(out)))
	}
	return strconv.Atoi(match[1])
}

// SetVolume sets the default sink volume, clamped to 0..150%.
func (m *Mixer) SetVolume(ctx context.Context, percent int) error {
	_, err := m.run.Run(ctx, "pactl", "set-sink-volume", defaultSink, fmt.Sprintf("%d%%", clamp(percent)))
	return err
}

// Adjust changes the volume by delta points and returns the new value.
func (m *Mixer) Adjust(ctx context.Context, delta int) (int, error) {
	cur, err := m.Volume(ctx)
	if err != nil {
		return 0, err
	}
	next := clamp(cur + delta)
	if err := m.SetVolume(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Mixer) streams(ctx context.Context) ([]stream, error) {
	out, err := m.run.Run(ctx, "pactl", "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	return parseStreams(string(out)), nil
}

func (m *Mixer) setStreamVolume(ctx context.Context, id, percent int) error {
	_, err := m.run.Run(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clamp(percent)))
	return err
}

// parseStreams reads `pactl list sink-inputs`.
func parseStreams(text string) []stream {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []stream
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := stream{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if q := strings.Index(line, `"`); q >= 0 {
					rest := line[q+1:]
					if end := strings.Index(rest, `"`); end >= 0 {
						s.AppName = rest[:end]
					}
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > maxPercent {
		return maxPercent
	}
	return p
}
