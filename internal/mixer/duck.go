package mixer

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"sync"
	"time"

	"jarvis/internal/bus"
)

type fade struct {
	id   int
	from int
	to   int
}

// Ducker lowers every stream not owned by the assistant while it speaks and
// restores them afterwards.
type Ducker struct {
	mixer     *Mixer
	selfNames map[string]bool
	factor    float64
	floor     int
	duration  time.Duration

	mu       sync.Mutex
	active   bool
	original map[int]int
}

// NewDucker scales foreign streams by factor, never below floor percent.
func NewDucker(m *Mixer, selfNames []string, factor float64, floor int) *Ducker {
	names := make(map[string]bool, len(selfNames))
	for _, n := range selfNames {
		names[n] = true
	}
	return &Ducker{
		mixer:     m,
		selfNames: names,
		factor:    factor,
		floor:     clamp(floor),
		duration:  150 * time.Millisecond,
		original:  map[int]int{},
	}
}

// Attach ducks on system:status_fala true and restores on false. The fades
// run on their own goroutine so the bus is never held up.
func (d *Ducker) Attach(b *bus.Bus) {
	b.Subscribe(bus.StatusFala, func(e bus.Event) {
		speaking := e.Bool("status")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			var err error
			if speaking {
				err = d.Duck(ctx)
			} else {
				err = d.Restore(ctx)
			}
			if err != nil {
				log.Debug("Ducking failed", "speaking", speaking, "err", err)
			}
		}()
	})
}

// Duck fades foreign streams down. Calling it twice is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.original = map[int]int{}
	var targets []fade
	for _, s := range streams {
		if d.selfNames[s.AppName] {
			continue
		}
		to := int(math.Round(float64(s.Volume) * d.factor))
		if to < d.floor {
			to = d.floor
		}
		d.original[s.ID] = s.Volume
		targets = append(targets, fade{id: s.ID, from: s.Volume, to: clamp(to)})
	}

	if err := d.fadeAll(ctx, targets); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back to where they were. Streams that
// appeared after Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var targets []fade
	for _, s := range streams {
		if orig, ok := d.original[s.ID]; ok {
			targets = append(targets, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}

	if err := d.fadeAll(ctx, targets); err != nil {
		return err
	}
	d.original = map[int]int{}
	d.active = false
	return nil
}

func (d *Ducker) fadeAll(ctx context.Context, targets []fade) error {
	if len(targets) == 0 {
		return nil
	}

	const stepEvery = 10 * time.Millisecond
	steps := int(d.duration / stepEvery)
	if steps < 1 {
		steps = 1
	}

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.mixer.setStreamVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		if i < steps {
			time.Sleep(d.duration / time.Duration(steps))
		}
	}
	return nil
}
