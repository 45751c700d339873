package tools

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"sort"
	"sync"

	"jarvis/internal/launcher"
	"jarvis/internal/memory"
)

// Deps is what a specialist factory may use.
type Deps struct {
	Bus      Publisher
	Launcher *launcher.Launcher
	Volume   VolumeControl
	Memory   *memory.Store
	HTTP     *http.Client
}

// VolumeControl is the master volume, in percent.
type VolumeControl interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, percent int) error
	Adjust(ctx context.Context, delta int) (int, error)
}

// Factory builds one specialist.
type Factory func(Deps) (Specialist, error)

var (
	catalogMu sync.Mutex
	catalog   = map[string]Factory{}
)

// Provide makes a specialist factory known to Discover. Specialist packages
// call it from init.
func Provide(name string, f Factory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if f == nil {
		panic("tools: Provide factory is nil")
	}
	if _, dup := catalog[name]; dup {
		panic("tools: Provide called twice for " + name)
	}
	catalog[name] = f
}

// Discover instantiates every provided specialist. A factory that fails is
// logged and skipped; the rest still load.
func (r *Registry) Discover(deps Deps) []string {
	catalogMu.Lock()
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	factories := make(map[string]Factory, len(catalog))
	for n, f := range catalog {
		factories[n] = f
	}
	catalogMu.Unlock()
	sort.Strings(names)

	var loaded []string
	for _, name := range names {
		s, err := build(factories[name], deps)
		if err != nil {
			log.Warn("Specialist skipped", "specialist", name, "err", err)
			continue
		}
		if err := r.RegisterSpecialist(s); err != nil {
			log.Warn("Specialist skipped", "specialist", name, "err", err)
			continue
		}
		loaded = append(loaded, s.Name())
	}
	log.Info("Specialists loaded", "count", len(loaded), "names", loaded)
	return loaded
}

func build(f Factory, deps Deps) (s Specialist, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()
	s, err = f(deps)
	if err == nil && s == nil {
		err = fmt.Errorf("factory returned nothing")
	}
	return s, err
}
