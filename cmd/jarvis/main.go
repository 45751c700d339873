package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"jarvis/internal/attention"
	"jarvis/internal/audio"
	"jarvis/internal/bridge"
	"jarvis/internal/bus"
	"jarvis/internal/cognition"
	"jarvis/internal/config"
	"jarvis/internal/dag"
	"jarvis/internal/ipc"
	"jarvis/internal/launcher"
	"jarvis/internal/lifecycle"
	"jarvis/internal/listen"
	"jarvis/internal/llm"
	"jarvis/internal/memory"
	"jarvis/internal/mixer"
	"jarvis/internal/notify"
	"jarvis/internal/orchestrator"
	"jarvis/internal/proxy"
	"jarvis/internal/reflex"
	"jarvis/internal/specialists"
	"jarvis/internal/sysexec"
	"jarvis/internal/tools"
	"jarvis/internal/tts"
	"jarvis/internal/tts/espeak"
	"jarvis/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.LogLevel],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")
	if err := run(cfg); err != nil {
		log.Error("Boot failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	b := bus.New()
	mirrorDiagnostics(b)

	life := lifecycle.New(lifecycle.DefaultGrace)
	life.Attach(b)

	brain, err := newBrain(cfg)
	if err != nil {
		return err
	}

	store, err := memory.Open(cfg.Path("memory.db"), newEmbedder(cfg))
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	life.Register("memory", func(context.Context) error { return store.Close() })
	log.Debug("Loaded memory", "facts", store.Count(ctx, memory.TipoFato), "tracks", store.Count(ctx, memory.TipoTrack))

	reflexes, err := reflex.New(cfg.DataDir, func() []string { return store.Artists(ctx) })
	if err != nil {
		return fmt.Errorf("reflex: %w", err)
	}
	go func() {
		if err := reflexes.Watch(ctx); err != nil {
			log.Warn("Reflex files not watched", "err", err)
		}
	}()

	runner := sysexec.Exec{}
	apps := launcher.New(cfg.Apps, runner)
	mix := mixer.New(runner)

	var opts []tools.Option
	if cfg.SafeMode {
		opts = append(opts, tools.WithSafeMode())
	}
	registry := tools.NewRegistry(b, opts...)
	loaded := registry.Discover(tools.Deps{
		Bus:      b,
		Launcher: apps,
		Volume:   mix,
		Memory:   store,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	})
	for _, t := range specialists.FunctionTools(store, nil) {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	log.Debug("Loaded tools", "specialists", loaded)

	att := attention.New(cfg.Attention, cfg.WakeWords, b)
	orch := orchestrator.New(orchestrator.Deps{
		Bus:       b,
		Reflex:    reflexes,
		Attention: att,
		Apps:      apps,
		Tools:     registry,
		Cognition: cognition.New(brain, store, registry),
		Executor:  dag.New(registry, store),
		Memory:    store,
	})
	orch.Attach(ctx)

	voice := tts.New(espeak.New(cfg.Voice, 0), b)
	voice.Attach(b)
	// Outlives the signal context so a farewell still reaches the speaker.
	voice.Start(context.WithoutCancel(ctx))
	life.Register("tts", func(ctx context.Context) error {
		_ = voice.Drain(ctx)
		return voice.Stop(ctx)
	})

	mixer.NewDucker(mix, []string{"espeak", "espeak-ng", "jarvis"}, 0.3, 10).Attach(b)
	notify.NewEarcon(cfg.Earcon).Attach(b)

	gate := listen.NewGate(listen.DefaultTail)
	gate.Attach(b)

	d := &daemon{bus: b, reflex: reflexes, memory: store, attention: att}
	if err := d.startMic(ctx, cfg, gate, life); err != nil {
		return err
	}

	socket := cfg.Socket
	if socket == "" {
		socket = ipc.DefaultSocket()
	}
	srv, err := ipc.Listen(socket, d.control)
	if err != nil {
		return err
	}
	go srv.Serve(ctx)
	life.Register("control", func(context.Context) error { return srv.Close() })

	if cfg.HubURL != "" {
		hub := bridge.New(cfg.HubURL, bridge.DefaultBackoff, b)
		hub.Attach()
		hubCtx, stopHub := context.WithCancel(ctx)
		go hub.Run(hubCtx)
		life.Register("hub", func(context.Context) error { stopHub(); return nil })
	}

	log.Info("Boot up - successful", "data", cfg.DataDir, "socket", socket, "wake", att.State())
	b.Speak("(feliz) Sistemas online, senhor.")

	select {
	case <-ctx.Done():
		log.Info("Signal received")
		b.Publish(bus.Shutdown, map[string]any{})
	case <-life.Done():
	}
	<-life.Done()
	return nil
}

func newBrain(cfg config.Config) (*llm.Client, error) {
	var httpClient *http.Client
	if cfg.Proxy != "" {
		c, err := proxy.NewSocksClient(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("dial socks proxy %s: %w", cfg.Proxy, err)
		}
		httpClient = c
		log.Debug("Loaded proxy", "proxy", cfg.Proxy)
	}

	return llm.NewFromConfig(llm.Config{
		Keys:       cfg.Keys,
		CloudURL:   cfg.CloudURL,
		CloudModel: cfg.CloudModel,
		LocalURL:   cfg.LocalURL,
		LocalModel: cfg.LocalModel,
		HTTPClient: httpClient,
	}), nil
}

func newEmbedder(cfg config.Config) memory.Embedder {
	if cfg.EmbedProvider != "ollama" {
		return nil
	}
	model := cfg.EmbedModel
	if model == "" {
		model = "nomic-embed-text"
	}
	return memory.NewOllamaEmbedder(cfg.LocalURL, model)
}

// mirrorDiagnostics copies system:log and system:erro into the log.
func mirrorDiagnostics(b *bus.Bus) {
	b.Subscribe(bus.Wildcard, func(ev bus.Event) {
		switch ev.Name {
		case bus.Log:
			log.Info(ev.Text("message"), "source", "bus")
		case bus.Erro:
			log.Error(ev.Text("message"), "source", "bus")
		}
	})
}

func (d *daemon) startMic(ctx context.Context, cfg config.Config, gate *listen.Gate, life *lifecycle.Manager) error {
	if cfg.WhisperModel == "" {
		log.Warn("No whisper model configured, transcription disabled")
		return nil
	}

	whisper, err := stt.NewTranscriber(stt.Config{
		ModelPath:     cfg.WhisperModel,
		InitialPrompt: strings.Join(append([]string{"Jarvis"}, cfg.WakeWords...), ", "),
	})
	if err != nil {
		return fmt.Errorf("whisper: %w", err)
	}
	life.Register("whisper", func(context.Context) error { return whisper.Close() })
	d.stt = whisper
	log.Debug("Loaded whisper", "model", cfg.WhisperModel)

	rec := audio.NewRecorder(audio.Options{})
	if err := rec.Init(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	life.Register("audio", func(context.Context) error { return rec.Close() })
	d.listener = listen.New(rec, whisper, gate, d.bus)

	// Without the loop the microphone is only opened by trigger.
	if !cfg.NoMic {
		d.continuous = true
		micCtx, stopMic := context.WithCancel(ctx)
		go d.listener.Run(micCtx)
		life.Register("mic", func(context.Context) error { stopMic(); return nil })
	}
	log.Debug("Loaded recorder")
	return nil
}
