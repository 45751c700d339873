package main

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"jarvis/internal/attention"
	"jarvis/internal/bus"
	"jarvis/internal/ipc"
	"jarvis/internal/listen"
	"jarvis/internal/memory"
	"jarvis/internal/reflex"
	"jarvis/pkg/audioconv"
	"jarvis/pkg/stt"
)

type daemon struct {
	bus       *bus.Bus
	reflex    *reflex.Layer
	memory    *memory.Store
	attention *attention.Machine

	stt        *stt.Transcriber
	listener   *listen.Listener
	continuous bool
}

const triggerTimeout = 30 * time.Second

func ok(format string, args ...any) ipc.Response {
	return ipc.Response{OK: true, Output: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) ipc.Response {
	return ipc.Response{Output: fmt.Sprintf(format, args...)}
}

// control answers jarvis-ctl.
func (d *daemon) control(ctx context.Context, req ipc.Request) ipc.Response {
	log.Debug("Control request", "cmd", req.Cmd, "args", len(req.Args))
	text := strings.TrimSpace(strings.Join(req.Args, " "))

	switch req.Cmd {
	case "trigger":
		return d.trigger()

	case "say":
		if text == "" {
			return fail("nothing to say")
		}
		d.bus.Speak(text)
		return ok("queued")

	case "hear":
		if text == "" {
			return fail("nothing to hear")
		}
		d.bus.Publish(bus.FalaReconhecida, map[string]any{"texto": text})
		return ok("published")

	case "transcribe":
		if len(req.Args) != 1 {
			return fail("usage: transcribe <file>")
		}
		if d.stt == nil {
			return fail("no whisper model configured")
		}
		pcm, err := audioconv.DecodeFile(req.Args[0], audioconv.Options{})
		if err != nil {
			return fail("decode: %v", err)
		}
		res, err := d.stt.TranscribePCM(ctx, pcm)
		if err != nil {
			return fail("transcribe: %v", err)
		}
		return ok("%s", listen.Clean(res.Text))

	case "learn":
		if len(req.Args) != 2 {
			return fail("usage: learn <wrong> <right>")
		}
		if err := d.reflex.AddCorrection(req.Args[0], req.Args[1]); err != nil {
			return fail("%v", err)
		}
		return ok("%q -> %q", req.Args[0], req.Args[1])

	case "ignore":
		if text == "" {
			return fail("usage: ignore <phrase>")
		}
		if err := d.reflex.AddIgnore(text); err != nil {
			return fail("%v", err)
		}
		return ok("ignoring %q", text)

	case "remember":
		if text == "" {
			return fail("usage: remember <fact>")
		}
		id, err := d.memory.RememberFact(ctx, text)
		if err != nil {
			return fail("%v", err)
		}
		return ok("%s", id)

	case "recall":
		if text == "" {
			return fail("usage: recall <query>")
		}
		return ok("%s", d.memory.Recall(ctx, text, memory.DefaultLimit))

	case "status":
		return ok("attention=%s facts=%d tracks=%d episodes=%d mic=%t",
			d.attention.State(),
			d.memory.Count(ctx, memory.TipoFato),
			d.memory.Count(ctx, memory.TipoTrack),
			d.memory.Count(ctx, memory.TipoEpisodio),
			d.continuous,
		)

	case "shutdown":
		d.bus.Publish(bus.Shutdown, map[string]any{})
		return ok("shutting down")
	}

	log.Warn("Unknown command", "cmd", req.Cmd)
	return fail("unknown command %q", req.Cmd)
}

// trigger opens the attention window. When the microphone loop is off it
// also captures one utterance.
func (d *daemon) trigger() ipc.Response {
	d.attention.Activate()
	d.bus.Publish(bus.Atencao, map[string]any{"ativo": true})

	if d.continuous || d.listener == nil {
		return ok("listening")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		log.Info("Starting listening")
		text, err := d.listener.Once(ctx)
		if err != nil {
			log.Error("Failed to capture", "err", err)
			return
		}
		if text == "" {
			log.Info("Nothing heard")
		}
	}()
	return ok("listening")
}
