// Package orchestrator runs the per-utterance pipeline: reflex, attention,
// direct commands and finally cognition plus the task graph executor.
package orchestrator

import (
	"context"
	"fmt"
	log "log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"jarvis/internal/attention"
	"jarvis/internal/bus"
	"jarvis/internal/cognition"
	"jarvis/internal/dag"
	"jarvis/internal/launcher"
	"jarvis/internal/memory"
	"jarvis/internal/reflex"
	"jarvis/pkg/textutil"
)

// Spoken phrases.
const (
	Apology      = "(preocupado) Desculpe, senhor, algo deu errado."
	PlanApology  = "(preocupado) Desculpe, senhor, não consegui montar um plano válido para isso."
	PreAck       = "Um momento, senhor."
	Farewell     = "Desligando, senhor. Até logo."
	Cancelled    = "Tudo bem, senhor. Cancelado."
	learnFailure = "Não consegui aprender isso, senhor."
)

var acks = []string{"Pois não, senhor?", "Sim, senhor?", "Estou ouvindo.", "Às ordens."}

type Reflex interface {
	Analyze(text string) reflex.Result
	AddCorrection(wrong, right string) error
}

type Apps interface {
	Resolve(term string) (launcher.Match, bool)
	Launch(app launcher.App) error
}

type Tools interface {
	Execute(ctx context.Context, name string, args map[string]any) string
}

type Thinker interface {
	Think(ctx context.Context, text, memoryContext string) (cognition.Thought, error)
}

type Executor interface {
	Run(ctx context.Context, tasks []dag.Task) ([]dag.Result, error)
}

type Recaller interface {
	Recall(ctx context.Context, query string, limit int, tags ...string) string
}

// Deps are the collaborators of one orchestrator. Memory may be nil.
type Deps struct {
	Bus       *bus.Bus
	Reflex    Reflex
	Attention *attention.Machine
	Apps      Apps
	Tools     Tools
	Cognition Thinker
	Executor  Executor
	Memory    Recaller
}

type Orchestrator struct {
	Deps

	mu   sync.Mutex
	pick func(n int) int
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{Deps: d, pick: rand.IntN}
}

// Attach makes the orchestrator the consumer of recognized speech.
func (o *Orchestrator) Attach(ctx context.Context) {
	o.Bus.Subscribe(bus.FalaReconhecida, func(ev bus.Event) {
		o.Handle(ctx, ev.Text("texto"))
	})
}

// Handle processes one utterance end to end. Utterances are handled one at
// a time.
func (o *Orchestrator) Handle(ctx context.Context, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	lg := log.With("utterance", uuid.NewString())
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Pipeline panicked", "err", fmt.Sprint(r))
			o.say(Apology)
		}
	}()

	res := o.Reflex.Analyze(text)
	if res.Blocked {
		lg.Debug("Utterance blocked", "raw", text)
		return
	}
	clean := Normalize(res.Text)
	if clean == "" {
		return
	}
	lg.Info("Heard", "text", clean, "origin", res.Origin, "confidence", res.Confidence)

	if p, ok := o.Attention.Pending(); ok {
		if o.confirm(lg, p, clean) {
			return
		}
	}

	active, payload := o.Attention.Check(clean)
	if !active {
		lg.Debug("Not addressed to me")
		return
	}
	if payload == "" {
		o.say(acks[o.pick(len(acks))])
		return
	}

	if o.learn(lg, payload) {
		return
	}
	if o.direct(ctx, lg, payload) {
		return
	}
	o.think(ctx, lg, payload)
}

// Normalize drops punctuation and squeezes letters repeated three or more
// times, which the recognizer produces on drawn-out words.
func Normalize(text string) string {
	return strings.TrimSpace(textutil.CollapseRepeats(textutil.StripPunct(text)))
}

func (o *Orchestrator) say(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	o.Bus.Speak(text)
}

// confirm answers a pending question. It returns false when text is not a
// yes or a no; the question is dropped and text goes through the pipeline.
func (o *Orchestrator) confirm(lg *log.Logger, p attention.Pending, text string) bool {
	switch attention.Classify(text) {
	case attention.Yes:
		o.Attention.Resolve()
		lg.Info("Pending confirmed", "kind", p.Kind, "target", p.TargetName)
		if err := o.Apps.Launch(launcher.App{Name: p.TargetName, Command: p.TargetPath}); err != nil {
			lg.Warn("Launch failed", "app", p.TargetName, "err", err)
			o.say(fmt.Sprintf("Não consegui abrir %s, senhor.", p.TargetName))
			return true
		}
		o.say(fmt.Sprintf("Abrindo %s.", p.TargetName))
		return true
	case attention.No:
		o.Attention.Resolve()
		lg.Info("Pending refused", "kind", p.Kind, "target", p.TargetName)
		o.say(Cancelled)
		return true
	default:
		lg.Debug("Pending dropped", "kind", p.Kind)
		o.Attention.ClearPending()
		return false
	}
}

var learnRe = regexp.MustCompile(`(?i)^aprenda\s+que\s+(.+?)\s+significa\s+(.+)$`)

func (o *Orchestrator) learn(lg *log.Logger, payload string) bool {
	m := learnRe.FindStringSubmatch(payload)
	if m == nil {
		return false
	}
	wrong, right := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if err := o.Reflex.AddCorrection(wrong, right); err != nil {
		lg.Warn("Correction rejected", "wrong", wrong, "right", right, "err", err)
		o.say(learnFailure)
		return true
	}
	lg.Info("Correction learned", "wrong", wrong, "right", right)
	o.say(fmt.Sprintf("Entendido. '%s' agora significa '%s'.", wrong, right))
	return true
}

func (o *Orchestrator) think(ctx context.Context, lg *log.Logger, payload string) {
	o.Bus.Publish(bus.Pensando, map[string]any{})

	memCtx := ""
	if o.Memory != nil {
		memCtx = o.Memory.Recall(ctx, payload, memory.DefaultLimit)
	}

	th, err := o.Cognition.Think(ctx, payload, memCtx)
	if err != nil {
		lg.Error("Cognition failed", "err", err)
		o.say(Apology)
		return
	}
	if th.Tasks == nil {
		o.say(th.Text)
		return
	}

	lg.Info("Running plan", "tasks", len(th.Tasks))
	o.say(th.Text)

	results, err := o.Executor.Run(ctx, th.Tasks)
	if err != nil {
		lg.Warn("Plan rejected", "err", err)
		o.say(PlanApology)
		return
	}
	for _, s := range dag.Speakable(results) {
		o.say(s)
	}
}
