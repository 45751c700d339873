package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/attention"
	"jarvis/internal/bus"
	"jarvis/internal/cognition"
	"jarvis/internal/dag"
	"jarvis/internal/launcher"
	"jarvis/internal/llm"
	"jarvis/internal/memory"
	"jarvis/internal/reflex"
)

type toolCall struct {
	name string
	args map[string]any
}

type fakeTools struct {
	mu      sync.Mutex
	calls   []toolCall
	replies map[string]string
	hook    func(name string)
}

func (f *fakeTools) Execute(_ context.Context, name string, args map[string]any) string {
	if f.hook != nil {
		f.hook(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolCall{name: name, args: args})
	if r, ok := f.replies[name]; ok {
		return r
	}
	return "ok"
}

func (f *fakeTools) Descriptions() string { return "- Tool: 'spotify' | Use: música" }

func (f *fakeTools) called() []toolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolCall(nil), f.calls...)
}

type fakeRunner struct {
	mu      sync.Mutex
	started []string
}

func (f *fakeRunner) Run(context.Context, string, ...string) ([]byte, error) { return nil, nil }

func (f *fakeRunner) Start(name string, _ ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return nil
}

// fakeLLM answers through fn; follow-up questions get the canned reply so
// they are never appended.
type fakeLLM struct {
	mu    sync.Mutex
	fn    func(p llm.Prompt) string
	users []string
}

func (f *fakeLLM) Generate(_ context.Context, p llm.Prompt) llm.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(p.User, "\nJARVIS: ") {
		return llm.Reply{Text: llm.Canned, Source: llm.SourceCanned}
	}
	f.users = append(f.users, p.User)
	if f.fn == nil {
		return llm.Reply{Text: llm.Canned, Source: llm.SourceCanned}
	}
	return llm.Reply{Text: f.fn(p), Source: llm.SourceCloud}
}

type env struct {
	o      *Orchestrator
	bus    *bus.Bus
	reflex *reflex.Layer
	att    *attention.Machine
	mem    *memory.Store
	tools  *fakeTools
	runner *fakeRunner
	gen    *fakeLLM

	mu     sync.Mutex
	spoken []string
	events []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	e := &env{
		bus:    bus.New(),
		tools:  &fakeTools{replies: map[string]string{}},
		runner: &fakeRunner{},
		gen:    &fakeLLM{},
	}
	e.bus.Subscribe(bus.Wildcard, func(ev bus.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, ev.Name)
		if ev.Name == bus.Falar {
			e.spoken = append(e.spoken, ev.Text("texto"))
		}
	})

	var err error
	e.reflex, err = reflex.New(dir, nil)
	require.NoError(t, err)

	e.mem, err = memory.Open(filepath.Join(dir, "memory.db"), memory.NewHashEmbedder(0))
	require.NoError(t, err)
	t.Cleanup(func() { e.mem.Close() })

	e.att = attention.New(0, nil, e.bus)

	e.o = New(Deps{
		Bus:       e.bus,
		Reflex:    e.reflex,
		Attention: e.att,
		Apps:      launcher.New(nil, e.runner),
		Tools:     e.tools,
		Cognition: cognition.New(e.gen, e.mem, e.tools),
		Executor:  dag.New(e.tools, e.mem),
		Memory:    e.mem,
	})
	e.o.pick = func(int) int { return 0 }
	e.o.Attach(context.Background())
	return e
}

func (e *env) hear(text string) {
	e.bus.Publish(bus.FalaReconhecida, map[string]any{"texto": text})
}

func (e *env) said() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

func (e *env) saw(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == name {
			n++
		}
	}
	return n
}

func TestNoiseIsSwallowed(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reflex.AddIgnore("amara.org"))
	e.att.Activate()

	e.hear("legendas pela comunidade amara.org")

	assert.Empty(t, e.said())
	assert.Empty(t, e.tools.called())
	assert.Empty(t, e.gen.users)
}

func TestWakeAndMusic(t *testing.T) {
	e := newEnv(t)
	e.tools.replies["spotify"] = "Tocando coldplay no Spotify."

	e.hear("jarvis tocar coldplay")

	assert.Equal(t, []string{"Um momento, senhor.", "Tocando coldplay no Spotify."}, e.said())
	calls := e.tools.called()
	require.Len(t, calls, 1)
	assert.Equal(t, "spotify", calls[0].name)
	assert.Equal(t, map[string]any{"comando": "tocar coldplay"}, calls[0].args)
	assert.Equal(t, 1, e.saw(bus.Atencao))
}

func TestParallelPlan(t *testing.T) {
	e := newEnv(t)
	e.tools.replies["sistema"] = "Abrindo Bloco de Notas."
	e.tools.replies["spotify"] = "Tocando coldplay no Spotify."

	var wg sync.WaitGroup
	wg.Add(2)
	e.tools.hook = func(string) {
		wg.Done()
		wg.Wait()
	}

	e.gen.fn = func(llm.Prompt) string {
		return `[{"task_id":"t1","target_tool":"sistema","initial_args":{"comando":"abrir bloco de notas"},"dependencies":[]},` +
			`{"task_id":"t2","target_tool":"spotify","initial_args":{"comando":"tocar coldplay"},"dependencies":[]}]`
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.hear("jarvis, abra o bloco de notas e toque coldplay")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run concurrently")
	}

	assert.Equal(t, []string{"Abrindo Bloco de Notas.", "Tocando coldplay no Spotify."}, e.said())
	assert.Equal(t, 1, e.saw(bus.Pensando))
	require.Len(t, e.gen.users, 1)
	assert.Contains(t, e.gen.users[0], "USUÁRIO: abra o bloco de notas e toque coldplay")
}

func TestSequentialPlan(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()
	e.tools.replies["clima"] = "Londres: chuva fraca, +12°C"

	e.gen.fn = func(llm.Prompt) string {
		return `[{"task_id":"t1","target_tool":"clima","initial_args":{"comando":"Londres"},"dependencies":[]},` +
			`{"task_id":"t2","target_tool":"memoria_gravar","initial_args":{},"dependencies":["t1"]}]`
	}

	e.hear("descubra o clima em Londres e grave isso na memória")

	assert.Equal(t, []string{"Londres: chuva fraca, +12°C", "Gravado na memória."}, e.said())
	assert.Equal(t, 1, e.mem.Count(context.Background(), memory.TipoFato))
	assert.Contains(t, e.mem.Recall(context.Background(), "clima em Londres", 1), "Londres: chuva fraca")
}

func TestPendingConfirmation(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()

	e.hear("abrir visual studio")

	assert.Equal(t, []string{"Não achei 'visual studio', mas tenho 'Visual Studio Code'. É esse que você quer?"}, e.said())
	p, ok := e.att.Pending()
	require.True(t, ok)
	assert.Equal(t, "Visual Studio Code", p.TargetName)
	assert.Empty(t, e.runner.started)

	e.att.Deactivate()
	e.hear("sim")

	assert.Equal(t, []string{"code"}, e.runner.started)
	_, ok = e.att.Pending()
	assert.False(t, ok)
	assert.Equal(t, "Abrindo Visual Studio Code.", e.said()[1])
}

func TestPendingRefused(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()

	e.hear("abrir visual studio")
	e.hear("não")

	assert.Empty(t, e.runner.started)
	assert.Equal(t, Cancelled, e.said()[1])
	assert.Equal(t, attention.Attentive, e.att.State())
}

func TestPendingDroppedByOtherSpeech(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()
	e.tools.replies["spotify"] = "Tocando anitta no Spotify."

	e.hear("abrir visual studio")
	e.hear("tocar anitta")

	_, ok := e.att.Pending()
	assert.False(t, ok)
	assert.Empty(t, e.runner.started)
	assert.Equal(t, []string{PreAck, "Tocando anitta no Spotify."}, e.said()[1:])
}

func TestPendingDoesNotSwallowShutdown(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()

	e.hear("abrir visual studio")
	e.hear("jarvis pode desligar")

	assert.Empty(t, e.runner.started)
	assert.Equal(t, Farewell, e.said()[1])
	assert.Equal(t, 1, e.saw(bus.Shutdown))
}

func TestFactTeachingAndRecall(t *testing.T) {
	e := newEnv(t)
	e.gen.fn = func(p llm.Prompt) string {
		if strings.Contains(p.User, "eu gosto de azul") {
			return "(feliz) O senhor gosta de azul."
		}
		return "(neutro) Não sei, senhor."
	}

	e.hear("jarvis memorize que eu gosto de azul")
	require.Equal(t, []string{"Memorizado: eu gosto de azul"}, e.said())
	assert.Empty(t, e.gen.users)

	e.hear("jarvis o que eu gosto?")

	require.Len(t, e.gen.users, 1)
	assert.Contains(t, e.gen.users[0], "eu gosto de azul")
	assert.Contains(t, e.said()[1], "azul")
}

func TestCyclicPlanApologizes(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()
	e.gen.fn = func(llm.Prompt) string {
		return `[{"task_id":"t1","target_tool":"clima","dependencies":["t2"]},{"task_id":"t2","target_tool":"spotify","dependencies":["t1"]}]`
	}

	e.hear("faça as duas coisas")

	assert.Equal(t, []string{PlanApology}, e.said())
	assert.Empty(t, e.tools.called())
}

func TestSilentWhenNotAddressed(t *testing.T) {
	e := newEnv(t)

	e.hear("que horas são")

	assert.Empty(t, e.said())
	assert.Empty(t, e.gen.users)
}

func TestBareWakeWordGetsAck(t *testing.T) {
	e := newEnv(t)

	e.hear("jarvis")

	assert.Equal(t, []string{acks[0]}, e.said())
	assert.Equal(t, attention.Attentive, e.att.State())
}

func TestQuickLearning(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()

	e.hear("aprenda que cold play significa coldplay")
	assert.Equal(t, []string{"Entendido. 'cold play' agora significa 'coldplay'."}, e.said())

	res := e.reflex.Analyze("tocar cold play agora")
	assert.Equal(t, "tocar coldplay agora", res.Text)
	assert.Equal(t, reflex.OriginManual, res.Origin)
}

func TestShutdownAndVolume(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()
	e.tools.replies["sistema"] = "O volume está em 40%."

	e.hear("volume")
	e.hear("desligar")

	assert.Equal(t, []string{"O volume está em 40%.", Farewell}, e.said())
	assert.Equal(t, 1, e.saw(bus.Shutdown))
	assert.Equal(t, map[string]any{"comando": "volume"}, e.tools.called()[0].args)
}

func TestExactLaunch(t *testing.T) {
	e := newEnv(t)

	e.hear("jarvis abra a calculadora")

	assert.Equal(t, []string{"Abrindo Calculadora."}, e.said())
	assert.Equal(t, []string{"gnome-calculator"}, e.runner.started)
}

func TestPanicBecomesApology(t *testing.T) {
	e := newEnv(t)
	e.att.Activate()
	e.gen.fn = func(llm.Prompt) string { panic("boom") }

	e.hear("conte uma piada")

	assert.Equal(t, []string{Apology}, e.said())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Jarvis toca aí", Normalize("Jarvis, toca aííí!!!"))
	assert.Equal(t, "o que eu gosto", Normalize("o que eu gosto?"))
	assert.Equal(t, "bom dia", Normalize("booom dia"))
}
