package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/bus"
)

type recorder struct {
	name     string
	triggers []string
	reply    string
	err      error

	commands []string
	args     []map[string]any
}

func (r *recorder) Name() string       { return r.name }
func (r *recorder) Triggers() []string { return r.triggers }

func (r *recorder) Execute(_ context.Context, command string, args map[string]any) (string, error) {
	r.commands = append(r.commands, command)
	r.args = append(r.args, args)
	return r.reply, r.err
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)
	return m
}

func TestSpecialistDispatch(t *testing.T) {
	b := bus.New()
	var published []bus.Event
	b.Subscribe(bus.Ferramenta, func(e bus.Event) { published = append(published, e) })

	spotify := &recorder{name: "spotify", reply: "Tocando Coldplay."}
	r := NewRegistry(b)
	require.NoError(t, r.RegisterSpecialist(spotify))

	out := r.Execute(context.Background(), "spotify", map[string]any{"comando": "tocar coldplay"})
	assert.Equal(t, "Tocando Coldplay.", out)
	assert.Equal(t, []string{"tocar coldplay"}, spotify.commands)

	require.Len(t, published, 1)
	assert.Equal(t, "spotify", published[0].Text("nome"))
}

func TestSpecialistByTrigger(t *testing.T) {
	clima := &recorder{name: "clima", triggers: []string{"weather", "tempo"}, reply: "Londres: 12°C"}
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterSpecialist(clima))

	assert.Equal(t, "Londres: 12°C", r.Execute(context.Background(), "Weather", map[string]any{"cidade": "Londres"}))
	assert.Equal(t, []string{"Londres"}, clima.commands)
	assert.True(t, r.Has("tempo"))
}

func TestSpecialistError(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterSpecialist(&recorder{name: "clima", err: errors.New("sem rede")}))

	assert.Equal(t, "Erro em clima: sem rede", r.Execute(context.Background(), "clima", nil))
}

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]any{
		"zeta":    "z",
		"texto":   "meio",
		"alfa":    "a",
		"comando": "abrir",
		"numero":  3,
		"vazio":   " ",
	})
	assert.Equal(t, "abrir meio a z", got)
}

func TestInterception(t *testing.T) {
	sistema := &recorder{name: "sistema", reply: "Abrindo Calculadora."}
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterSpecialist(sistema))

	out := r.Execute(context.Background(), "Calculadora", nil)
	assert.Equal(t, "Abrindo Calculadora.", out)
	assert.Equal(t, []string{"abrir calculadora"}, sistema.commands)

	r.Execute(context.Background(), "browser", map[string]any{"comando": "youtube.com"})
	assert.Equal(t, "abrir navegador", sistema.commands[1])

	r.Execute(context.Background(), "calculadora", map[string]any{"comando": "abrir calculadora", "url": "x"})
	assert.Equal(t, "abrir calculadora", sistema.commands[2])
	assert.Equal(t, map[string]any{"comando": "abrir calculadora"}, sistema.args[2])

	r.Execute(context.Background(), "vscode", map[string]any{"texto": "fechar vscode"})
	assert.Equal(t, "fechar vscode", sistema.commands[3])
}

func TestFunctionTool(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Tool{
		Name:        "somar",
		Description: "Soma dois números.",
		Schema:      `{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`,
		Func: func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	}))

	ok := decode(t, r.Execute(context.Background(), "somar", map[string]any{"a": 2.0, "b": 3.0}))
	assert.Equal(t, "success", ok["status"])
	assert.Equal(t, 5.0, ok["data"])

	bad := decode(t, r.Execute(context.Background(), "somar", map[string]any{"a": "dois"}))
	assert.Equal(t, "execution_failed", bad["status"])
	assert.NotEmpty(t, bad["error"])
}

func TestFunctionToolErrorAndPanic(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Tool{Name: "falha", Func: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disco cheio")
	}}))
	require.NoError(t, r.Register(Tool{Name: "explode", Func: func(context.Context, map[string]any) (any, error) {
		panic("boom")
	}}))

	assert.Equal(t, map[string]any{"status": "execution_failed", "error": "disco cheio"},
		decode(t, r.Execute(context.Background(), "falha", nil)))
	assert.Equal(t, "execution_failed", decode(t, r.Execute(context.Background(), "explode", nil))["status"])
}

func TestSafeMode(t *testing.T) {
	r := NewRegistry(nil, WithSafeMode())
	fn := func(context.Context, map[string]any) (any, error) { return "ok", nil }
	require.NoError(t, r.Register(Tool{Name: "ler", SafeMode: true, Func: fn}))
	require.NoError(t, r.Register(Tool{Name: "apagar", Func: fn}))

	assert.Equal(t, "success", decode(t, r.Execute(context.Background(), "ler", nil))["status"])
	assert.Equal(t, "execution_failed", decode(t, r.Execute(context.Background(), "apagar", nil))["status"])
}

func TestKnowledgeToolDegradesToText(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, "O céu é azul por causa do espalhamento.",
		r.Execute(context.Background(), "explainer", map[string]any{"texto": "O céu é azul por causa do espalhamento."}))
}

func TestUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	out := decode(t, r.Execute(context.Background(), "teletransporte", nil))
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], "teletransporte")
}

func TestRegisterRejects(t *testing.T) {
	r := NewRegistry(nil)
	fn := func(context.Context, map[string]any) (any, error) { return nil, nil }

	assert.ErrorIs(t, r.Register(Tool{Name: "", Func: fn}), ErrInvalidTool)
	assert.ErrorIs(t, r.Register(Tool{Name: "x"}), ErrInvalidTool)
	assert.ErrorIs(t, r.Register(Tool{Name: "x", Func: fn, Schema: "{"}), ErrInvalidTool)

	require.NoError(t, r.RegisterSpecialist(&recorder{name: "sistema"}))
	assert.ErrorIs(t, r.Register(Tool{Name: "Sistema", Func: fn}), ErrDuplicate)
}

func TestDescriptions(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterSpecialist(&recorder{name: "spotify", triggers: []string{"música"}}))
	require.NoError(t, r.RegisterSpecialist(&recorder{name: "noticias", triggers: []string{"notícias", "jornal"}}))
	require.NoError(t, r.Register(Tool{Name: "somar", Description: "Soma.", Func: func(context.Context, map[string]any) (any, error) { return nil, nil }}))

	got := r.Descriptions()
	assert.Contains(t, got, "- Tool: 'spotify' | Use: "+descriptionOverrides["spotify"])
	assert.Contains(t, got, "- Tool: 'noticias' | Use: Especialista em: notícias, jornal")
	assert.Contains(t, got, "- Tool: 'somar' | Use: Soma.")
	assert.Contains(t, got, "- Tool: 'memoria_gravar' | Use: ")
}

func TestSpeech(t *testing.T) {
	assert.Equal(t, "Tocando.", Speech("Tocando."))
	assert.Equal(t, "5", Speech(`{"status":"success","data":5}`))
	assert.Equal(t, "oi", Speech(`{"status":"success","data":"oi"}`))
	assert.Equal(t, "Feito.", Speech(`{"status":"success"}`))
	assert.Equal(t, "Falhou: disco cheio", Speech(`{"status":"execution_failed","error":"disco cheio"}`))
	assert.Equal(t, "Ferramenta 'x' não existe.", Speech(`{"status":"error","message":"Ferramenta 'x' não existe."}`))
	assert.Equal(t, `{"task_id":"t1"}`, Speech(`{"task_id":"t1"}`))
}

func TestDiscover(t *testing.T) {
	Provide("test_ok", func(d Deps) (Specialist, error) { return &recorder{name: "ok"}, nil })
	Provide("test_fail", func(Deps) (Specialist, error) { return nil, errors.New("missing binary") })
	Provide("test_panic", func(Deps) (Specialist, error) { panic("bad init") })

	r := NewRegistry(nil)
	loaded := r.Discover(Deps{})

	assert.Equal(t, []string{"ok"}, loaded)
	assert.True(t, r.Has("ok"))

	assert.Panics(t, func() { Provide("test_ok", func(Deps) (Specialist, error) { return nil, nil }) })
}
