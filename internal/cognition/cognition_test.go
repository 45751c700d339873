package cognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/dag"
	"jarvis/internal/llm"
	"jarvis/internal/memory"
	"jarvis/internal/tools"
)

type fakeLLM struct {
	replies []llm.Reply
	prompts []llm.Prompt
}

func (f *fakeLLM) Generate(_ context.Context, p llm.Prompt) llm.Reply {
	f.prompts = append(f.prompts, p)
	if len(f.replies) == 0 {
		return llm.Reply{Text: llm.Canned, Source: llm.SourceCanned}
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r
}

func cloud(text string) llm.Reply {
	return llm.Reply{Text: text, Source: llm.SourceCloud}
}

type fakeMemory struct {
	facts []string
	err   error
}

func (f *fakeMemory) RememberFact(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.facts = append(f.facts, text)
	return "fato_1", nil
}

type fakeCatalog string

func (c fakeCatalog) Descriptions() string { return string(c) }

func newHandler(gen *fakeLLM, mem *fakeMemory, roll float64) *Handler {
	h := New(gen, mem, fakeCatalog("- Tool: 'spotify' | Use: toca música"))
	h.now = func() time.Time { return time.Date(2026, 10, 19, 14, 5, 0, 0, time.Local) }
	h.roll = func() float64 { return roll }
	return h
}

func TestRememberTrigger(t *testing.T) {
	cases := map[string]string{
		"memorize que eu gosto de azul":         "eu gosto de azul",
		"Anote: reunião às 3":                   "reunião às 3",
		"lembre-se que o carro está na garagem": "o carro está na garagem",
		"grave isso: a senha do wifi é 1234.":   "a senha do wifi é 1234",
		"memorize que":                          "",
	}
	for in, want := range cases {
		fact, ok := RememberTrigger(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, fact, in)
	}

	for _, in := range []string{"gravação do show", "lembrar de tudo", "o que eu gosto", "toque coldplay"} {
		_, ok := RememberTrigger(in)
		assert.False(t, ok, in)
	}
}

func TestThinkRemembersFact(t *testing.T) {
	gen := &fakeLLM{}
	mem := &fakeMemory{}
	h := newHandler(gen, mem, 1)

	th, err := h.Think(context.Background(), "memorize que eu gosto de azul", "")
	require.NoError(t, err)

	assert.Equal(t, "Memorizado: eu gosto de azul", th.Text)
	assert.True(t, th.Remembered)
	assert.Nil(t, th.Tasks)
	assert.Equal(t, []string{"eu gosto de azul"}, mem.facts)
	assert.Empty(t, gen.prompts)
}

func TestThinkRememberFailureIsAnError(t *testing.T) {
	h := newHandler(&fakeLLM{}, &fakeMemory{err: errors.New("disk full")}, 1)

	_, err := h.Think(context.Background(), "anote que amanhã tem dentista", "")
	assert.ErrorContains(t, err, "disk full")
}

func TestThinkRememberWithOfflineMemory(t *testing.T) {
	h := newHandler(&fakeLLM{}, &fakeMemory{err: fmt.Errorf("put: %w", memory.ErrNotConnected)}, 1)

	th, err := h.Think(context.Background(), "anote que amanhã tem dentista", "")
	require.NoError(t, err)
	assert.Equal(t, "Memorizado: amanhã tem dentista", th.Text)
	assert.False(t, th.Remembered)
}

func TestThinkUsesMemoryContext(t *testing.T) {
	gen := &fakeLLM{replies: []llm.Reply{cloud("(feliz) O senhor gosta de azul.")}}
	h := newHandler(gen, &fakeMemory{}, 1)

	th, err := h.Think(context.Background(), "o que eu gosto?", "- eu gosto de azul")
	require.NoError(t, err)

	assert.Equal(t, "(feliz) O senhor gosta de azul.", th.Text)
	assert.Nil(t, th.Tasks)

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Contains(t, p.User, "MEMÓRIA RELEVANTE:\n- eu gosto de azul")
	assert.True(t, strings.HasSuffix(p.User, "USUÁRIO: o que eu gosto?"))
	assert.Equal(t, llm.Text, p.Mode)
	assert.InDelta(t, llm.TempChat, p.Temperature, 1e-9)
}

func TestSystemPrompt(t *testing.T) {
	now := time.Date(2026, 10, 19, 14, 5, 0, 0, time.Local)
	p := SystemPrompt(now, "- Tool: 'clima' | Use: clima")

	assert.Contains(t, p, "Hoje é segunda-feira, 19 de outubro de 2026, 14:05.")
	assert.Contains(t, p, "(feliz)")
	assert.Contains(t, p, `"task_id"`)
	assert.Contains(t, p, "{t1}")
	assert.Contains(t, p, "- Tool: 'clima' | Use: clima")
	assert.True(t, strings.HasSuffix(p, tools.ZeroDirective))

	assert.Contains(t, SystemPrompt(now, ""), "(nenhuma)")
}

func TestThinkReturnsPlan(t *testing.T) {
	reply := `[{"task_id":"t1","target_tool":"sistema","initial_args":{"comando":"abrir bloco de notas"},"dependencies":[]},` +
		`{"task_id":"t2","target_tool":"spotify","initial_args":{"comando":"tocar coldplay"},"dependencies":[]}]`
	gen := &fakeLLM{replies: []llm.Reply{cloud(reply)}}
	h := newHandler(gen, &fakeMemory{}, 0)

	th, err := h.Think(context.Background(), "abra o bloco de notas e toque coldplay", "")
	require.NoError(t, err)

	assert.Empty(t, th.Text)
	assert.Equal(t, []dag.Task{
		{ID: "t1", Tool: "sistema", Args: map[string]any{"comando": "abrir bloco de notas"}},
		{ID: "t2", Tool: "spotify", Args: map[string]any{"comando": "tocar coldplay"}},
	}, th.Tasks)
	assert.Len(t, gen.prompts, 1, "no curiosity call for plans")
}

func TestCuriosity(t *testing.T) {
	t.Run("appends question", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("(neutro) Paris é a capital da França."), cloud(`{"perguntar": true, "pergunta": "Quer saber mais sobre Paris?"}`)}}
		h := newHandler(gen, &fakeMemory{}, 0.1)

		th, err := h.Think(context.Background(), "qual a capital da frança", "")
		require.NoError(t, err)
		assert.Equal(t, "(neutro) Paris é a capital da França. Quer saber mais sobre Paris?", th.Text)
		require.Len(t, gen.prompts, 2)
		assert.Contains(t, gen.prompts[1].User, "JARVIS: (neutro) Paris é a capital da França.")
		assert.Equal(t, llm.JSON, gen.prompts[1].Mode)
		assert.Equal(t, llm.TempClassify, gen.prompts[1].Temperature)
	})

	t.Run("model declines", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("(feliz) Boa noite, senhor."), cloud(`{"perguntar": false, "pergunta": ""}`)}}
		h := newHandler(gen, &fakeMemory{}, 0)

		th, _ := h.Think(context.Background(), "boa noite", "")
		assert.Equal(t, "(feliz) Boa noite, senhor.", th.Text)
	})

	t.Run("malformed json", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("(neutro) Paris."), cloud("Quer saber mais?")}}
		h := newHandler(gen, &fakeMemory{}, 0)

		th, _ := h.Think(context.Background(), "capital da frança", "")
		assert.Equal(t, "(neutro) Paris.", th.Text)
	})

	t.Run("roll too high", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("(neutro) Paris.")}}
		h := newHandler(gen, &fakeMemory{}, 0.3)

		th, _ := h.Think(context.Background(), "capital da frança", "")
		assert.Equal(t, "(neutro) Paris.", th.Text)
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("long reply", func(t *testing.T) {
		long := "(neutro) " + strings.Repeat("palavra ", 20)
		gen := &fakeLLM{replies: []llm.Reply{cloud(long)}}
		h := newHandler(gen, &fakeMemory{}, 0)

		_, _ = h.Think(context.Background(), "fale bastante", "")
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("braces suppress", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("use {chave} assim")}}
		h := newHandler(gen, &fakeMemory{}, 0)

		th, _ := h.Think(context.Background(), "como formatar", "")
		assert.Equal(t, "use {chave} assim", th.Text)
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("canned reply", func(t *testing.T) {
		gen := &fakeLLM{}
		h := newHandler(gen, &fakeMemory{}, 0)

		th, _ := h.Think(context.Background(), "oi", "")
		assert.Equal(t, llm.Canned, th.Text)
		assert.Len(t, gen.prompts, 1)
	})

	t.Run("canned question dropped", func(t *testing.T) {
		gen := &fakeLLM{replies: []llm.Reply{cloud("(feliz) Bom dia.")}}
		h := newHandler(gen, &fakeMemory{}, 0)

		th, _ := h.Think(context.Background(), "bom dia", "")
		assert.Equal(t, "(feliz) Bom dia.", th.Text)
		assert.Len(t, gen.prompts, 2)
	})
}
