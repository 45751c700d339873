package attention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/bus"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(pub Publisher) (*Machine, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := New(30*time.Second, nil, pub)
	m.now = c.now
	return m, c
}

func TestWakeWordPayload(t *testing.T) {
	for _, alias := range DefaultAliases {
		m, _ := newMachine(nil)
		active, payload := m.Check(alias + ", que horas são")
		assert.True(t, active, alias)
		assert.Equal(t, "que horas são", payload, alias)
	}
}

func TestIdleWithoutWakeWord(t *testing.T) {
	m, _ := newMachine(nil)

	active, payload := m.Check("que horas são")
	assert.False(t, active)
	assert.Empty(t, payload)
	assert.Equal(t, Idle, m.State())
}

func TestFuzzyAndMidSentenceWake(t *testing.T) {
	m, _ := newMachine(nil)
	active, payload := m.Check("Jarviss toca coldplay")
	assert.True(t, active)
	assert.Equal(t, "toca coldplay", payload)

	m, _ = newMachine(nil)
	active, payload = m.Check("ei jarvis abre o terminal")
	assert.True(t, active)
	assert.Equal(t, "abre o terminal", payload)

	m, _ = newMachine(nil)
	active, _ = m.Check("eu estava falando com o jarvis ontem")
	assert.False(t, active)
}

func TestWindowFollowUpAndExpiry(t *testing.T) {
	m, c := newMachine(nil)

	active, payload := m.Check("jarvis")
	require.True(t, active)
	assert.Empty(t, payload)
	assert.Equal(t, Attentive, m.State())

	c.advance(20 * time.Second)
	active, payload = m.Check("e amanhã?")
	assert.True(t, active)
	assert.Equal(t, "e amanhã?", payload)

	// The follow-up refreshed the window.
	c.advance(25 * time.Second)
	assert.Equal(t, Attentive, m.State())

	c.advance(31 * time.Second)
	assert.Equal(t, Idle, m.State())
	active, _ = m.Check("e depois?")
	assert.False(t, active)
}

func TestFreshActivationPublishes(t *testing.T) {
	b := bus.New()
	var events int
	b.Subscribe(bus.Atencao, func(e bus.Event) {
		if e.Bool("ativo") {
			events++
		}
	})
	m, _ := newMachine(b)

	m.Check("jarvis")
	m.Check("jarvis de novo")
	m.Check("sem nome")
	assert.Equal(t, 1, events)
}

func TestPendingIgnoresWindow(t *testing.T) {
	m, c := newMachine(nil)
	m.Check("jarvis")
	m.SetPending(Pending{Kind: KindAppSuggestion, TargetName: "Visual Studio Code", TargetPath: "code", OriginalTerm: "visual studio"})

	c.advance(10 * time.Minute)
	assert.Equal(t, PendingConfirmation, m.State())

	p, ok := m.Resolve()
	require.True(t, ok)
	assert.Equal(t, "Visual Studio Code", p.TargetName)
	assert.Equal(t, Attentive, m.State())

	_, ok = m.Pending()
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Answer
	}{
		{"sim", Yes},
		{"Sim, por favor", Yes},
		{"claro", Yes},
		{"acho que sim", Yes},
		{"não", No},
		{"não, pode deixar", No},
		{"negativo", No},
		{"toca alguma coisa no spotify", NoAnswer},
		{"abre o navegador e pode fechar o resto", NoAnswer},
		{"pode", Yes},
		{"isso mesmo", Yes},
		{"pode abrir", Yes},
		{"esse", Yes},
		{"jarvis pode desligar", NoAnswer},
		{"pode desligar", NoAnswer},
		{"quero outra coisa", NoAnswer},
		{"", NoAnswer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.in), tt.in)
	}
}

func TestCustomAliases(t *testing.T) {
	m := New(0, []string{" Sexta-Feira "}, nil)
	assert.Equal(t, DefaultWindow, m.window)

	active, payload := m.Check("sexta-feira, status")
	assert.True(t, active)
	assert.Equal(t, "status", payload)
}
