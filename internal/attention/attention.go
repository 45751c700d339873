// Package attention decides whether the assistant is being spoken to: wake
// word detection, the follow-up window and the pending yes/no question.
package attention

import (
	"strings"
	"sync"
	"time"

	"jarvis/internal/bus"
	"jarvis/pkg/textutil"
)

const (
	DefaultWindow = 35 * time.Second

	// wakeCutoff is the similarity a word needs to count as the wake word.
	wakeCutoff = 0.8
	// maxPrefix bounds how much may precede a mid-sentence wake word.
	maxPrefix = 15
)

var DefaultAliases = []string{"jarvis", "jarbas", "javis"}

type State int

const (
	Idle State = iota
	Attentive
	PendingConfirmation
)

func (s State) String() string {
	switch s {
	case Attentive:
		return "attentive"
	case PendingConfirmation:
		return "pending_confirmation"
	default:
		return "idle"
	}
}

// KindAppSuggestion is the only pending question today: "did you mean
// this app?".
const KindAppSuggestion = "app_suggestion"

// Pending is a yes/no question waiting for its answer.
type Pending struct {
	Kind         string
	TargetName   string
	TargetPath   string
	OriginalTerm string
}

// Answer classifies a reply to a pending question.
type Answer int

const (
	NoAnswer Answer = iota
	Yes
	No
)

var (
	yesWords = map[string]bool{
		"sim": true, "claro": true, "positivo": true, "confirmo": true, "confirma": true,
		"exato": true, "certo": true, "ok": true, "beleza": true, "yes": true,
	}
	// weakYes words only confirm when they open the reply and whatever
	// follows them is in weakTail ("pode", "isso mesmo", "pode abrir").
	weakYes = map[string]bool{
		"pode": true, "isso": true, "esse": true, "quero": true,
	}
	weakTail = map[string]bool{
		"sim": true, "mesmo": true, "ser": true, "abrir": true, "abre": true,
		"senhor": true, "esse": true, "isso": true, "por": true, "favor": true,
	}
	noWords = map[string]bool{
		"nao": true, "negativo": true, "cancela": true, "cancelar": true,
		"esquece": true, "deixa": true, "errado": true,
	}
)

// Publisher is the part of the bus the machine needs.
type Publisher interface {
	Publish(name string, data map[string]any)
}

// Machine is owned by the orchestrator.
type Machine struct {
	window  time.Duration
	aliases []string
	pub     Publisher
	now     func() time.Time

	mu             sync.Mutex
	lastActivation time.Time
	pending        *Pending
}

// New builds a machine. Empty aliases fall back to DefaultAliases and a zero
// window to DefaultWindow.
func New(window time.Duration, aliases []string, pub Publisher) *Machine {
	if window <= 0 {
		window = DefaultWindow
	}
	var folded []string
	for _, a := range aliases {
		if a = textutil.Fold(strings.TrimSpace(a)); a != "" {
			folded = append(folded, a)
		}
	}
	if len(folded) == 0 {
		folded = DefaultAliases
	}
	return &Machine{window: window, aliases: folded, pub: pub, now: time.Now}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.pending != nil:
		return PendingConfirmation
	case m.attentiveLocked():
		return Attentive
	default:
		return Idle
	}
}

func (m *Machine) attentiveLocked() bool {
	return !m.lastActivation.IsZero() && m.now().Sub(m.lastActivation) <= m.window
}

// Check reports whether text is addressed to the assistant and returns it
// with the wake word removed. Any utterance inside the window refreshes it.
func (m *Machine) Check(text string) (bool, string) {
	payload, woke := m.stripWake(text)

	m.mu.Lock()
	wasActive := m.attentiveLocked()
	if !woke && !wasActive {
		m.mu.Unlock()
		return false, ""
	}
	m.lastActivation = m.now()
	m.mu.Unlock()

	if woke && !wasActive && m.pub != nil {
		m.pub.Publish(bus.Atencao, map[string]any{"ativo": true})
	}
	if !woke {
		payload = strings.TrimSpace(text)
	}
	return true, payload
}

// stripWake finds the wake word either as the first word or after a short
// prefix ("ei jarvis, ...") and returns what follows it.
func (m *Machine) stripWake(text string) (string, bool) {
	words := strings.Fields(text)
	prefix := 0
	for i, w := range words {
		if i > 0 {
			prefix++ // the space before w
		}
		if prefix >= maxPrefix {
			break
		}
		if m.isWake(w) {
			return cleanPayload(strings.Join(words[i+1:], " ")), true
		}
		prefix += len([]rune(w))
	}
	return "", false
}

func (m *Machine) isWake(word string) bool {
	w := textutil.Fold(textutil.StripPunct(word))
	if w == "" {
		return false
	}
	for _, a := range m.aliases {
		if textutil.Similarity(w, a) >= wakeCutoff {
			return true
		}
	}
	return false
}

func cleanPayload(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " ,.;:!?-"))
}

// Activate opens the window without a wake word.
func (m *Machine) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivation = m.now()
}

// Deactivate closes the window.
func (m *Machine) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivation = time.Time{}
}

// SetPending stores a question. It stays until answered, whatever the
// window does.
func (m *Machine) SetPending(p Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &p
}

// Pending returns the open question, if any.
func (m *Machine) Pending() (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Pending{}, false
	}
	return *m.pending, true
}

// Resolve takes the pending question out and refreshes the window, since the
// user is clearly talking to us.
func (m *Machine) Resolve() (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Pending{}, false
	}
	p := *m.pending
	m.pending = nil
	m.lastActivation = m.now()
	return p, true
}

// ClearPending drops the question without answering it.
func (m *Machine) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// Classify reads a reply to a pending question. The first word decides;
// short replies are also scanned whole ("acho que sim").
func Classify(text string) Answer {
	words := strings.Fields(textutil.Fold(textutil.StripPunct(text)))
	if len(words) == 0 {
		return NoAnswer
	}
	if a := classifyWord(words[0]); a != NoAnswer || len(words) > 3 {
		return a
	}
	if weakYes[words[0]] && allIn(words[1:], weakTail) {
		return Yes
	}
	for _, w := range words[1:] {
		if a := classifyWord(w); a != NoAnswer {
			return a
		}
	}
	return NoAnswer
}

func allIn(words []string, set map[string]bool) bool {
	for _, w := range words {
		if !set[w] {
			return false
		}
	}
	return true
}

func classifyWord(w string) Answer {
	switch {
	case noWords[w]:
		return No
	case yesWords[w]:
		return Yes
	default:
		return NoAnswer
	}
}
