package bus

// Event names. The set is closed: publishers and subscribers agree on these
// strings and on the payload shape documented next to each one.
const (
	// FalaReconhecida carries recognized speech: {"texto": string}.
	FalaReconhecida = "input:fala_reconhecida"
	// Pensando signals the cognition layer started thinking: {}.
	Pensando = "cortex:pensando"
	// Atencao signals a fresh wake-word activation: {"ativo": bool}.
	Atencao = "cortex:atencao"
	// Falar asks the speech collaborator to say something: {"texto": string}.
	Falar = "output:falar"
	// Ferramenta reports a tool dispatch: {"nome": string, "args": map}.
	Ferramenta = "output:ferramenta"
	// StatusFala brackets every spoken segment: {"status": bool}.
	StatusFala = "system:status_fala"
	// Shutdown asks every subsystem to stop: {}.
	Shutdown = "system:shutdown"
	// Log and Erro are free-form diagnostics: {"message": string, ...}.
	Log  = "system:log"
	Erro = "system:erro"

	// Wildcard subscribes to every event.
	Wildcard = "*"
)

// Event is one message travelling on the bus.
type Event struct {
	Name string
	Data map[string]any
}

// Text returns the string stored under key, or "".
func (e Event) Text(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Bool returns the bool stored under key, or false.
func (e Event) Bool(key string) bool {
	b, _ := e.Data[key].(bool)
	return b
}
