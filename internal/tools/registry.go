// Package tools is the registry the task graph and the direct commands
// dispatch through: specialists and plain function tools behind one
// Execute call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"jarvis/internal/bus"
)

// Specialist is a domain agent. It receives one flattened command string
// plus the raw arguments.
type Specialist interface {
	Name() string
	Triggers() []string
	Execute(ctx context.Context, command string, args map[string]any) (string, error)
}

// Func is the body of a function tool.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a plain function tool. Schema, when set, is a JSON Schema the
// arguments must satisfy. SafeMode marks tools allowed while the registry
// runs in safe mode.
type Tool struct {
	Name        string
	Description string
	Schema      string
	SafeMode    bool
	Func        Func
}

// Publisher is the part of the bus the registry needs.
type Publisher interface {
	Publish(name string, data map[string]any)
}

type tool struct {
	Tool
	schema *jsonschema.Schema
}

// Registry is filled at startup and read-only afterwards.
type Registry struct {
	pub      Publisher
	safeOnly bool

	mu          sync.RWMutex
	tools       map[string]*tool
	specialists map[string]Specialist
	triggers    map[string]string
}

type Option func(*Registry)

// WithSafeMode refuses every function tool not marked SafeMode.
func WithSafeMode() Option {
	return func(r *Registry) { r.safeOnly = true }
}

func NewRegistry(pub Publisher, opts ...Option) *Registry {
	r := &Registry{
		pub:         pub,
		tools:       map[string]*tool{},
		specialists: map[string]Specialist{},
		triggers:    map[string]string{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a function tool.
func (r *Registry) Register(t Tool) error {
	name := strings.ToLower(strings.TrimSpace(t.Name))
	if name == "" || t.Func == nil {
		return fmt.Errorf("%w: %q", ErrInvalidTool, t.Name)
	}

	var schema *jsonschema.Schema
	if t.Schema != "" {
		s, err := jsonschema.CompileString(name+".json", t.Schema)
		if err != nil {
			return fmt.Errorf("%w: %s schema: %v", ErrInvalidTool, name, err)
		}
		schema = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	t.Name = name
	r.tools[name] = &tool{Tool: t, schema: schema}
	return nil
}

// RegisterSpecialist adds a specialist; its triggers become aliases.
func (r *Registry) RegisterSpecialist(s Specialist) error {
	name := strings.ToLower(strings.TrimSpace(s.Name()))
	if name == "" {
		return fmt.Errorf("%w: specialist without name", ErrInvalidTool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.specialists[name] = s
	for _, trig := range s.Triggers() {
		trig = strings.ToLower(strings.TrimSpace(trig))
		if _, dup := r.triggers[trig]; trig != "" && !dup {
			r.triggers[trig] = name
		}
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, t := r.tools[name]
	_, s := r.specialists[name]
	return t || s
}

// Has reports whether name resolves to something Execute can run.
func (r *Registry) Has(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.taken(name) {
		return true
	}
	_, ok := r.triggers[name]
	return ok
}

// Execute runs name with args and always returns text: a specialist's reply
// or a JSON envelope with a status field.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}

	if rewritten, rargs, ok := intercept(name, args); ok {
		log.Info("Intercepted invented tool", "tool", name, "routed", rewritten)
		name, args = rewritten, rargs
	}
	key := strings.ToLower(strings.TrimSpace(name))

	if r.pub != nil {
		r.pub.Publish(bus.Ferramenta, map[string]any{"nome": key, "args": args})
	}

	if s, ok := r.specialist(key); ok {
		return r.runSpecialist(ctx, s, args)
	}

	r.mu.RLock()
	t, ok := r.tools[key]
	r.mu.RUnlock()
	if ok {
		return r.runTool(ctx, t, args)
	}

	if knowledgeTools[key] {
		log.Debug("Knowledge tool degraded to text", "tool", key)
		return firstText(args)
	}

	log.Warn("Unknown tool", "tool", key)
	return envelope(map[string]any{
		"status":  "error",
		"message": fmt.Sprintf("Ferramenta '%s' não existe.", key),
	})
}

func (r *Registry) specialist(key string) (Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.specialists[key]; ok {
		return s, true
	}
	if owner, ok := r.triggers[key]; ok {
		return r.specialists[owner], true
	}
	return nil, false
}

func (r *Registry) runSpecialist(ctx context.Context, s Specialist, args map[string]any) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Specialist panicked", "specialist", s.Name(), "err", fmt.Sprint(rec))
			out = fmt.Sprintf("Erro em %s: %v", s.Name(), rec)
		}
	}()

	command := Flatten(args)
	log.Debug("Dispatching to specialist", "specialist", s.Name(), "command", command)

	reply, err := s.Execute(ctx, command, args)
	if err != nil {
		log.Warn("Specialist failed", "specialist", s.Name(), "err", err)
		return fmt.Sprintf("Erro em %s: %v", s.Name(), err)
	}
	return reply
}

func (r *Registry) runTool(ctx context.Context, t *tool, args map[string]any) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Tool panicked", "tool", t.Name, "err", fmt.Sprint(rec))
			out = failed(fmt.Sprint(rec))
		}
	}()

	if r.safeOnly && !t.SafeMode {
		return failed(fmt.Sprintf("ferramenta '%s' bloqueada no modo seguro", t.Name))
	}

	if t.schema != nil {
		if err := t.schema.Validate(plain(args)); err != nil {
			log.Warn("Tool arguments rejected", "tool", t.Name, "err", err)
			return failed(err.Error())
		}
	}

	data, err := t.Func(ctx, args)
	if err != nil {
		return failed(err.Error())
	}
	return envelope(map[string]any{"status": "success", "data": data})
}

// Descriptions renders the catalog injected into the system prompt.
func (r *Registry) Descriptions() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lines []string
	for _, name := range sortedKeys(r.specialists) {
		desc, ok := descriptionOverrides[name]
		if !ok {
			desc = "Especialista em: " + strings.Join(r.specialists[name].Triggers(), ", ")
		}
		lines = append(lines, catalogLine(name, desc))
	}
	for _, name := range sortedKeys(r.tools) {
		lines = append(lines, catalogLine(name, r.tools[name].Description))
	}
	lines = append(lines, catalogLine(MemoryTool, memoryToolDescription))
	return strings.Join(lines, "\n")
}

func catalogLine(name, desc string) string {
	return fmt.Sprintf("- Tool: '%s' | Use: %s", name, desc)
}

// Flatten joins comando and texto, then every other string argument in key
// order, into one command line.
func Flatten(args map[string]any) string {
	var parts []string
	add := func(v any) {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}

	add(args["comando"])
	add(args["texto"])

	keys := make([]string, 0, len(args))
	for k := range args {
		if k != "comando" && k != "texto" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(args[k])
	}
	return strings.Join(parts, " ")
}

// Speech turns a registry output into something worth saying.
func Speech(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var env struct {
		Status  string `json:"status"`
		Data    any    `json:"data"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Status == "" {
		return trimmed
	}

	switch env.Status {
	case "success":
		switch d := env.Data.(type) {
		case nil:
			return "Feito."
		case string:
			return d
		default:
			b, _ := json.Marshal(d)
			return string(b)
		}
	case "execution_failed":
		return "Falhou: " + env.Error
	default:
		return env.Message
	}
}

func failed(msg string) string {
	return envelope(map[string]any{"status": "execution_failed", "error": msg})
}

func envelope(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"status":"execution_failed","error":%q}`, err.Error())
	}
	return string(b)
}

// firstText picks the text a knowledge tool was asked to say.
func firstText(args map[string]any) string {
	for _, k := range []string{"texto", "resposta", "mensagem", "comando", "pergunta"} {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return Flatten(args)
}

// plain round-trips args through JSON so the validator only sees JSON types.
func plain(args map[string]any) any {
	b, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return args
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
