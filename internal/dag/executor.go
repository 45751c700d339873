package dag

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"jarvis/internal/tools"
)

// Dispatcher runs one tool call; the tool registry is the real one.
type Dispatcher interface {
	Execute(ctx context.Context, name string, args map[string]any) string
}

// FactStore receives memoria_gravar tasks.
type FactStore interface {
	RememberFact(ctx context.Context, text string) (string, error)
}

type Executor struct {
	tools  Dispatcher
	memory FactStore
}

func New(tools Dispatcher, memory FactStore) *Executor {
	return &Executor{tools: tools, memory: memory}
}

// Run validates the plan and executes it. Each task gets its own goroutine
// that blocks on the done channels of its dependencies; a task closes its own
// channel however it ends, so dependents always run and see its output.
// Results come back in plan order.
func (e *Executor) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}

	done := make(map[string]chan struct{}, len(tasks))
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		done[t.ID] = make(chan struct{})
		index[t.ID] = i
	}
	outputs := make([]string, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			defer close(done[t.ID])

			upstream := make(map[string]string, len(t.Dependencies))
			for _, dep := range t.Dependencies {
				<-done[dep]
				upstream[dep] = outputs[index[dep]]
			}

			outputs[i] = e.runTask(ctx, t, upstream)
			return nil
		})
	}
	g.Wait()

	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i] = Result{ID: t.ID, Tool: t.Tool, Output: outputs[i]}
	}
	return results, nil
}

func (e *Executor) runTask(ctx context.Context, t Task, upstream map[string]string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked", "task", t.ID, "tool", t.Tool, "err", fmt.Sprint(r))
			out = fmt.Sprintf("Erro na tarefa %s: %v", t.ID, r)
		}
	}()

	args := resolveArgs(t.Args, upstream)
	log.Debug("Running task", "task", t.ID, "tool", t.Tool, "deps", t.Dependencies)

	if strings.EqualFold(t.Tool, tools.MemoryTool) {
		return e.remember(ctx, t, args, upstream)
	}
	if e.tools == nil {
		return fmt.Sprintf("Ferramenta '%s' indisponível.", t.Tool)
	}
	return e.tools.Execute(ctx, t.Tool, args)
}

func (e *Executor) remember(ctx context.Context, t Task, args map[string]any, upstream map[string]string) string {
	var text string
	for _, k := range []string{"texto", "fato", "conteudo", "comando"} {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			text = strings.TrimSpace(s)
			break
		}
	}
	if text == "" {
		var parts []string
		for _, dep := range t.Dependencies {
			if s := tools.Speech(upstream[dep]); s != "" {
				parts = append(parts, s)
			}
		}
		text = strings.Join(parts, "\n")
	}
	if text == "" {
		return "Nada para gravar."
	}

	if e.memory == nil {
		return "Memória indisponível."
	}
	if _, err := e.memory.RememberFact(ctx, text); err != nil {
		log.Warn("memoria_gravar failed", "task", t.ID, "err", err)
		return "Não consegui gravar na memória."
	}
	return "Gravado na memória."
}

// resolveArgs copies args, replacing {id} in string values with the spoken
// form of that upstream task's output.
func resolveArgs(args map[string]any, upstream map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok || !strings.Contains(s, "{") {
			out[k] = v
			continue
		}
		for id, output := range upstream {
			s = strings.ReplaceAll(s, "{"+id+"}", tools.Speech(output))
		}
		out[k] = s
	}
	return out
}

// Speakable returns, in plan order, every output worth saying out loud.
func Speakable(results []Result) []string {
	var out []string
	for _, r := range results {
		s := tools.Speech(r.Output)
		switch strings.ToLower(s) {
		case "", "none", "null":
			continue
		}
		out = append(out, s)
	}
	return out
}
