package cognition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"jarvis/internal/dag"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// Plan is what ExtractPlan found: the tasks and the reply with every JSON
// block removed.
type Plan struct {
	Tasks []dag.Task
	Text  string
}

// ExtractPlan looks for a task graph in an LLM reply, in three passes:
// fenced code blocks, then bare top-level arrays, then single objects that
// carry task_id or the legacy ferramenta key. ErrNoPlan means "say the text".
func ExtractPlan(reply string) (Plan, error) {
	// Fenced blocks.
	var (
		tasks []dag.Task
		spans []string
	)
	for _, m := range fenceRe.FindAllStringSubmatch(reply, -1) {
		if found := parseTasks(strings.TrimSpace(m[1])); len(found) > 0 {
			tasks = append(tasks, found...)
			spans = append(spans, m[0])
		}
	}

	// Top-level arrays.
	if len(tasks) == 0 {
		for _, c := range candidates(reply, '[') {
			if found := parseTasks(c); len(found) > 0 {
				tasks = append(tasks, found...)
				spans = append(spans, c)
			}
		}
	}

	// Single objects.
	if len(tasks) == 0 {
		for _, c := range candidates(reply, '{') {
			if !strings.Contains(c, `"task_id"`) && !strings.Contains(c, `"ferramenta"`) {
				continue
			}
			if found := parseTasks(c); len(found) > 0 {
				tasks = append(tasks, found...)
				spans = append(spans, c)
			}
		}
	}

	if len(tasks) == 0 {
		return Plan{Text: strings.TrimSpace(reply)}, ErrNoPlan
	}

	text := reply
	for _, s := range spans {
		text = strings.Replace(text, s, "", 1)
	}
	return Plan{Tasks: renumber(tasks), Text: strings.TrimSpace(text)}, nil
}

// candidates returns every balanced JSON-looking span that starts with open
// and is not nested inside another span. Brackets inside strings are skipped.
func candidates(s string, open byte) []string {
	closeCh := byte(']')
	if open == '{' {
		closeCh = '}'
	}

	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != open {
			continue
		}
		end := matchClose(s, i, open, closeCh)
		if end < 0 {
			continue
		}
		out = append(out, s[i:end+1])
		i = end
	}
	return out
}

func matchClose(s string, start int, open, closeCh byte) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseTasks decodes an array of tasks or a single task object. Loose input
// is accepted: numeric ids, "args" or "parametros" instead of initial_args,
// and the legacy {"ferramenta": ...} form.
func parseTasks(raw string) []dag.Task {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}

	var objs []map[string]any
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				objs = append(objs, m)
			}
		}
	case map[string]any:
		objs = append(objs, x)
	}

	var out []dag.Task
	for _, m := range objs {
		if t, ok := toTask(m); ok {
			out = append(out, t)
		}
	}
	return out
}

func toTask(m map[string]any) (dag.Task, bool) {
	if legacy, ok := m["ferramenta"].(string); ok {
		return fromLegacy(legacy, m)
	}

	tool := firstString(m, "target_tool", "tool")
	if tool == "" {
		return dag.Task{}, false
	}

	t := dag.Task{Tool: tool, Args: map[string]any{}}
	if id, ok := m["task_id"]; ok && id != nil {
		t.ID = fmt.Sprint(id)
	}
	for _, k := range []string{"initial_args", "args", "parametros"} {
		if a, ok := m[k].(map[string]any); ok {
			t.Args = a
			break
		}
	}
	if deps, ok := m["dependencies"].([]any); ok {
		for _, d := range deps {
			if d != nil {
				t.Dependencies = append(t.Dependencies, fmt.Sprint(d))
			}
		}
	}
	return t, true
}

func fromLegacy(tool string, m map[string]any) (dag.Task, bool) {
	if strings.TrimSpace(tool) == "" {
		return dag.Task{}, false
	}
	args := map[string]any{}
	if p, ok := m["parametros"].(map[string]any); ok {
		args = p
	} else {
		for k, v := range m {
			if k != "ferramenta" {
				args[k] = v
			}
		}
	}
	return dag.Task{Tool: tool, Args: args}, true
}

// renumber gives id-less tasks a fresh tN id that does not clash.
func renumber(tasks []dag.Task) []dag.Task {
	used := map[string]bool{}
	for _, t := range tasks {
		if t.ID != "" {
			used[t.ID] = true
		}
	}
	n := 0
	for i := range tasks {
		if tasks[i].ID != "" {
			continue
		}
		for {
			n++
			id := fmt.Sprintf("t%d", n)
			if !used[id] {
				tasks[i].ID = id
				used[id] = true
				break
			}
		}
	}
	return tasks
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
