// Package dag runs the task graphs the language model plans: every task
// waits for its dependencies and independent branches run concurrently.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Task is one node of a plan, in the shape the model is asked to produce.
type Task struct {
	ID           string         `json:"task_id"`
	Tool         string         `json:"target_tool"`
	Args         map[string]any `json:"initial_args"`
	Dependencies []string       `json:"dependencies"`
}

// Result is a finished task.
type Result struct {
	ID     string
	Tool   string
	Output string
}

// Validate rejects plans that cannot run to completion: blank or duplicate
// ids, dependencies on tasks that do not exist, and cycles. It walks the
// graph Kahn-style; whatever never reaches in-degree zero is on a cycle.
func Validate(tasks []Task) error {
	if len(tasks) == 0 {
		return ErrEmptyPlan
	}

	indegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Tool) == "" {
			return fmt.Errorf("%w: %+v", ErrInvalidTask, t)
		}
		if _, dup := indegree[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		indegree[t.ID] = 0
	}

	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := indegree[dep]; !ok {
				return fmt.Errorf("%w: %s needs %s", ErrUnknownDependency, t.ID, dep)
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	visited := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++

		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if visited != len(tasks) {
		var stuck []string
		for id, n := range indegree {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return nil
}
