// Package cognition turns an utterance into either a spoken reply or a task
// graph for the executor.
package cognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"jarvis/internal/dag"
	"jarvis/internal/llm"
	"jarvis/internal/memory"
)

const (
	curiosityChance = 0.3
	curiosityMaxLen = 120
)

var rememberRe = regexp.MustCompile(`(?i)^\s*(?:por favor,?\s+)?(?:memorize|memoriza|aprenda|aprende|grave|grava|lembre-se|lembre|lembra|anote|anota)(?:\s+(?:que|isso|isto))?[\s:,]+(.*)$`)

type Generator interface {
	Generate(ctx context.Context, p llm.Prompt) llm.Reply
}

type Memory interface {
	RememberFact(ctx context.Context, text string) (string, error)
}

type Catalog interface {
	Descriptions() string
}

// Thought is what the handler decided. Tasks is nil for a plain reply.
type Thought struct {
	Text       string
	Tasks      []dag.Task
	Remembered bool
}

type Handler struct {
	llm     Generator
	memory  Memory
	catalog Catalog

	now  func() time.Time
	roll func() float64
}

func New(gen Generator, memory Memory, catalog Catalog) *Handler {
	return &Handler{
		llm:     gen,
		memory:  memory,
		catalog: catalog,
		now:     time.Now,
		roll:    rand.Float64,
	}
}

// RememberTrigger reports whether text starts with a memorize verb and
// returns the fact that follows it.
func RememberTrigger(text string) (string, bool) {
	m := rememberRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	fact := strings.TrimSpace(strings.TrimRight(m[1], " .!"))
	switch strings.ToLower(fact) {
	case "que", "isso", "isto":
		fact = ""
	}
	return fact, true
}

// Think handles one normalized utterance. memoryContext is the recall
// result for it.
func (h *Handler) Think(ctx context.Context, text, memoryContext string) (Thought, error) {
	if fact, ok := RememberTrigger(text); ok {
		return h.remember(ctx, fact)
	}

	catalog := ""
	if h.catalog != nil {
		catalog = h.catalog.Descriptions()
	}

	reply := h.llm.Generate(ctx, llm.Prompt{
		System:      SystemPrompt(h.now(), catalog),
		User:        UserPrompt(text, memoryContext),
		Mode:        llm.Text,
		Temperature: llm.TempChat,
	})

	plan, err := ExtractPlan(reply.Text)
	switch {
	case errors.Is(err, ErrNoPlan):
		out := plan.Text
		if reply.Source != llm.SourceCanned {
			out = h.curiosity(ctx, text, out)
		}
		return Thought{Text: out}, nil
	case err != nil:
		return Thought{}, err
	}

	log.Debug("plan extracted", "tasks", len(plan.Tasks), "text", plan.Text)
	return Thought{Text: plan.Text, Tasks: plan.Tasks}, nil
}

func (h *Handler) remember(ctx context.Context, fact string) (Thought, error) {
	if fact == "" {
		return Thought{Text: "O que devo memorizar, senhor?"}, nil
	}
	if h.memory == nil {
		return Thought{}, fmt.Errorf("remember %q: no memory", fact)
	}
	_, err := h.memory.RememberFact(ctx, fact)
	if errors.Is(err, memory.ErrNotConnected) {
		log.Warn("fact not stored, memory offline", "fact", fact)
		return Thought{Text: "Memorizado: " + fact}, nil
	}
	if err != nil {
		return Thought{}, fmt.Errorf("remember %q: %w", fact, err)
	}
	log.Info("fact memorized", "fact", fact)
	return Thought{Text: "Memorizado: " + fact, Remembered: true}, nil
}

// curiosity sometimes appends a short follow-up question to a short reply.
func (h *Handler) curiosity(ctx context.Context, text, reply string) string {
	if reply == "" || strings.ContainsAny(reply, "{}") || utf8.RuneCountInString(reply) >= curiosityMaxLen {
		return reply
	}
	if h.roll() >= curiosityChance {
		return reply
	}

	q := h.llm.Generate(ctx, llm.Prompt{
		System:      curiosityPrompt,
		User:        "USUÁRIO: " + text + "\nJARVIS: " + reply,
		Mode:        llm.JSON,
		Temperature: llm.TempClassify,
	})
	if q.Source == llm.SourceCanned {
		return reply
	}
	var follow struct {
		Ask      bool   `json:"perguntar"`
		Question string `json:"pergunta"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(q.Text)), &follow); err != nil {
		log.Debug("curiosity reply is not json", "err", err)
		return reply
	}
	question := strings.TrimSpace(follow.Question)
	if !follow.Ask || question == "" || strings.ContainsAny(question, "{}") {
		return reply
	}
	return reply + " " + question
}
