// Package llm is the hybrid language model client: a pool of cloud keys
// tried in turn, then a local model, then a canned apology.
package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
)

type Mode int

const (
	Text Mode = iota
	JSON
)

// Temperatures by purpose.
const (
	TempClassify = 0.1
	TempChat     = 0.7
)

const (
	cloudAttempts = 3
	cloudTimeout  = 7 * time.Second
	localTimeout  = 60 * time.Second
)

// Canned is spoken when every tier failed. It carries an emotion tag like
// any model reply.
const Canned = "(neutro) Desculpe, senhor, estou sem acesso ao meu cérebro agora."

const jsonInstruction = "\n\nResponda SOMENTE com JSON válido. Nenhum texto antes ou depois do JSON."

type Prompt struct {
	System      string
	User        string
	Mode        Mode
	Temperature float64
}

type Source string

const (
	SourceCloud  Source = "cloud"
	SourceLocal  Source = "local"
	SourceCanned Source = "canned"
)

type Reply struct {
	Text   string
	Source Source
}

// Cloud answers a prompt with one specific API key.
type Cloud interface {
	Complete(ctx context.Context, key string, p Prompt) (string, error)
}

// Local answers a prompt with a model running on this machine.
type Local interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Client tries the cloud with key rotation, then the local model.
type Client struct {
	pool  *KeyPool
	cloud Cloud
	local Local

	attempts     int
	cloudTimeout time.Duration
	localTimeout time.Duration
}

func New(pool *KeyPool, cloud Cloud, local Local) *Client {
	if pool == nil {
		pool = NewKeyPool(nil)
	}
	return &Client{
		pool:         pool,
		cloud:        cloud,
		local:        local,
		attempts:     cloudAttempts,
		cloudTimeout: cloudTimeout,
		localTimeout: localTimeout,
	}
}

type Config struct {
	Keys       []string
	CloudURL   string
	CloudModel string
	LocalURL   string
	LocalModel string

	// HTTPClient carries cloud traffic, e.g. through a SOCKS proxy.
	HTTPClient *http.Client
}

// NewFromConfig wires the OpenAI-compatible cloud and the Ollama backends.
func NewFromConfig(cfg Config) *Client {
	pool := NewKeyPool(cfg.Keys)
	log.Info("LLM ready", "keys", pool.Len(), "cloud", cfg.CloudModel, "local", cfg.LocalModel)

	var local Local
	if cfg.LocalURL != "" && cfg.LocalModel != "" {
		local = NewOllama(cfg.LocalURL, cfg.LocalModel)
	}
	return New(pool, NewOpenAICloud(cfg.CloudURL, cfg.CloudModel, cfg.HTTPClient), local)
}

// Generate never fails: the worst case is the canned sentence.
func (c *Client) Generate(ctx context.Context, p Prompt) Reply {
	if p.Mode == JSON {
		p.System += jsonInstruction
	}

	if text, err := c.tryCloud(ctx, p); err == nil {
		return Reply{Text: text, Source: SourceCloud}
	} else if !errors.Is(err, ErrNoKeys) {
		log.Warn("Cloud exhausted, falling back to local model", "err", err)
	}

	if c.local != nil && ctx.Err() == nil {
		lctx, cancel := context.WithTimeout(ctx, c.localTimeout)
		text, err := c.local.Complete(lctx, p)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return Reply{Text: text, Source: SourceLocal}
		}
		if err == nil {
			err = ErrEmptyReply
		}
		log.Error("Local model failed", "err", err)
	}

	return Reply{Text: Canned, Source: SourceCanned}
}

func (c *Client) tryCloud(ctx context.Context, p Prompt) (string, error) {
	if c.cloud == nil || c.pool.Len() == 0 {
		return "", ErrNoKeys
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		key, err := c.pool.Current()
		if err != nil {
			return "", err
		}

		actx, cancel := context.WithTimeout(ctx, c.cloudTimeout)
		text, err := c.cloud.Complete(actx, key, p)
		cancel()

		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyReply
		}
		if err == nil {
			return text, nil
		}

		lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
		log.Warn("Cloud attempt failed", "attempt", attempt, "key", redact(key), "err", err)

		if ctx.Err() != nil || !rotatable(err) {
			break
		}
		c.pool.Rotate()
	}
	return "", lastErr
}

// rotatable reports whether another key may succeed where this one failed:
// rate limits, auth problems, server errors and transport failures.
func rotatable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	return true
}

func redact(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
