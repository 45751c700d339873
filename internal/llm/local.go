package llm

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// Ollama talks to a local Ollama server through its OpenAI-compatible API.
type Ollama struct {
	client *goopenai.Client
	model  string
}

// NewOllama expects the /v1 base URL, e.g. http://localhost:11434/v1.
func NewOllama(baseURL, model string) *Ollama {
	cfg := goopenai.DefaultConfig("ollama")
	cfg.BaseURL = baseURL
	return &Ollama{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *Ollama) Complete(ctx context.Context, p Prompt) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: o.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: p.System},
			{Role: goopenai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: float32(p.Temperature),
	}
	if p.Mode == JSON {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
