package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAICloud talks to any OpenAI-compatible chat endpoint (Groq by default).
// One client is kept per key.
type OpenAICloud struct {
	baseURL    string
	model      string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]openai.Client
}

func NewOpenAICloud(baseURL, model string, httpClient *http.Client) *OpenAICloud {
	return &OpenAICloud{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		clients:    map[string]openai.Client{},
	}
}

func (c *OpenAICloud) client(key string) openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[key]; ok {
		return cl
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		// Retries are ours: each one moves to another key.
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	if c.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(c.httpClient))
	}

	cl := openai.NewClient(opts...)
	c.clients[key] = cl
	return cl
}

func (c *OpenAICloud) Complete(ctx context.Context, key string, p Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Temperature: openai.Float(p.Temperature),
	}
	if p.Mode == JSON {
		format := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &format}
	}

	client := c.client(key)
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
