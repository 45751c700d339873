package specialists

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jarvis/internal/tools"
	"jarvis/pkg/textutil"
)

func init() {
	tools.Provide("clima", func(d tools.Deps) (tools.Specialist, error) {
		client := d.HTTP
		if client == nil {
			client = &http.Client{Timeout: 8 * time.Second}
		}
		return &Clima{client: client, baseURL: "https://wttr.in"}, nil
	})
}

var weatherFiller = wordSet("clima", "tempo", "previsao", "temperatura", "como", "esta", "qual",
	"o", "a", "e", "em", "de", "do", "da", "no", "na", "para", "hoje", "agora", "descubra", "veja")

// Clima reads the current weather from wttr.in.
type Clima struct {
	client  *http.Client
	baseURL string
}

func (c *Clima) Name() string { return "clima" }

func (c *Clima) Triggers() []string {
	return []string{"weather", "tempo", "previsao"}
}

func (c *Clima) Execute(ctx context.Context, command string, _ map[string]any) (string, error) {
	city := cityOf(command)

	u := c.baseURL + "/" + url.PathEscape(city) + "?format=3&lang=pt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "curl/8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("wttr.in: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wttr.in: status %d", resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

func cityOf(command string) string {
	words := strings.Fields(textutil.StripPunct(command))
	var keep []string
	for _, w := range words {
		if !weatherFiller[textutil.Fold(w)] {
			keep = append(keep, w)
		}
	}
	return strings.Join(keep, " ")
}
