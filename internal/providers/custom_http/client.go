package custom_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/template"
	"time"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/providers"
)

type Config struct {
	Name         string
	URL          string
	HealthURL    string
	APIKey       string
	Headers      map[string]string
	BodyTemplate string
	// ResponsePath is a dotted path to the reply text, e.g. "data.reply.0.text".
	ResponsePath string
	Method       string
	Models       []string
	DefaultModel string
	Aliases      map[string]string
	HTTPClient   *http.Client
	MaxRetries   int
	BackoffBase  time.Duration
	Now          func() time.Time
}

// Client posts a templated body to an arbitrary HTTP endpoint.
type Client struct {
	providers.Catalog
	cfg Config
	tpl *template.Template
}

func New(cfg Config) (*Client, error) {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Client{
		Catalog: providers.NewCatalog(cfg.Name, cfg.Models, cfg.Aliases, cfg.DefaultModel),
		cfg:     cfg,
	}
	if strings.TrimSpace(cfg.BodyTemplate) != "" {
		tpl, err := template.New("custom_http_body").Option("missingkey=zero").Funcs(template.FuncMap{
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
		}).Parse(cfg.BodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
		c.tpl = tpl
	}
	return c, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) AuthMethod() string {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.AuthNone
	}
	return providers.AuthAPIKey
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := c.renderBody(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, retry, err := c.callOnce(ctx, body)
		if err == nil {
			return providers.ChatResponse{Text: text}, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-time.After(c.cfg.BackoffBase * (1 << attempt)):
		}
	}
	if ctx.Err() != nil {
		return providers.ChatResponse{}, ctx.Err()
	}
	return providers.ChatResponse{}, lastErr
}

func (c *Client) ChatStream(ctx context.Context, req providers.ChatRequest, emit providers.StreamFunc) error {
	return providers.StreamViaChat(ctx, c, req, emit)
}

type templateMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) renderBody(req providers.ChatRequest) ([]byte, error) {
	history := make([]templateMessage, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, templateMessage{Role: string(m.Role), Content: m.Content})
	}
	model := c.ResolveModel(req.Model)

	if c.tpl == nil {
		payload := map[string]any{
			"model":         model,
			"system_prompt": req.SystemPrompt,
			"prompt":        req.Prompt,
			"history":       history,
			"max_tokens":    req.MaxTokens,
			"temperature":   req.Temperature,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	var buf bytes.Buffer
	if err := c.tpl.Execute(&buf, map[string]any{
		"Model":        model,
		"SystemPrompt": req.SystemPrompt,
		"Prompt":       req.Prompt,
		"History":      history,
		"MaxTokens":    req.MaxTokens,
		"Temperature":  req.Temperature,
		"APIKey":       c.cfg.APIKey,
	}); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	if len(c.cfg.Headers) == 0 {
		req.Header.Set("Content-Type", "application/json")
		return
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}
}

func (c *Client) callOnce(ctx context.Context, body []byte) (text string, retry bool, err error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return "", false, apperr.ProviderError(c.Name(), "custom http url is empty", nil)
	}
	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build custom request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, apperr.ProviderError(c.Name(), "custom request failed", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, apperr.ProviderError(c.Name(), "read custom response", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", true, apperr.ProviderError(c.Name(), fmt.Sprintf("custom provider temporary status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", false, apperr.TokenExpired(c.Name())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", false, apperr.ProviderError(c.Name(), fmt.Sprintf("custom provider status %d", resp.StatusCode), nil)
	}

	if c.cfg.ResponsePath != "" {
		text, err = extractText(b, c.cfg.ResponsePath)
	} else {
		text, err = extractText(b)
	}
	if err != nil {
		return "", false, apperr.ProviderError(c.Name(), "unexpected response shape", err)
	}
	return text, false, nil
}

// HealthCheck probes HealthURL when configured; otherwise the endpoint is assumed reachable.
func (c *Client) HealthCheck(ctx context.Context) domain.ComponentHealth {
	if c.cfg.HealthURL == "" {
		h := domain.ComponentHealth{Status: domain.StatusHealthy}
		h.SupportedModels = c.SupportedModels()
		return h
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HealthURL, nil)
	if err != nil {
		return domain.Unhealthy(fmt.Errorf("build probe: %w", err))
	}
	c.setHeaders(req)
	start := c.cfg.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.Unhealthy(fmt.Errorf("probe failed: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Unhealthy(fmt.Errorf("health endpoint returned %d", resp.StatusCode))
	}
	h := domain.Healthy(c.cfg.Now().Sub(start))
	h.SupportedModels = c.SupportedModels()
	return h
}

func (c *Client) TokenStatus(_ context.Context) domain.TokenStatus {
	return domain.TokenStatus{Valid: true, Status: c.AuthMethod()}
}

// defaultTextPaths covers plain, OpenAI chat and OpenAI responses shapes.
var defaultTextPaths = []string{
	"text", "response", "answer", "output_text", "result",
	"choices.0.message.content", "choices.0.text",
	"output.0.content.0.text",
}

// extractText returns the first non-empty string found at one of paths, or
// at the default paths when none is given. Non-JSON bodies are returned as is.
func extractText(body []byte, paths ...string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			return trimmed, nil
		}
		return "", fmt.Errorf("decode custom response: %w", err)
	}
	if len(paths) == 0 {
		paths = defaultTextPaths
	}
	for _, p := range paths {
		if v, ok := lookup(doc, p).(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("custom response does not contain text field")
}

// lookup walks a dotted path of object keys and array indexes.
func lookup(v any, path string) any {
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			v = node[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}
