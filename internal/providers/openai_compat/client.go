package openai_compat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/providers"
)

type Config struct {
	Name         string
	BaseURL      string
	APIKey       string
	Headers      map[string]string
	Endpoint     string
	Models       []string
	DefaultModel string
	Aliases      map[string]string
	HTTPClient   *http.Client
	MaxRetries   int
	BackoffBase  time.Duration
	Now          func() time.Time
}

type Client struct {
	providers.Catalog
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "chat_completions"
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
	return &Client{
		Catalog: providers.NewCatalog(cfg.Name, cfg.Models, cfg.Aliases, cfg.DefaultModel),
		cfg:     cfg,
	}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) AuthMethod() string {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.AuthNone
	}
	return providers.AuthAPIKey
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return providers.ChatResponse{}, err
	}
	body, err := c.payload(req, false)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, retry, err := c.callOnce(ctx, endpointURL, body)
		if err == nil {
			return providers.ChatResponse{Text: text}, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		if err := c.sleep(ctx, attempt); err != nil {
			return providers.ChatResponse{}, err
		}
	}
	if ctx.Err() != nil {
		return providers.ChatResponse{}, ctx.Err()
	}
	return providers.ChatResponse{}, lastErr
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(c.cfg.BackoffBase * (1 << attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ChatStream uses server-sent deltas on the chat completions endpoint. The
// responses endpoint is answered in one piece.
func (c *Client) ChatStream(ctx context.Context, req providers.ChatRequest, emit providers.StreamFunc) error {
	if isResponsesEndpoint(c.cfg.Endpoint) {
		return providers.StreamViaChat(ctx, c, req, emit)
	}
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return err
	}
	body, err := c.payload(req, true)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.authorize(httpReq)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return apperr.ProviderError(c.Name(), "request failed", err)
	}
	defer resp.Body.Close()
	if err := c.statusError(resp.StatusCode); err != nil {
		return err
	}
	return readDeltas(resp.Body, emit)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type responsesPayload struct {
	Model           string    `json:"model"`
	Input           []message `json:"input"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
	Temperature     float64   `json:"temperature,omitempty"`
}

// messages lays out system prompt, prior turns, then the prompt.
func messages(req providers.ChatRequest) []message {
	out := make([]message, 0, len(req.History)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		out = append(out, message{Role: string(domain.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		if m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, message{Role: string(domain.RoleUser), Content: req.Prompt})
}

func (c *Client) payload(req providers.ChatRequest, stream bool) ([]byte, error) {
	model := c.ResolveModel(req.Model)
	var v any
	if isResponsesEndpoint(c.cfg.Endpoint) {
		v = responsesPayload{Model: model, Input: messages(req), MaxOutputTokens: req.MaxTokens, Temperature: req.Temperature}
	} else {
		v = chatPayload{Model: model, Messages: messages(req), MaxTokens: req.MaxTokens, Temperature: req.Temperature, Stream: stream}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", c.cfg.Endpoint, err)
	}
	return b, nil
}

// statusError maps an upstream status to nil or a typed error.
func (c *Client) statusError(code int) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.TokenExpired(c.Name())
	default:
		return apperr.ProviderError(c.Name(), fmt.Sprintf("provider status %d", code), nil)
	}
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func readDeltas(r io.Reader, emit providers.StreamFunc) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (c *Client) authorize(req *http.Request) {
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (text string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, apperr.ProviderError(c.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, apperr.ProviderError(c.Name(), "read response body", err)
	}

	if err := c.statusError(resp.StatusCode); err != nil {
		return "", retryable(resp.StatusCode), err
	}

	if isResponsesEndpoint(c.cfg.Endpoint) {
		text, err = parseResponsesAPI(respBody)
	} else {
		text, err = parseChatCompletions(respBody)
	}
	if err != nil {
		return "", false, apperr.ProviderError(c.Name(), "unexpected response shape", err)
	}
	return text, false, nil
}

// HealthCheck lists models, which every OpenAI-compatible server exposes.
func (c *Client) HealthCheck(ctx context.Context) domain.ComponentHealth {
	status, latency, err := c.probe(ctx)
	if err != nil {
		return domain.Unhealthy(err)
	}
	if status < 200 || status > 299 {
		return domain.Unhealthy(fmt.Errorf("models endpoint returned %d", status))
	}
	h := domain.Healthy(latency)
	h.SupportedModels = c.SupportedModels()
	return h
}

func (c *Client) TokenStatus(ctx context.Context) domain.TokenStatus {
	status, _, err := c.probe(ctx)
	switch {
	case err != nil:
		return domain.InvalidToken(err.Error())
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.InvalidToken("API key rejected")
	}
	return domain.TokenStatus{Valid: true, Status: c.AuthMethod()}
}

func (c *Client) probe(ctx context.Context) (int, time.Duration, error) {
	u, err := c.baseURL()
	if err != nil {
		return 0, 0, err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build probe: %w", err)
	}
	c.authorize(req)
	start := c.cfg.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, c.cfg.Now().Sub(start), nil
}

func (c *Client) baseURL() (*url.URL, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	base = strings.TrimSuffix(base, "/chat/completions")
	base = strings.TrimSuffix(base, "/responses")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return u, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if strings.HasSuffix(base, "/chat/completions") || strings.HasSuffix(base, "/responses") {
		return base, nil
	}
	u, err := c.baseURL()
	if err != nil {
		return "", err
	}
	path := strings.TrimSuffix(u.Path, "/")
	if isResponsesEndpoint(c.cfg.Endpoint) {
		u.Path = path + "/responses"
	} else {
		u.Path = path + "/chat/completions"
	}
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

func parseResponsesAPI(body []byte) (string, error) {
	var resp struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode responses api response: %w", err)
	}
	if strings.TrimSpace(resp.OutputText) != "" {
		return resp.OutputText, nil
	}
	if len(resp.Output) > 0 && len(resp.Output[0].Content) > 0 && strings.TrimSpace(resp.Output[0].Content[0].Text) != "" {
		return resp.Output[0].Content[0].Text, nil
	}
	return "", fmt.Errorf("missing output text in responses api response")
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func isResponsesEndpoint(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "responses" || v == "/v1/responses"
}
