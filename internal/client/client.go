// Package client talks to the hub HTTP API. The dashboard and hubctl are built on it.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"llmhub/internal/schema"
)

const sessionHeader = "X-Session-ID"

// APIError is a non-2xx hub response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("hub returned HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	http   *http.Client
	server string
}

func New(server string, timeout time.Duration) (*Client, error) {
	normalized, err := normalizeServerURL(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}, server: normalized}, nil
}

// Server returns the normalized base URL.
func (c *Client) Server() string { return c.server }

// normalizeServerURL adds a scheme when missing and drops any trailing slash.
func normalizeServerURL(server string) (string, error) {
	server = strings.TrimSpace(server)
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("cannot parse %q", server)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var env schema.ErrorResponse
	if err := json.Unmarshal(raw, &env); err == nil && env.Detail.Code != "" {
		apiErr.Code = env.Detail.Code
		apiErr.Message = env.Detail.Message
		apiErr.Details = env.Detail.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, out)
	return err
}

func (c *Client) Root(ctx context.Context) (schema.RootResponse, error) {
	var out schema.RootResponse
	return out, c.get(ctx, endpointRoot, &out)
}

func (c *Client) Health(ctx context.Context) (schema.HealthResponse, error) {
	var out schema.HealthResponse
	return out, c.get(ctx, endpointHealth, &out)
}

func (c *Client) DetailedHealth(ctx context.Context) (schema.DetailedHealthResponse, error) {
	var out schema.DetailedHealthResponse
	return out, c.get(ctx, endpointHealthDetailed, &out)
}

func (c *Client) Tokens(ctx context.Context) (schema.TokenHealthResponse, error) {
	var out schema.TokenHealthResponse
	return out, c.get(ctx, endpointHealthTokens, &out)
}

func (c *Client) Providers(ctx context.Context) ([]schema.ProviderInfo, error) {
	var out []schema.ProviderInfo
	return out, c.get(ctx, endpointProviders, &out)
}

func (c *Client) Provider(ctx context.Context, name string) (schema.ProviderDetail, error) {
	var out schema.ProviderDetail
	return out, c.get(ctx, fmt.Sprintf(endpointProvider, url.PathEscape(name)), &out)
}

func (c *Client) ProviderModels(ctx context.Context, name string) ([]string, error) {
	var out []string
	return out, c.get(ctx, fmt.Sprintf(endpointProviderModels, url.PathEscape(name)), &out)
}

func (c *Client) Sessions(ctx context.Context, limit, offset int) (schema.SessionListResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := endpointSessions
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out schema.SessionListResponse
	return out, c.get(ctx, path, &out)
}

func (c *Client) Session(ctx context.Context, id string) (schema.SessionResponse, error) {
	var out schema.SessionResponse
	return out, c.get(ctx, fmt.Sprintf(endpointSession, url.PathEscape(id)), &out)
}

func (c *Client) CreateSession(ctx context.Context, in schema.CreateSessionRequest) (schema.SessionResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, endpointSessions, in)
	if err != nil {
		return schema.SessionResponse{}, err
	}
	var out schema.SessionResponse
	_, err = c.do(req, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf(endpointSession, url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, nil)
	return err
}

func (c *Client) CloseSession(ctx context.Context, id string, in schema.CloseSessionRequest) (schema.CloseSessionResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf(endpointSessionClose, url.PathEscape(id)), in)
	if err != nil {
		return schema.CloseSessionResponse{}, err
	}
	var out schema.CloseSessionResponse
	_, err = c.do(req, &out)
	return out, err
}

func (c *Client) SessionMemory(ctx context.Context, id, compression, provider, format string) (schema.SessionMemoryResponse, error) {
	q := url.Values{}
	for k, v := range map[string]string{"compression": compression, "provider": provider, "format": format} {
		if v != "" {
			q.Set(k, v)
		}
	}
	path := fmt.Sprintf(endpointSessionMemory, url.PathEscape(id))
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out schema.SessionMemoryResponse
	return out, c.get(ctx, path, &out)
}

// Chat sends one completion. sessionID may be empty.
func (c *Client) Chat(ctx context.Context, in schema.ChatCompletionRequest, sessionID string) (schema.ChatCompletionResponse, error) {
	in.Stream = false
	req, err := c.newRequest(ctx, http.MethodPost, endpointChatCompletions, in)
	if err != nil {
		return schema.ChatCompletionResponse{}, err
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	var out schema.ChatCompletionResponse
	_, err = c.do(req, &out)
	return out, err
}

// ChatStream sends a streaming completion and calls onEvent for every SSE
// event in order. It returns the final done event, or the error event as an
// *APIError.
func (c *Client) ChatStream(ctx context.Context, in schema.ChatCompletionRequest, sessionID string, onEvent func(schema.StreamEvent) error) (schema.StreamEvent, error) {
	in.Stream = true
	req, err := c.newRequest(ctx, http.MethodPost, endpointChatCompletions, in)
	if err != nil {
		return schema.StreamEvent{}, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	// Streams may outlive the client timeout; the caller's ctx bounds them.
	streaming := *c.http
	streaming.Timeout = 0
	resp, err := streaming.Do(req)
	if err != nil {
		return schema.StreamEvent{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return schema.StreamEvent{}, decodeError(resp)
	}
	return parseSSE(resp.Body, onEvent)
}

func parseSSE(r io.Reader, onEvent func(schema.StreamEvent) error) (schema.StreamEvent, error) {
	sc := bufio.NewScanner(r)
	const maxLine = 1 << 20
	sc.Buffer(make([]byte, 64<<10), maxLine)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev schema.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return schema.StreamEvent{}, fmt.Errorf("failed to parse event: %w", err)
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return schema.StreamEvent{}, err
			}
		}
		switch ev.Type {
		case schema.EventDone:
			return ev, nil
		case schema.EventError:
			return ev, &APIError{Status: http.StatusOK, Code: ev.Code, Message: ev.Error}
		}
	}
	if err := sc.Err(); err != nil {
		return schema.StreamEvent{}, fmt.Errorf("read stream: %w", err)
	}
	return schema.StreamEvent{}, io.ErrUnexpectedEOF
}
