package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmhub/internal/domain"
	"llmhub/internal/health"
	"llmhub/internal/providers"
	"llmhub/internal/providers/providerstest"
	"llmhub/internal/ratelimit"
	"llmhub/internal/schema"
	"llmhub/internal/service"
	"llmhub/internal/session"
)

type testHub struct {
	srv    *httptest.Server
	claude *providerstest.Fake
	gemini *providerstest.Fake
}

func newTestHub(t *testing.T, limiter *ratelimit.Limiter) *testHub {
	t.Helper()
	claude := providerstest.New("claude", "claude-sonnet", "claude-opus")
	gemini := providerstest.New("gemini", "gemini-2.5-pro")
	reg := providers.NewRegistry()
	require.NoError(t, reg.Register(claude))
	require.NoError(t, reg.Register(gemini))

	store := session.NewMemoryStore(time.Hour)
	sessions := service.NewSessionService(service.SessionConfig{Store: store, Providers: reg, Logger: zerolog.Nop()})
	srv := NewServer(Config{
		AppName:  "LLM MCP Hub",
		Version:  "9.9.9",
		Sessions: sessions,
		Chat:     service.NewChatService(service.ChatConfig{Sessions: sessions, DefaultProvider: "claude", Logger: zerolog.Nop()}),
		Memory:   service.NewMemoryService(service.MemoryConfig{Sessions: sessions, Logger: zerolog.Nop()}),
		Health:   health.NewReporter(health.Config{Version: "9.9.9", Store: store, Providers: reg, Logger: zerolog.Nop()}),
		Limiter:  limiter,
		Logger:   zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testHub{srv: ts, claude: claude, gemini: gemini}
}

func (h *testHub) do(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRootAndHealth(t *testing.T) {
	h := newTestHub(t, nil)

	root := decode[schema.RootResponse](t, h.do(t, http.MethodGet, "/", "", nil))
	assert.Equal(t, "9.9.9", root.Version)

	basic := decode[schema.HealthResponse](t, h.do(t, http.MethodGet, "/health", "", nil))
	assert.Equal(t, domain.StatusHealthy, basic.Status)

	h.gemini.SetHealth(domain.Unhealthy(errors.New("no creds")))
	detailed := decode[schema.DetailedHealthResponse](t, h.do(t, http.MethodGet, "/health/detailed", "", nil))
	assert.Equal(t, domain.StatusDegraded, detailed.Status)
	assert.Equal(t, "no creds", detailed.Components["gemini"].Error)
	assert.Contains(t, detailed.Components, "memory")

	tokens := decode[map[string]*domain.TokenStatus](t, h.do(t, http.MethodGet, "/health/tokens", "", nil))
	require.NotNil(t, tokens["claude"])
	assert.True(t, tokens["claude"].Valid)
}

func TestProviders(t *testing.T) {
	h := newTestHub(t, nil)

	list := decode[[]schema.ProviderInfo](t, h.do(t, http.MethodGet, "/v1/providers", "", nil))
	require.Len(t, list, 2)
	assert.Equal(t, "claude", list[0].Name)
	assert.Equal(t, "claude-sonnet", list[0].DefaultModel)

	detail := decode[schema.ProviderDetail](t, h.do(t, http.MethodGet, "/v1/providers/gemini", "", nil))
	assert.Equal(t, domain.StatusHealthy, detail.Status)
	assert.Equal(t, "oauth", detail.AuthMethod)

	models := decode[[]string](t, h.do(t, http.MethodGet, "/v1/providers/claude/models", "", nil))
	assert.Equal(t, []string{"claude-sonnet", "claude-opus"}, models)

	resp := h.do(t, http.MethodGet, "/v1/providers/mistral", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PROVIDER_NOT_FOUND", decode[schema.ErrorResponse](t, resp).Detail.Code)
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestHub(t, nil)

	resp := h.do(t, http.MethodPost, "/v1/sessions", `{"provider":"gemini","system_prompt":"be kind","ttl":600,"context":{"memory":"likes go"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[schema.SessionResponse](t, resp)
	assert.Equal(t, "gemini-2.5-pro", created.Model)
	assert.Equal(t, []string{"gemini-2.5-pro"}, created.SupportedModels)
	require.NotNil(t, created.ExpiresAt)
	assert.WithinDuration(t, created.CreatedAt.Add(10*time.Minute), *created.ExpiresAt, time.Second)

	resp = h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"X-Session-ID": created.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decode[schema.ChatCompletionResponse](t, resp)
	assert.Equal(t, created.SessionID, chat.SessionID)
	assert.Equal(t, "gemini", chat.Provider)
	assert.Equal(t, "be kind\n\n# Project Context\nlikes go", h.gemini.LastRequest().SystemPrompt)

	got := decode[schema.SessionResponse](t, h.do(t, http.MethodGet, "/v1/sessions/"+created.SessionID, "", nil))
	assert.Equal(t, 2, got.MessageCount)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, got.Messages[1].Role)

	list := decode[schema.SessionListResponse](t, h.do(t, http.MethodGet, "/v1/sessions?limit=10", "", nil))
	assert.Equal(t, 1, list.Total)
	assert.Empty(t, list.Sessions[0].Messages)

	del := decode[schema.DeleteSessionResponse](t, h.do(t, http.MethodDelete, "/v1/sessions/"+created.SessionID, "", nil))
	assert.True(t, del.Success)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+created.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.do(t, http.MethodDelete, "/v1/sessions/"+created.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionListTotalCountsAllPages(t *testing.T) {
	h := newTestHub(t, nil)
	for i := 0; i < 60; i++ {
		resp := h.do(t, http.MethodPost, "/v1/sessions", `{}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	first := decode[schema.SessionListResponse](t, h.do(t, http.MethodGet, "/v1/sessions?limit=50&offset=0", "", nil))
	assert.Len(t, first.Sessions, 50)
	assert.Equal(t, 60, first.Total)

	second := decode[schema.SessionListResponse](t, h.do(t, http.MethodGet, "/v1/sessions?limit=50&offset=50", "", nil))
	assert.Len(t, second.Sessions, 10)
	assert.Equal(t, 60, second.Total)
}

func TestSessionListValidation(t *testing.T) {
	h := newTestHub(t, nil)
	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "limit=abc"} {
		resp := h.do(t, http.MethodGet, "/v1/sessions?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	h := newTestHub(t, nil)

	resp := h.do(t, http.MethodPost, "/v1/sessions", `{"provider":"claude","model":"gpt-4"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[schema.ErrorResponse](t, resp)
	assert.Equal(t, "INVALID_MODEL", body.Detail.Code)
	assert.NotEmpty(t, body.Detail.Details["supported_models"])

	resp = h.do(t, http.MethodPost, "/v1/sessions", `{"provider":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/sessions", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatErrors(t *testing.T) {
	h := newTestHub(t, nil)

	resp := h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"system","content":"x"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	created := decode[schema.SessionResponse](t, h.do(t, http.MethodPost, "/v1/sessions", `{"provider":"gemini"}`, nil))
	resp = h.do(t, http.MethodPost, "/v1/chat/completions", `{"provider":"claude","messages":[{"role":"user","content":"x"}]}`,
		map[string]string{"X-Session-ID": created.SessionID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PROVIDER_MISMATCH", decode[schema.ErrorResponse](t, resp).Detail.Code)

	h.claude.Reply = func(providers.ChatRequest) (string, error) { return "", errors.New("boom") }
	resp = h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "PROVIDER_ERROR", decode[schema.ErrorResponse](t, resp).Detail.Code)
}

func TestChatCreatesSessionImplicitly(t *testing.T) {
	h := newTestHub(t, nil)
	resp := h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hello"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decode[schema.ChatCompletionResponse](t, resp)
	assert.Equal(t, "echo: hello", chat.Response)
	assert.NotEmpty(t, chat.SessionID)
	assert.Equal(t, chat.SessionID, resp.Header.Get("X-Session-ID"))

	got := h.do(t, http.MethodGet, "/v1/sessions/"+chat.SessionID, "", nil)
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestChatStream(t *testing.T) {
	h := newTestHub(t, nil)
	h.claude.Reply = func(providers.ChatRequest) (string, error) { return "hello there", nil }

	resp := h.do(t, http.MethodPost, "/v1/chat/completions", `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last schema.StreamEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if ev, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, ev)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &last))
		}
	}
	assert.Equal(t, []string{"message", "message", "done"}, events)
	assert.Equal(t, schema.EventDone, last.Type)
	assert.NotEmpty(t, last.SessionID)
}

func TestChatStreamReportsErrorEvent(t *testing.T) {
	h := newTestHub(t, nil)
	h.claude.Reply = func(providers.ChatRequest) (string, error) { return "", errors.New("cli died") }

	resp := h.do(t, http.MethodPost, "/v1/chat/completions", `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	raw := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(raw)
	assert.Contains(t, raw.String(), "event: error")
	assert.Contains(t, raw.String(), `"code":"PROVIDER_ERROR"`)
}

func TestCloseAndExportMemory(t *testing.T) {
	h := newTestHub(t, nil)
	chat := decode[schema.ChatCompletionResponse](t, h.do(t, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"remember the milk"}]}`, nil))

	mem := decode[schema.SessionMemoryResponse](t, h.do(t, http.MethodGet,
		"/v1/sessions/"+chat.SessionID+"/memory?compression=none", "", nil))
	assert.Contains(t, mem.Content, "remember the milk")
	assert.Equal(t, "markdown", mem.Format)

	h.claude.Reply = func(providers.ChatRequest) (string, error) { return "- buy milk", nil }
	resp := h.do(t, http.MethodPost, "/v1/sessions/"+chat.SessionID+"/close", `{"compression":"high"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	closed := decode[schema.CloseSessionResponse](t, resp)
	assert.Equal(t, domain.SessionClosed, closed.Status)
	assert.Equal(t, "- buy milk", closed.CompressedMemory)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+chat.SessionID, "", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"again"}]}`,
		map[string]string{"X-Session-ID": chat.SessionID})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "SESSION_EXPIRED", decode[schema.ErrorResponse](t, resp).Detail.Code)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+chat.SessionID+"/memory?compression=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	list := decode[schema.SessionListResponse](t, h.do(t, http.MethodGet, "/v1/sessions", "", nil))
	assert.Equal(t, 1, list.Total)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := newTestHub(t, ratelimit.New(rdb, 2))

	body := `{"messages":[{"role":"user","content":"x"}]}`
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/chat/completions", body, nil).StatusCode)
	}
	resp := h.do(t, http.MethodPost, "/v1/chat/completions", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[schema.ErrorResponse](t, resp).Detail.Code)
}

func TestCORSAndUnknownRoute(t *testing.T) {
	h := newTestHub(t, nil)
	resp := h.do(t, http.MethodOptions, "/v1/sessions", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = h.do(t, http.MethodGet, "/v2/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
