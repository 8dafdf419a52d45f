package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/logging"
	"llmhub/internal/providers"
	"llmhub/internal/providers/cliexec"
)

const Name = "claude"

var (
	models = []string{
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-5-20251101",
		"claude-haiku-4-5-20251001",
	}
	aliases = map[string]string{
		"sonnet": "claude-sonnet-4-5-20250929",
		"opus":   "claude-opus-4-5-20251101",
		"haiku":  "claude-haiku-4-5-20251001",
	}
	authFailureMarkers = []string{"invalid api key", "oauth token has expired", "authentication_error", "401", "please run /login"}
)

type Config struct {
	Binary         string
	OAuthToken     string
	DefaultModel   string
	TokenExpiresAt *time.Time
	WorkDir        string
	HealthTimeout  time.Duration
	Exec           cliexec.Executor
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Client drives the claude CLI in print mode.
type Client struct {
	providers.Catalog
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 10 * time.Second
	}
	if cfg.Exec == nil {
		cfg.Exec = cliexec.Pipes{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.With().Str("provider", Name).Logger()
	return &Client{
		Catalog: providers.NewCatalog(Name, models, aliases, cfg.DefaultModel),
		cfg:     cfg,
	}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) AuthMethod() string { return providers.AuthOAuth }

// env runs the CLI with the OAuth token and no inherited project instructions.
func (c *Client) env() []string {
	env := os.Environ()
	if c.cfg.OAuthToken != "" {
		env = append(env, "CLAUDE_CODE_OAUTH_TOKEN="+c.cfg.OAuthToken)
	}
	return env
}

func (c *Client) command(req providers.ChatRequest, stream bool) cliexec.Command {
	args := []string{"-p", providers.FoldHistory(req.History, req.Prompt)}
	if stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	} else {
		args = append(args, "--output-format", "json")
	}
	args = append(args, "--model", c.ResolveModel(req.Model))
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	return cliexec.Command{Path: c.cfg.Binary, Args: args, Env: c.env(), Dir: c.cfg.WorkDir}
}

type result struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	cmd := c.command(req, false)
	c.cfg.Logger.Debug().Str("model", c.ResolveModel(req.Model)).Int("history", len(req.History)).Msg("claude cli chat")

	stdout, stderr, err := c.cfg.Exec.Output(ctx, cmd)
	if err != nil {
		return providers.ChatResponse{}, c.wrapErr(ctx, err, string(stderr))
	}

	var res result
	if err := json.Unmarshal(stdout, &res); err != nil {
		return providers.ChatResponse{}, apperr.ProviderError(Name, "Invalid JSON response from claude CLI", err)
	}
	if res.IsError {
		if isAuthFailure(res.Result) {
			return providers.ChatResponse{}, apperr.TokenExpired(Name)
		}
		return providers.ChatResponse{}, apperr.ProviderError(Name, "Claude error: "+res.Result, nil)
	}
	return providers.ChatResponse{Text: res.Result}, nil
}

func (c *Client) ChatStream(ctx context.Context, req providers.ChatRequest, emit providers.StreamFunc) error {
	proc, err := c.cfg.Exec.Start(ctx, c.command(req, true))
	if err != nil {
		return apperr.ProviderError(Name, "failed to start claude CLI", err)
	}
	defer proc.Close()

	emitted := false
	var final result
	sc := bufio.NewScanner(proc)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		var ev result
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "assistant":
			for _, part := range ev.Message.Content {
				if part.Type != "text" || part.Text == "" {
					continue
				}
				if err := emit(part.Text); err != nil {
					return err
				}
				emitted = true
			}
		case "result":
			final = ev
		}
	}
	if err := proc.Wait(); err != nil {
		return c.wrapErr(ctx, err, "")
	}
	if err := sc.Err(); err != nil {
		return apperr.ProviderError(Name, "failed to read claude stream", err)
	}
	if final.IsError {
		return apperr.ProviderError(Name, "Claude error: "+final.Result, nil)
	}
	if !emitted && final.Result != "" {
		return emit(final.Result)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) domain.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	start := c.cfg.Now()
	_, stderr, err := c.cfg.Exec.Output(ctx, cliexec.Command{
		Path: c.cfg.Binary,
		Args: []string{"--version"},
		Env:  c.env(),
		Dir:  c.cfg.WorkDir,
	})
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			err = errors.New(msg)
		}
		return domain.Unhealthy(errors.New(logging.Mask(err.Error(), c.cfg.OAuthToken)))
	}
	h := domain.Healthy(c.cfg.Now().Sub(start))
	h.SupportedModels = c.SupportedModels()
	return h
}

func (c *Client) TokenStatus(ctx context.Context) domain.TokenStatus {
	if c.cfg.OAuthToken == "" {
		return domain.InvalidToken("CLAUDE_CODE_OAUTH_TOKEN not configured")
	}
	if c.cfg.TokenExpiresAt != nil {
		return domain.TokenFromExpiry(*c.cfg.TokenExpiresAt, c.cfg.Now())
	}
	h := c.HealthCheck(ctx)
	if h.Status != domain.StatusHealthy {
		return domain.InvalidToken(h.Error)
	}
	return domain.TokenStatus{Valid: true, Status: "active"}
}

func (c *Client) wrapErr(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ee *cliexec.ExitError
	if errors.As(err, &ee) && stderr == "" {
		stderr = ee.Stderr
	}
	stderr = logging.Mask(strings.TrimSpace(stderr), c.cfg.OAuthToken)
	c.cfg.Logger.Error().Err(errors.New(logging.Mask(err.Error(), c.cfg.OAuthToken))).Str("stderr", stderr).Msg("claude cli failed")
	if isAuthFailure(stderr) {
		return apperr.TokenExpired(Name)
	}
	return apperr.ProviderError(Name, fmt.Sprintf("claude-code failed: %s", stderr), err)
}

func isAuthFailure(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range authFailureMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
