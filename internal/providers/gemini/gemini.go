package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/providers"
	"llmhub/internal/providers/cliexec"
)

const Name = "gemini"

var (
	models = []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}
	ansi   = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
)

type Config struct {
	Binary       string
	AuthPath     string
	DefaultModel string
	Exec         cliexec.Executor
	LookPath     func(string) (string, error)
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Client drives the gemini CLI, which only runs attached to a terminal.
type Client struct {
	providers.Catalog
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "gemini"
	}
	if cfg.AuthPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.AuthPath = filepath.Join(home, ".gemini", "oauth_creds.json")
		}
	}
	if cfg.Exec == nil {
		cfg.Exec = cliexec.Terminal{Rows: 24, Cols: 200}
	}
	if cfg.LookPath == nil {
		cfg.LookPath = cliexec.LookPath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.With().Str("provider", Name).Logger()
	return &Client{
		Catalog: providers.NewCatalog(Name, models, nil, cfg.DefaultModel),
		cfg:     cfg,
	}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) AuthMethod() string { return providers.AuthOAuth }

// env points HOME at the directory holding .gemini/oauth_creds.json.
func (c *Client) env() []string {
	env := os.Environ()
	if c.cfg.AuthPath != "" {
		env = append(env, "HOME="+filepath.Dir(filepath.Dir(c.cfg.AuthPath)))
	}
	return append(env, "TERM=dumb")
}

func (c *Client) command(req providers.ChatRequest) cliexec.Command {
	prompt := providers.FoldHistory(req.History, req.Prompt)
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}
	return cliexec.Command{
		Path: c.cfg.Binary,
		Args: []string{"-p", prompt, "-m", c.ResolveModel(req.Model)},
		Env:  c.env(),
	}
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	c.cfg.Logger.Debug().Str("model", c.ResolveModel(req.Model)).Msg("gemini cli chat")
	out, _, err := c.cfg.Exec.Output(ctx, c.command(req))
	if err != nil {
		return providers.ChatResponse{}, c.wrapErr(ctx, err, out)
	}
	return providers.ChatResponse{Text: CleanOutput(string(out))}, nil
}

// ChatStream forwards terminal output as it arrives. The CLI has no native
// streaming mode, so chunk boundaries follow pty reads.
func (c *Client) ChatStream(ctx context.Context, req providers.ChatRequest, emit providers.StreamFunc) error {
	proc, err := c.cfg.Exec.Start(ctx, c.command(req))
	if err != nil {
		return apperr.ProviderError(Name, "failed to start gemini CLI", err)
	}
	defer proc.Close()

	buf := make([]byte, 256)
	for {
		n, rerr := proc.Read(buf)
		if n > 0 {
			if chunk := ansi.ReplaceAllString(string(buf[:n]), ""); chunk != "" {
				if err := emit(strings.ReplaceAll(chunk, "\r\n", "\n")); err != nil {
					return err
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				c.cfg.Logger.Warn().Err(rerr).Msg("gemini pty read stopped")
			}
			break
		}
	}
	if err := proc.Wait(); err != nil {
		return c.wrapErr(ctx, err, nil)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) domain.ComponentHealth {
	start := c.cfg.Now()
	if _, err := c.cfg.LookPath(c.cfg.Binary); err != nil {
		return domain.Unhealthy(errors.New("Gemini CLI not found"))
	}
	if _, err := os.Stat(c.cfg.AuthPath); err != nil {
		return domain.Unhealthy(fmt.Errorf("OAuth credentials not found: %s", c.cfg.AuthPath))
	}
	h := domain.Healthy(c.cfg.Now().Sub(start))
	h.SupportedModels = c.SupportedModels()
	return h
}

type oauthCreds struct {
	ExpiryDate   int64  `json:"expiry_date"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStatus reads the CLI's cached credentials. A refresh token keeps the
// login valid regardless of the short-lived access token's expiry.
func (c *Client) TokenStatus(_ context.Context) domain.TokenStatus {
	raw, err := os.ReadFile(c.cfg.AuthPath)
	if err != nil {
		return domain.InvalidToken("OAuth credentials not found")
	}
	var creds oauthCreds
	if err := json.Unmarshal(raw, &creds); err != nil {
		return domain.InvalidToken("OAuth credentials unreadable")
	}
	if creds.RefreshToken != "" {
		st := domain.TokenStatus{Valid: true, Status: "active"}
		if creds.ExpiryDate > 0 {
			exp := time.UnixMilli(creds.ExpiryDate).UTC()
			st.ExpiresAt = &exp
		}
		return st
	}
	if creds.ExpiryDate == 0 {
		return domain.TokenStatus{Valid: true, Status: "active"}
	}
	return domain.TokenFromExpiry(time.UnixMilli(creds.ExpiryDate), c.cfg.Now())
}

func (c *Client) wrapErr(ctx context.Context, err error, out []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	detail := strings.TrimSpace(CleanOutput(string(out)))
	c.cfg.Logger.Error().Err(err).Str("output", detail).Msg("gemini cli failed")
	if detail == "" {
		detail = err.Error()
	}
	return apperr.ProviderError(Name, "Gemini CLI failed: "+detail, err)
}

// CleanOutput strips terminal escapes and carriage returns from CLI output.
func CleanOutput(raw string) string {
	s := ansi.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(s)
}
