package registry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/config"
	"llmhub/internal/crypto"
	"llmhub/internal/providers"
	"llmhub/internal/providers/claude"
	"llmhub/internal/providers/custom_http"
	"llmhub/internal/providers/gemini"
	"llmhub/internal/providers/openai_compat"
)

type BuildOptions struct {
	Name         string
	Kind         string
	BaseURL      string
	APIKey       string
	Headers      map[string]string
	Config       map[string]any
	Models       []string
	DefaultModel string
	Aliases      map[string]string
	HTTPClient   *http.Client
	MaxRetries   int
	BackoffBase  time.Duration
}

// Build constructs an HTTP-backed provider declared in the providers file.
func Build(opts BuildOptions) (providers.Provider, error) {
	if opts.Config == nil {
		opts.Config = map[string]any{}
	}
	switch opts.Kind {
	case "openai_compat", "openai-compatible", "openai":
		endpoint := "chat_completions"
		if v, ok := opts.Config["endpoint"].(string); ok && v != "" {
			endpoint = v
		}
		return openai_compat.New(openai_compat.Config{
			Name:         opts.Name,
			BaseURL:      opts.BaseURL,
			APIKey:       opts.APIKey,
			Headers:      opts.Headers,
			Endpoint:     endpoint,
			Models:       opts.Models,
			DefaultModel: opts.DefaultModel,
			Aliases:      opts.Aliases,
			HTTPClient:   opts.HTTPClient,
			MaxRetries:   opts.MaxRetries,
			BackoffBase:  opts.BackoffBase,
		}), nil

	case "custom_http", "custom-http":
		bodyTemplate := ""
		if v, ok := opts.Config["body_template"].(string); ok {
			bodyTemplate = v
		}
		method := "POST"
		if v, ok := opts.Config["method"].(string); ok && v != "" {
			method = v
		}
		healthURL, _ := opts.Config["health_url"].(string)
		responsePath, _ := opts.Config["response_path"].(string)
		return custom_http.New(custom_http.Config{
			Name:         opts.Name,
			URL:          opts.BaseURL,
			HealthURL:    healthURL,
			APIKey:       opts.APIKey,
			Headers:      opts.Headers,
			BodyTemplate: bodyTemplate,
			ResponsePath: responsePath,
			Method:       method,
			Models:       opts.Models,
			DefaultModel: opts.DefaultModel,
			Aliases:      opts.Aliases,
			HTTPClient:   opts.HTTPClient,
			MaxRetries:   opts.MaxRetries,
			BackoffBase:  opts.BackoffBase,
		})

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}

type LoadOptions struct {
	Config *config.Config
	Specs  []config.ProviderSpec
	// Sealer decrypts api_key_enc values. May be nil when no spec uses one.
	Sealer *crypto.Sealer
	Logger zerolog.Logger
}

// Load enables the CLI providers whose credentials are present, then every
// declared HTTP provider. Providers that cannot be enabled are recorded as disabled.
func Load(opts LoadOptions) (*providers.Registry, error) {
	cfg := opts.Config
	reg := providers.NewRegistry()

	if cfg.Claude.OAuthToken != "" {
		if err := reg.Register(claude.New(claude.Config{
			Binary:         cfg.Claude.Binary,
			OAuthToken:     cfg.Claude.OAuthToken,
			DefaultModel:   cfg.Claude.DefaultModel,
			TokenExpiresAt: cfg.Claude.TokenExpiresAt,
			Logger:         opts.Logger,
		})); err != nil {
			return nil, err
		}
		opts.Logger.Info().Str("provider", claude.Name).Msg("provider enabled")
	} else {
		reg.Disable(claude.Name, "CLAUDE_CODE_OAUTH_TOKEN not configured")
		opts.Logger.Warn().Str("provider", claude.Name).Msg("provider disabled: no oauth token")
	}

	if cfg.Gemini.AuthPath != "" {
		if err := reg.Register(gemini.New(gemini.Config{
			Binary:       cfg.Gemini.Binary,
			AuthPath:     cfg.Gemini.AuthPath,
			DefaultModel: cfg.Gemini.DefaultModel,
			Logger:       opts.Logger,
		})); err != nil {
			return nil, err
		}
		opts.Logger.Info().Str("provider", gemini.Name).Msg("provider enabled")
	} else {
		reg.Disable(gemini.Name, "GEMINI_AUTH_PATH not configured")
		opts.Logger.Warn().Str("provider", gemini.Name).Msg("provider disabled: no auth path")
	}

	httpClient := &http.Client{Timeout: cfg.Provider.ClientTimeout}
	for _, spec := range opts.Specs {
		if spec.Disabled {
			reg.Disable(spec.Name, "disabled in providers file")
			continue
		}
		apiKey := spec.APIKey
		if spec.APIKeyEnc != "" {
			if opts.Sealer == nil {
				return nil, fmt.Errorf("provider %q: api_key_enc requires master keys", spec.Name)
			}
			plain, err := opts.Sealer.OpenString(spec.APIKeyEnc)
			if err != nil {
				return nil, fmt.Errorf("provider %q: decrypt api key: %w", spec.Name, err)
			}
			apiKey = plain
		}
		p, err := Build(BuildOptions{
			Name:         spec.Name,
			Kind:         spec.Kind,
			BaseURL:      spec.BaseURL,
			APIKey:       apiKey,
			Headers:      spec.Headers,
			Config:       spec.Config,
			Models:       spec.Models,
			DefaultModel: spec.DefaultModel,
			Aliases:      spec.Aliases,
			HTTPClient:   httpClient,
			MaxRetries:   cfg.Provider.MaxRetries,
			BackoffBase:  cfg.Provider.BackoffBase,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", spec.Name, err)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		opts.Logger.Info().Str("provider", spec.Name).Str("kind", spec.Kind).Msg("provider enabled")
	}
	return reg, nil
}
