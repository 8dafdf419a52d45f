package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrDuplicateProvider = errors.New("duplicate provider name")

// ProviderSpec declares an HTTP-backed provider in the providers file.
type ProviderSpec struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	APIKeyEnv    string            `yaml:"api_key_env"`
	APIKeyEnc    string            `yaml:"api_key_enc"`
	Models       []string          `yaml:"models"`
	DefaultModel string            `yaml:"default_model"`
	Aliases      map[string]string `yaml:"aliases"`
	Headers      map[string]string `yaml:"headers"`
	Config       map[string]any    `yaml:"config"`
	Disabled     bool              `yaml:"disabled"`
}

type providersFile struct {
	Providers []ProviderSpec `yaml:"providers"`
}

func LoadProviderSpecs(path string) ([]ProviderSpec, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviderSpecs(raw)
}

func ParseProviderSpecs(raw []byte) ([]ProviderSpec, error) {
	var f providersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	seen := map[string]bool{}
	out := make([]ProviderSpec, 0, len(f.Providers))
	for i, p := range f.Providers {
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Name == "" {
			return nil, fmt.Errorf("providers[%d]: name is required", i)
		}
		if p.Kind == "" {
			return nil, fmt.Errorf("provider %q: kind is required", p.Name)
		}
		if len(p.Models) == 0 {
			return nil, fmt.Errorf("provider %q: at least one model is required", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name)
		}
		seen[p.Name] = true
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = mustEnv(p.APIKeyEnv, "")
		}
		out = append(out, p)
	}
	return out, nil
}
