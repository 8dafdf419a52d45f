package config

import (
	"os"
	"path/filepath"
	"strings"
)

// SecretProvider resolves a named secret. ok is false when the source has no value.
type SecretProvider interface {
	Get(key string) (string, bool)
}

type EnvSecrets struct{}

func (EnvSecrets) Get(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// FileSecrets reads <Dir>/<key> (and its lowercase form), the Docker/Kubernetes secret layout.
type FileSecrets struct {
	Dir string
}

func (f FileSecrets) Get(key string) (string, bool) {
	if f.Dir == "" {
		return "", false
	}
	for _, name := range []string{key, strings.ToLower(key)} {
		if v, ok := readSecretFile(filepath.Join(f.Dir, name)); ok {
			return v, true
		}
	}
	return "", false
}

// FileRefSecrets follows <KEY>_FILE pointers.
type FileRefSecrets struct{}

func (FileRefSecrets) Get(key string) (string, bool) {
	path := strings.TrimSpace(os.Getenv(key + "_FILE"))
	if path == "" {
		return "", false
	}
	return readSecretFile(path)
}

// SecretChain returns the first value found, in order.
type SecretChain []SecretProvider

func (c SecretChain) Get(key string) (string, bool) {
	for _, p := range c {
		if v, ok := p.Get(key); ok {
			return v, true
		}
	}
	return "", false
}

func NewSecretChain() SecretChain {
	chain := SecretChain{FileRefSecrets{}, FileSecrets{Dir: "/run/secrets"}}
	if dir := mustEnv("SECRETS_PATH", ""); dir != "" {
		chain = append(chain, FileSecrets{Dir: dir})
	}
	return append(chain, EnvSecrets{})
}

func readSecretFile(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(raw))
	return v, v != ""
}
