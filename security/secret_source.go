package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret names the client builder resolves when config omits the
// value. Environment fallbacks use the PYLON_ prefix with the name upcased.
const (
	SecretAPIKey        = "api_key"
	SecretWebhookSecret = "webhook_secret"
)

const envPrefix = "PYLON_"

var ErrSecretNotFound = errors.New("security: secret not found")

// SecretSource resolves a named secret. Implementations return
// ErrSecretNotFound when the name is unknown so chains can fall through.
type SecretSource interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// StaticSecretSource serves secrets from an in-memory map. Values are
// trimmed; empty values resolve as missing.
type StaticSecretSource struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewStaticSecretSource(secrets map[string]string) *StaticSecretSource {
	source := &StaticSecretSource{secrets: map[string]string{}}
	for name, value := range secrets {
		source.Set(name, value)
	}
	return source
}

func (s *StaticSecretSource) Set(name, value string) {
	if s == nil {
		return
	}
	name = normalizeSecretName(name)
	value = strings.TrimSpace(value)
	if name == "" || value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = map[string]string{}
	}
	s.secrets[name] = value
}

func (s *StaticSecretSource) Resolve(_ context.Context, name string) (string, error) {
	if s == nil {
		return "", ErrSecretNotFound
	}
	name = normalizeSecretName(name)
	if name == "" {
		return "", fmt.Errorf("security: secret name is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.secrets[name]
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// EnvSecretSource resolves secrets from the process environment:
// api_key -> PYLON_API_KEY. Lookup is injectable for tests.
type EnvSecretSource struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func NewEnvSecretSource() *EnvSecretSource {
	return &EnvSecretSource{Prefix: envPrefix, Lookup: os.LookupEnv}
}

func (s *EnvSecretSource) Resolve(_ context.Context, name string) (string, error) {
	if s == nil {
		return "", ErrSecretNotFound
	}
	name = normalizeSecretName(name)
	if name == "" {
		return "", fmt.Errorf("security: secret name is required")
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = envPrefix
	}
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(prefix + strings.ToUpper(name))
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// ChainSecretSource queries sources in order. A missing secret falls through
// to the next source; any other failure stops the chain.
type ChainSecretSource struct {
	sources []SecretSource
}

func NewChainSecretSource(sources ...SecretSource) *ChainSecretSource {
	chain := &ChainSecretSource{}
	for _, source := range sources {
		if source == nil {
			continue
		}
		chain.sources = append(chain.sources, source)
	}
	return chain
}

func (s *ChainSecretSource) Resolve(ctx context.Context, name string) (string, error) {
	if s == nil || len(s.sources) == 0 {
		return "", ErrSecretNotFound
	}
	for _, source := range s.sources {
		value, err := source.Resolve(ctx, name)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		return "", err
	}
	return "", ErrSecretNotFound
}

// DefaultSecretSource is what the client builder consults: explicit values
// first, then the process environment.
func DefaultSecretSource(static map[string]string) SecretSource {
	return NewChainSecretSource(NewStaticSecretSource(static), NewEnvSecretSource())
}

func normalizeSecretName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var (
	_ SecretSource = (*StaticSecretSource)(nil)
	_ SecretSource = (*EnvSecretSource)(nil)
	_ SecretSource = (*ChainSecretSource)(nil)
)
