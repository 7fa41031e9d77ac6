package security

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStaticSecretSource_ResolvesTrimmedValues(t *testing.T) {
	source := NewStaticSecretSource(map[string]string{
		" API_KEY ": "  sk_live_123  ",
		"empty":     "   ",
	})

	value, err := source.Resolve(context.Background(), "api_key")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if value != "sk_live_123" {
		t.Fatalf("Resolve() = %q, want sk_live_123", value)
	}

	if _, err := source.Resolve(context.Background(), "empty"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected blank value to resolve as missing, got %v", err)
	}
	if _, err := source.Resolve(context.Background(), "unknown"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected unknown name to resolve as missing, got %v", err)
	}
}

func TestEnvSecretSource_MapsNameToPrefixedVariable(t *testing.T) {
	env := map[string]string{
		"PYLON_API_KEY":        "sk_env_456",
		"PYLON_WEBHOOK_SECRET": " whsec_env ",
	}
	source := &EnvSecretSource{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}

	value, err := source.Resolve(context.Background(), SecretAPIKey)
	if err != nil {
		t.Fatalf("Resolve(api_key) error = %v", err)
	}
	if value != "sk_env_456" {
		t.Fatalf("Resolve(api_key) = %q, want sk_env_456", value)
	}

	value, err = source.Resolve(context.Background(), SecretWebhookSecret)
	if err != nil {
		t.Fatalf("Resolve(webhook_secret) error = %v", err)
	}
	if value != "whsec_env" {
		t.Fatalf("Resolve(webhook_secret) = %q, want trimmed whsec_env", value)
	}

	if _, err := source.Resolve(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected missing variable to resolve as missing, got %v", err)
	}
}

func TestChainSecretSource_FirstHitWinsAndMissFallsThrough(t *testing.T) {
	primary := NewStaticSecretSource(map[string]string{"api_key": "from_static"})
	fallback := &EnvSecretSource{Lookup: func(key string) (string, bool) {
		if key == "PYLON_API_KEY" {
			return "from_env", true
		}
		if key == "PYLON_WEBHOOK_SECRET" {
			return "whsec_from_env", true
		}
		return "", false
	}}
	chain := NewChainSecretSource(nil, primary, fallback)

	value, err := chain.Resolve(context.Background(), "api_key")
	if err != nil {
		t.Fatalf("Resolve(api_key) error = %v", err)
	}
	if value != "from_static" {
		t.Fatalf("expected static source to win, got %q", value)
	}

	value, err = chain.Resolve(context.Background(), "webhook_secret")
	if err != nil {
		t.Fatalf("Resolve(webhook_secret) error = %v", err)
	}
	if value != "whsec_from_env" {
		t.Fatalf("expected env fallback, got %q", value)
	}

	if _, err := chain.Resolve(context.Background(), "unknown"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected chain miss, got %v", err)
	}
}

func TestChainSecretSource_StopsOnHardFailure(t *testing.T) {
	boom := fmt.Errorf("security: backend unavailable")
	failing := secretSourceFunc(func(context.Context, string) (string, error) {
		return "", boom
	})
	fallback := NewStaticSecretSource(map[string]string{"api_key": "unreachable"})
	chain := NewChainSecretSource(failing, fallback)

	_, err := chain.Resolve(context.Background(), "api_key")
	if !errors.Is(err, boom) {
		t.Fatalf("expected hard failure to stop the chain, got %v", err)
	}
}

type secretSourceFunc func(ctx context.Context, name string) (string, error)

func (f secretSourceFunc) Resolve(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}
