package config

import "testing"

func TestLoadDefaultsForLocalDevelopment(t *testing.T) {
	t.Setenv("PAYHOOK_ENV", "dev")
	t.Setenv("PAYHOOK_WEBHOOK_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.Secret != "payhook-local-dev" {
		t.Fatalf("expected local fallback secret, got %q", cfg.Webhook.Secret)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Pool.MaxConns != 10 {
		t.Fatalf("expected default pool max 10, got %d", cfg.Pool.MaxConns)
	}
}

func TestLoadRequiresWebhookSecretOutsideLocal(t *testing.T) {
	t.Setenv("PAYHOOK_ENV", "production")
	t.Setenv("PAYHOOK_WEBHOOK_SECRET", "")
	t.Setenv("PAYHOOK_WEBHOOK_SECRETS", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing webhook secret in production")
	}
}

func TestLoadForToolAllowsMissingSecretOutsideLocal(t *testing.T) {
	t.Setenv("PAYHOOK_ENV", "production")
	t.Setenv("PAYHOOK_WEBHOOK_SECRET", "")

	cfg, err := LoadForTool()
	if err != nil {
		t.Fatalf("expected no error for tool config load, got %v", err)
	}
	if cfg.Webhook.Secret != "" {
		t.Fatalf("expected empty webhook secret for tool load, got %q", cfg.Webhook.Secret)
	}
}

func TestLoadParsesTenantSecrets(t *testing.T) {
	t.Setenv("PAYHOOK_ENV", "dev")
	t.Setenv("PAYHOOK_WEBHOOK_SECRETS", "acme=whsec_a, bluegrass=whsec_b ,broken")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := len(cfg.Webhook.TenantSecrets); got != 2 {
		t.Fatalf("expected 2 tenant secrets, got %d (%#v)", got, cfg.Webhook.TenantSecrets)
	}
	secret, ok := cfg.Webhook.SecretForTenant("bluegrass")
	if !ok || secret != "whsec_b" {
		t.Fatalf("unexpected tenant secret: ok=%v secret=%q", ok, secret)
	}
	if _, ok := cfg.Webhook.SecretForTenant("unknown"); ok {
		t.Fatal("expected no secret for unknown tenant")
	}
	if secret, ok := cfg.Webhook.SecretForTenant(""); !ok || secret != "payhook-local-dev" {
		t.Fatalf("expected default tenant fallback secret, got ok=%v secret=%q", ok, secret)
	}
}

func TestLoadClampsPoolSizing(t *testing.T) {
	t.Setenv("PAYHOOK_ENV", "dev")
	t.Setenv("PAYHOOK_POOL_MIN_CONNS", "20")
	t.Setenv("PAYHOOK_POOL_MAX_CONNS", "4")
	t.Setenv("PAYHOOK_POOL_ACQUIRE_TIMEOUT_MS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Pool.MinConns != 4 {
		t.Fatalf("expected min clamped to max, got %d", cfg.Pool.MinConns)
	}
	if cfg.Pool.AcquireTimeoutMS != 5000 {
		t.Fatalf("expected acquire timeout fallback 5000, got %d", cfg.Pool.AcquireTimeoutMS)
	}
}
