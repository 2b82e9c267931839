package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Webhook       WebhookConfig
	Pool          PoolConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path string
}

type WebhookConfig struct {
	// Secret is the shared secret for the default tenant.
	Secret string
	// TenantSecrets maps tenant name to shared secret, parsed from
	// PAYHOOK_WEBHOOK_SECRETS ("acme=s1,bluegrass=s2").
	TenantSecrets map[string]string
	// ToleranceS bounds the signature timestamp replay window in seconds.
	ToleranceS int
}

type PoolConfig struct {
	MinConns         int
	MaxConns         int
	AcquireTimeoutMS int
	IdleTimeoutMS    int
	HealthIntervalMS int
}

type BillingConfig struct {
	APIKey    string
	APIBase   string
	TimeoutMS int
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
}

func Load() (Config, error) {
	return load(true)
}

// LoadForTool loads config for CLI tools that do not require a webhook secret.
func LoadForTool() (Config, error) {
	return load(false)
}

func load(requireSecret bool) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("payhook_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("payhook_port", 8080)
	v.SetDefault("payhook_db_path", "data/payhook")
	v.SetDefault("payhook_webhook_secret", "")
	v.SetDefault("payhook_webhook_secrets", "")
	v.SetDefault("payhook_signature_tolerance_s", 300)
	v.SetDefault("payhook_pool_min_conns", 2)
	v.SetDefault("payhook_pool_max_conns", 10)
	v.SetDefault("payhook_pool_acquire_timeout_ms", 5000)
	v.SetDefault("payhook_pool_idle_timeout_ms", 60000)
	v.SetDefault("payhook_pool_health_interval_ms", 30000)
	v.SetDefault("stripe_api_key", "")
	v.SetDefault("stripe_api_base", "https://api.stripe.com")
	v.SetDefault("payhook_api_timeout_ms", 10000)
	v.SetDefault("payhook_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "payhook")
	v.SetDefault("payhook_service_name", "payhook")
	v.SetDefault("payhook_version", "dev")
	v.SetDefault("payhook_otel_sampling_ratio", 1.0)
	v.SetDefault("payhook_otel_metrics_console", false)

	env := resolveEnvironment(v)
	port := v.GetInt("payhook_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid PAYHOOK_PORT: %d", port)
	}

	tolerance := v.GetInt("payhook_signature_tolerance_s")
	if tolerance <= 0 {
		tolerance = 300
	}
	if tolerance > 3600 {
		tolerance = 3600
	}

	minConns := v.GetInt("payhook_pool_min_conns")
	if minConns < 0 {
		minConns = 0
	}
	maxConns := v.GetInt("payhook_pool_max_conns")
	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns > maxConns {
		minConns = maxConns
	}

	acquireTimeout := clampMS(v.GetInt("payhook_pool_acquire_timeout_ms"), 5000, 60000)
	idleTimeout := clampMS(v.GetInt("payhook_pool_idle_timeout_ms"), 60000, 3600000)
	healthInterval := clampMS(v.GetInt("payhook_pool_health_interval_ms"), 30000, 600000)
	apiTimeout := clampMS(v.GetInt("payhook_api_timeout_ms"), 10000, 120000)

	samplingRatio := v.GetFloat64("payhook_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = strings.TrimSpace(v.GetString("payhook_service_name"))
	}
	if serviceName == "" {
		serviceName = "payhook"
	}

	serviceVersion := strings.TrimSpace(v.GetString("payhook_version"))
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseHeaderList(v.GetString("otel_exporter_otlp_headers"))
	otlpTraceHeaders := parseHeaderList(v.GetString("otel_exporter_otlp_traces_headers"))
	otlpMetricHeaders := parseHeaderList(v.GetString("otel_exporter_otlp_metrics_headers"))
	metricsConsole := v.GetBool("payhook_otel_metrics_console")
	otelEnabled := v.GetBool("payhook_otel_enabled") || otlpEndpoint != "" || metricsConsole

	cfg := Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Database: DatabaseConfig{
			Path: strings.TrimSpace(v.GetString("payhook_db_path")),
		},
		Webhook: WebhookConfig{
			Secret:        strings.TrimSpace(v.GetString("payhook_webhook_secret")),
			TenantSecrets: parseTenantSecrets(v.GetString("payhook_webhook_secrets")),
			ToleranceS:    tolerance,
		},
		Pool: PoolConfig{
			MinConns:         minConns,
			MaxConns:         maxConns,
			AcquireTimeoutMS: acquireTimeout,
			IdleTimeoutMS:    idleTimeout,
			HealthIntervalMS: healthInterval,
		},
		Billing: BillingConfig{
			APIKey:    strings.TrimSpace(v.GetString("stripe_api_key")),
			APIBase:   strings.TrimRight(strings.TrimSpace(v.GetString("stripe_api_base")), "/"),
			TimeoutMS: apiTimeout,
		},
		Observability: ObservabilityConfig{
			Enabled:           otelEnabled,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  mergeHeaderMaps(otlpCommonHeaders, otlpTraceHeaders),
			OTLPMetricHeaders: mergeHeaderMaps(otlpCommonHeaders, otlpMetricHeaders),
			ServiceName:       serviceName,
			ServiceVer:        serviceVersion,
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/payhook"
	}
	if requireSecret && !cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "" && len(cfg.Webhook.TenantSecrets) == 0 {
		return Config{}, fmt.Errorf("PAYHOOK_WEBHOOK_SECRET is required outside local/dev environments")
	}
	if cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = "payhook-local-dev"
	}

	return cfg, nil
}

func clampMS(value, fallback, ceiling int) int {
	if value <= 0 {
		return fallback
	}
	if value > ceiling {
		return ceiling
	}
	return value
}

// SecretForTenant resolves the shared secret for one tenant. An empty tenant
// name means the default tenant.
func (c WebhookConfig) SecretForTenant(tenant string) (string, bool) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" || tenant == "default" {
		if c.Secret == "" {
			return "", false
		}
		return c.Secret, true
	}
	secret, ok := c.TenantSecrets[tenant]
	return secret, ok && secret != ""
}

func (c WebhookConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceS) * time.Second
}

func (c PoolConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

func (c PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

func (c PoolConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalMS) * time.Millisecond
}

func (c BillingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func parseTenantSecrets(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tenant, secret, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		tenant = strings.TrimSpace(tenant)
		secret = strings.TrimSpace(secret)
		if tenant == "" || secret == "" {
			continue
		}
		out[tenant] = secret
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseHeaderList(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"payhook_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
