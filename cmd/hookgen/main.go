// hookgen fires signed synthetic billing events at a running payhook
// instance. Useful for local pipeline and load testing without a provider
// account.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	webhookbilling "github.com/greenquote/payhook/internal/webhooks/billing"
)

var defaultTypes = []string{
	"customer.subscription.created",
	"customer.subscription.updated",
	"invoice.paid",
	"invoice.payment_failed",
	"payment_method.attached",
	"product.created",
	"price.created",
	"customer.created",
	"charge.refunded",
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	once := flag.Bool("once", false, "send a single event and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if *once {
		if err := sendEvent(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "event error:", err)
			os.Exit(1)
		}
		return
	}

	interval, _ := time.ParseDuration(cfg.Interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sendEvent(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "event error:", err)
		}
		<-ticker.C
	}
}

func loadConfig(path string) (config, error) {
	if strings.TrimSpace(path) == "" {
		return config{}, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Tenant = strings.TrimSpace(cfg.Tenant)
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if cfg.BaseURL == "" || cfg.Secret == "" {
		return config{}, fmt.Errorf("config must include base_url and secret")
	}
	if cfg.Interval == "" {
		cfg.Interval = "5s"
	}
	parsed, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return config{}, fmt.Errorf("invalid interval duration: %w", err)
	}
	if parsed <= 0 {
		return config{}, fmt.Errorf("interval must be positive")
	}
	if len(cfg.Types) == 0 {
		cfg.Types = defaultTypes
	}
	return cfg, nil
}

func sendEvent(client *http.Client, cfg config) error {
	eventType, err := pickType(cfg.Types)
	if err != nil {
		return err
	}
	body, err := buildEvent(eventType)
	if err != nil {
		return fmt.Errorf("failed to build event: %w", err)
	}

	target := strings.TrimRight(cfg.BaseURL, "/") + "/webhooks/stripe"
	if cfg.Tenant != "" {
		target += "/" + cfg.Tenant
	}
	request, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(webhookbilling.SignatureHeader, webhookbilling.Sign(cfg.Secret, time.Now(), body))

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("delivery failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	fmt.Printf("%s %s -> %s\n", eventType, resp.Status, strings.TrimSpace(string(payload)))
	return nil
}

func pickType(types []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(types))))
	if err != nil {
		return "", err
	}
	return types[n.Int64()], nil
}

func buildEvent(eventType string) ([]byte, error) {
	suffix, err := randomID(12)
	if err != nil {
		return nil, err
	}

	var object map[string]any
	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		object = map[string]any{
			"id":                   "sub_" + suffix,
			"customer":             "cus_" + suffix,
			"status":               "active",
			"current_period_end":   time.Now().Add(30 * 24 * time.Hour).Unix(),
			"cancel_at_period_end": false,
			"items": map[string]any{
				"data": []map[string]any{{"price": map[string]any{"id": "price_" + suffix}}},
			},
		}
	case strings.HasPrefix(eventType, "invoice."):
		object = map[string]any{
			"id":           "in_" + suffix,
			"customer":     "cus_" + suffix,
			"subscription": "sub_" + suffix,
			"amount_paid":  4900,
			"amount_due":   4900,
			"currency":     "usd",
		}
		if eventType == "invoice.payment_failed" {
			object["last_payment_error"] = map[string]any{"message": "card declined"}
		}
	case strings.HasPrefix(eventType, "payment_method."):
		object = map[string]any{
			"id":       "pm_" + suffix,
			"customer": "cus_" + suffix,
			"type":     "card",
			"card":     map[string]any{"brand": "visa", "last4": "4242"},
		}
	case strings.HasPrefix(eventType, "product."):
		object = map[string]any{"id": "prod_" + suffix, "name": "Weekly Mow", "active": true}
	case strings.HasPrefix(eventType, "price."):
		object = map[string]any{
			"id":          "price_" + suffix,
			"product":     "prod_" + suffix,
			"unit_amount": 4900,
			"currency":    "usd",
			"active":      true,
			"recurring":   map[string]any{"interval": "month"},
		}
	case strings.HasPrefix(eventType, "customer."):
		object = map[string]any{
			"id":    "cus_" + suffix,
			"email": fmt.Sprintf("lawn+%s@greenquote.test", suffix),
			"name":  "Synthetic Customer",
		}
	default:
		object = map[string]any{"id": "obj_" + suffix}
	}

	return json.Marshal(map[string]any{
		"id":      "evt_" + suffix,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
}

func randomID(length int) (string, error) {
	raw := make([]byte, (length+1)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw)[:length], nil
}
