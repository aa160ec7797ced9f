package main

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDaemonConfig_DefaultsAndOverrides(t *testing.T) {
	cfg, err := loadDaemonConfig(mapLookup(nil))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.DBDriver != "sqlite3" || cfg.SweepInterval != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg, err = loadDaemonConfig(mapLookup(map[string]string{
		"WEBHOOKS_DB_DRIVER":      "postgres",
		"WEBHOOKS_DB_DSN":         "postgres://localhost/webhooks?sslmode=disable",
		"WEBHOOKS_SWEEP_INTERVAL": "5s",
		"WEBHOOKS_SWEEP_LIMIT":    "25",
		"WEBHOOKS_DB_DEBUG":       "true",
	}))
	if err != nil {
		t.Fatalf("load overrides: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.SweepInterval != 5*time.Second || cfg.SweepLimit != 25 || !cfg.DBDebug {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadDaemonConfig_SecretKeysBuildKeyring(t *testing.T) {
	cfg, err := loadDaemonConfig(mapLookup(map[string]string{
		"WEBHOOKS_SECRET_KEYS": "new-key, ,old-key",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.SecretKeys) != 2 || cfg.SecretKeys[0] != "new-key" || cfg.SecretKeys[1] != "old-key" {
		t.Fatalf("expected two secret keys, got %v", cfg.SecretKeys)
	}

	old, err := newSecretKeyring([]string{"old-key"})
	if err != nil {
		t.Fatalf("old keyring: %v", err)
	}
	sealed, err := old.Encrypt(context.Background(), []byte("whsec_value"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ring, err := newSecretKeyring(cfg.SecretKeys)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	opened, err := ring.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt with rotated keyring: %v", err)
	}
	if string(opened) != "whsec_value" {
		t.Fatalf("expected whsec_value, got %q", opened)
	}
}

func TestLoadDaemonConfig_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"duration": {"WEBHOOKS_SWEEP_INTERVAL": "soon"},
		"zero":     {"WEBHOOKS_SWEEP_INTERVAL": "0s"},
		"limit":    {"WEBHOOKS_SWEEP_LIMIT": "-1"},
		"bool":     {"WEBHOOKS_DB_DEBUG": "maybe"},
	}
	for name, env := range cases {
		if _, err := loadDaemonConfig(mapLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnvRawLoader_BuildsNestedServiceConfig(t *testing.T) {
	loader := envRawLoader{environ: func() []string {
		return []string{
			"WEBHOOKS_SERVICE__SERVICE_NAME=marketplace",
			"WEBHOOKS_SERVICE__DELIVERY__MAX_ATTEMPTS=3",
			"WEBHOOKS_SERVICE__DELIVERY__USER_AGENT=market/2.0",
			"WEBHOOKS_DB_DSN=ignored",
			"PATH=/usr/bin",
		}
	}}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if raw["service_name"] != "marketplace" {
		t.Fatalf("expected service_name, got %#v", raw)
	}
	delivery, ok := raw["delivery"].(map[string]any)
	if !ok {
		t.Fatalf("expected delivery section, got %#v", raw["delivery"])
	}
	if delivery["max_attempts"] != 3 || delivery["user_agent"] != "market/2.0" {
		t.Fatalf("unexpected delivery section: %#v", delivery)
	}
	if len(raw) != 2 {
		t.Fatalf("expected only service keys, got %#v", raw)
	}

	svc, err := core.NewService(core.Config{}, core.WithConfigProvider(core.NewCfgxConfigProvider(loader)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.Config().Delivery.MaxAttempts; got != 3 {
		t.Fatalf("expected max attempts 3, got %d", got)
	}
}

func TestEnvRawLoader_RejectsConflictingPaths(t *testing.T) {
	loader := envRawLoader{environ: func() []string {
		return []string{
			"WEBHOOKS_SERVICE__DELIVERY=flat",
			"WEBHOOKS_SERVICE__DELIVERY__TIMEOUT=5s",
		}
	}}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected conflicting path error")
	}
}
