package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "WEBHOOKS_"

type daemonConfig struct {
	DBDriver      string
	DBDSN         string
	DBDebug       bool
	MetricsAddr   string
	SweepInterval time.Duration
	SweepLimit    int
	CacheTTL      time.Duration
	ShutdownGrace time.Duration
	// SecretKeys seal subscription secrets at rest. The first key seals new
	// values; the rest only open existing ones.
	SecretKeys []string
}

func loadDaemonConfig(lookup func(string) (string, bool)) (daemonConfig, error) {
	cfg := daemonConfig{
		DBDriver:      "sqlite3",
		DBDSN:         "file:webhooks.db?_foreign_keys=on",
		MetricsAddr:   ":9090",
		SweepInterval: 30 * time.Second,
		CacheTTL:      time.Minute,
		ShutdownGrace: 10 * time.Second,
	}
	if value, ok := lookupTrimmed(lookup, "DB_DRIVER"); ok {
		cfg.DBDriver = value
	}
	if value, ok := lookupTrimmed(lookup, "DB_DSN"); ok {
		cfg.DBDSN = value
	}
	if value, ok := lookupTrimmed(lookup, "METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}

	var err error
	if cfg.DBDebug, err = boolEnv(lookup, "DB_DEBUG", cfg.DBDebug); err != nil {
		return daemonConfig{}, err
	}
	if cfg.SweepInterval, err = durationEnv(lookup, "SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return daemonConfig{}, err
	}
	if cfg.CacheTTL, err = durationEnv(lookup, "CACHE_TTL", cfg.CacheTTL); err != nil {
		return daemonConfig{}, err
	}
	if cfg.ShutdownGrace, err = durationEnv(lookup, "SHUTDOWN_GRACE", cfg.ShutdownGrace); err != nil {
		return daemonConfig{}, err
	}
	if value, ok := lookupTrimmed(lookup, "SWEEP_LIMIT"); ok {
		limit, convErr := strconv.Atoi(value)
		if convErr != nil || limit < 0 {
			return daemonConfig{}, fmt.Errorf("webhooksd: invalid %sSWEEP_LIMIT %q", envPrefix, value)
		}
		cfg.SweepLimit = limit
	}
	if value, ok := lookupTrimmed(lookup, "SECRET_KEYS"); ok {
		for _, key := range strings.Split(value, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.SecretKeys = append(cfg.SecretKeys, key)
			}
		}
	}
	if cfg.SweepInterval <= 0 {
		return daemonConfig{}, fmt.Errorf("webhooksd: %sSWEEP_INTERVAL must be positive", envPrefix)
	}
	return cfg, nil
}

// envRawLoader exposes WEBHOOKS_SERVICE__* variables as the nested raw map
// the service config builder expects. A double underscore separates levels,
// so WEBHOOKS_SERVICE__DELIVERY__MAX_ATTEMPTS sets delivery.max_attempts.
type envRawLoader struct {
	environ func() []string
}

func (l envRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	environ := l.environ
	if environ == nil {
		environ = os.Environ
	}
	const servicePrefix = envPrefix + "SERVICE__"
	raw := map[string]any{}
	for _, entry := range environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, servicePrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, servicePrefix)), "__")
		if err := setPath(raw, path, parseScalar(value)); err != nil {
			return nil, fmt.Errorf("webhooksd: %s: %w", key, err)
		}
	}
	return raw, nil
}

func setPath(raw map[string]any, path []string, value any) error {
	node := raw
	for i, segment := range path {
		if segment == "" {
			return fmt.Errorf("empty path segment")
		}
		if i == len(path)-1 {
			if _, isSection := node[segment].(map[string]any); isSection {
				return fmt.Errorf("%q is both a value and a section", segment)
			}
			node[segment] = value
			return nil
		}
		next, ok := node[segment].(map[string]any)
		if !ok {
			if _, exists := node[segment]; exists {
				return fmt.Errorf("%q is both a value and a section", segment)
			}
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	return nil
}

// parseScalar keeps durations and text as strings and converts numbers and
// booleans to their typed values.
func parseScalar(value string) any {
	value = strings.TrimSpace(value)
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return value
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func durationEnv(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("webhooksd: invalid %s%s %q: %w", envPrefix, key, value, err)
	}
	return parsed, nil
}

func boolEnv(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("webhooksd: invalid %s%s %q: %w", envPrefix, key, value, err)
	}
	return parsed, nil
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-webhooks"
}
