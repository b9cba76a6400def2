package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SPATIALDDS_NATS_URL", "SERVICE_NAME", "SPATIALDDS_DOMAIN",
	"SPATIALDDS_SERVICE_ID", "SPATIALDDS_SERVICE_KIND", "SPATIALDDS_COVERAGE_BBOX",
	"SPATIALDDS_MANIFEST_TTL", "SPATIALDDS_ALLOW_HTTPS", "SPATIALDDS_MANIFEST_URIS",
	"SPATIALDDS_MANIFEST_FILES", "SPATIALDDS_ANNOUNCE_TTL", "SPATIALDDS_CATALOG_SEED",
	"SPATIALDDS_DISCOVER_TIMEOUT", "SPATIALDDS_LOCALIZE_TIMEOUT", "SPATIALDDS_CATALOG_TIMEOUT",
	"SPATIALDDS_HTTP_ADDR", "SPATIALDDS_HTTP_PORT", "LOG_LEVEL",
}

func clearConfigEnv() {
	for _, env := range configEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.NatsURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - NatsURL = %q, want %q", cfg.NatsURL, "nats://127.0.0.1:4222")
	}
	if cfg.ServiceName != "spatialdds" {
		t.Errorf("config:config_test - ServiceName = %q, want %q", cfg.ServiceName, "spatialdds")
	}
	if cfg.Domain != 0 {
		t.Errorf("config:config_test - Domain = %d, want 0", cfg.Domain)
	}
	if cfg.ServiceID != "vps-service" {
		t.Errorf("config:config_test - ServiceID = %q, want %q", cfg.ServiceID, "vps-service")
	}
	if cfg.ManifestTTL != 300 {
		t.Errorf("config:config_test - ManifestTTL = %d, want 300", cfg.ManifestTTL)
	}
	if cfg.AllowHTTPS {
		t.Error("config:config_test - expected AllowHTTPS=false by default")
	}
	if cfg.AnnounceTTL != 300 {
		t.Errorf("config:config_test - AnnounceTTL = %d, want 300", cfg.AnnounceTTL)
	}
	if cfg.DiscoverTimeout != 5*time.Second {
		t.Errorf("config:config_test - DiscoverTimeout = %v, want 5s", cfg.DiscoverTimeout)
	}
	if cfg.LocalizeTimeout != 10*time.Second {
		t.Errorf("config:config_test - LocalizeTimeout = %v, want 10s", cfg.LocalizeTimeout)
	}
	if cfg.CatalogTimeout != 6*time.Second {
		t.Errorf("config:config_test - CatalogTimeout = %v, want 6s", cfg.CatalogTimeout)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}

	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults failed ValidateForServe: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	overrides := map[string]string{
		"SPATIALDDS_NATS_URL":         "nats://custom:4222",
		"SERVICE_NAME":                "test-spatialdds",
		"SPATIALDDS_DOMAIN":           "3",
		"SPATIALDDS_SERVICE_ID":       "vps-custom",
		"SPATIALDDS_COVERAGE_BBOX":    "-1.0,-1.0,1.0,1.0",
		"SPATIALDDS_MANIFEST_TTL":     "60",
		"SPATIALDDS_ALLOW_HTTPS":      "true",
		"SPATIALDDS_MANIFEST_URIS":    "spatialdds://a/zone:z/manifest:m1,spatialdds://a/zone:z/manifest:m2",
		"SPATIALDDS_MANIFEST_FILES":   "spatialdds://a/zone:z/manifest:m1=/tmp/m1.json",
		"SPATIALDDS_DISCOVER_TIMEOUT": "2s",
		"SPATIALDDS_HTTP_PORT":        "9090",
		"LOG_LEVEL":                   "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearConfigEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.NatsURL != "nats://custom:4222" {
		t.Errorf("config:config_test - NatsURL = %q", cfg.NatsURL)
	}
	if cfg.Domain != 3 {
		t.Errorf("config:config_test - Domain = %d, want 3", cfg.Domain)
	}
	if cfg.ServiceID != "vps-custom" {
		t.Errorf("config:config_test - ServiceID = %q", cfg.ServiceID)
	}
	if !cfg.AllowHTTPS {
		t.Error("config:config_test - expected AllowHTTPS=true")
	}
	if cfg.ManifestTTL != 60 {
		t.Errorf("config:config_test - ManifestTTL = %d, want 60", cfg.ManifestTTL)
	}
	if cfg.DiscoverTimeout != 2*time.Second {
		t.Errorf("config:config_test - DiscoverTimeout = %v, want 2s", cfg.DiscoverTimeout)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d, want 9090", cfg.HTTPPort)
	}

	uris := cfg.ManifestURIList()
	if len(uris) != 2 {
		t.Fatalf("config:config_test - ManifestURIList = %v, want 2 entries", uris)
	}
	table := cfg.ManifestTable()
	if table["spatialdds://a/zone:z/manifest:m1"] != "/tmp/m1.json" {
		t.Errorf("config:config_test - ManifestTable = %v", table)
	}

	bbox, err := cfg.ParseCoverageBbox()
	if err != nil {
		t.Fatalf("config:config_test - ParseCoverageBbox failed: %v", err)
	}
	if bbox != [4]float64{-1, -1, 1, 1} {
		t.Errorf("config:config_test - bbox = %v", bbox)
	}
}

func TestValidateForServe_Rejections(t *testing.T) {
	clearConfigEnv()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty nats url", func(c *Config) { c.NatsURL = "" }},
		{"negative domain", func(c *Config) { c.Domain = -1 }},
		{"empty service id", func(c *Config) { c.ServiceID = "" }},
		{"zero manifest ttl", func(c *Config) { c.ManifestTTL = 0 }},
		{"zero announce ttl", func(c *Config) { c.AnnounceTTL = 0 }},
		{"zero timeout", func(c *Config) { c.DiscoverTimeout = 0 }},
		{"malformed bbox", func(c *Config) { c.CoverageBbox = "1,2,3" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("config:config_test - LoadConfig failed: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.ValidateForServe(); err == nil {
				t.Errorf("config:config_test - ValidateForServe accepted %s", tc.name)
			}
		})
	}
}

func TestHTTPListenAddr(t *testing.T) {
	cfg := &Config{HTTPPort: 8080}
	if got := cfg.HTTPListenAddr(); got != ":8080" {
		t.Errorf("config:config_test - HTTPListenAddr = %q, want :8080", got)
	}
	cfg.HTTPAddr = "0.0.0.0:9999"
	if got := cfg.HTTPListenAddr(); got != "0.0.0.0:9999" {
		t.Errorf("config:config_test - HTTPListenAddr = %q, want 0.0.0.0:9999", got)
	}
}
