// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds spatialdds service configuration.
type Config struct {
	// NATS transport.
	NatsURL     string `envconfig:"SPATIALDDS_NATS_URL" default:"nats://127.0.0.1:4222"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"spatialdds"`
	// Domain is the transport domain identifier; instances in different
	// domains never see each other's traffic.
	Domain int `envconfig:"SPATIALDDS_DOMAIN" default:"0"`

	// Service identity and coverage.
	ServiceID   string `envconfig:"SPATIALDDS_SERVICE_ID" default:"vps-service"`
	ServiceKind string `envconfig:"SPATIALDDS_SERVICE_KIND" default:"vps"`
	// CoverageBbox is "west,south,east,north" in degrees.
	CoverageBbox string `envconfig:"SPATIALDDS_COVERAGE_BBOX" default:"-122.52,37.70,-122.35,37.85"`

	// Manifest resolution.
	ManifestTTL  int64  `envconfig:"SPATIALDDS_MANIFEST_TTL" default:"300"`
	AllowHTTPS   bool   `envconfig:"SPATIALDDS_ALLOW_HTTPS" default:"false"`
	ManifestURIs string `envconfig:"SPATIALDDS_MANIFEST_URIS"`
	// ManifestFiles backs local spatialdds:// manifest resolution; entries
	// are "<uri>=<path>" pairs separated by commas.
	ManifestFiles string `envconfig:"SPATIALDDS_MANIFEST_FILES"`

	// Announce.
	AnnounceTTL int64 `envconfig:"SPATIALDDS_ANNOUNCE_TTL" default:"300"`

	// Catalog seed file (JSON array of entries); empty disables the catalog.
	CatalogSeed string `envconfig:"SPATIALDDS_CATALOG_SEED"`

	// Timeouts per exchange.
	DiscoverTimeout time.Duration `envconfig:"SPATIALDDS_DISCOVER_TIMEOUT" default:"5s"`
	LocalizeTimeout time.Duration `envconfig:"SPATIALDDS_LOCALIZE_TIMEOUT" default:"10s"`
	CatalogTimeout  time.Duration `envconfig:"SPATIALDDS_CATALOG_TIMEOUT" default:"6s"`

	// HTTP bridge (SPATIALDDS_HTTP_ADDR preferred, e.g. "0.0.0.0:8080").
	HTTPAddr string `envconfig:"SPATIALDDS_HTTP_ADDR"`
	HTTPPort int    `envconfig:"SPATIALDDS_HTTP_PORT" default:"8080"`

	// Logging.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the service.
func (c *Config) ValidateForServe() error {
	if c.NatsURL == "" {
		return fmt.Errorf("%s - SPATIALDDS_NATS_URL is required for serve", logPrefix)
	}
	if c.Domain < 0 {
		return fmt.Errorf("%s - SPATIALDDS_DOMAIN must be non-negative", logPrefix)
	}
	if c.ServiceID == "" {
		return fmt.Errorf("%s - SPATIALDDS_SERVICE_ID is required", logPrefix)
	}
	if c.ManifestTTL <= 0 {
		return fmt.Errorf("%s - SPATIALDDS_MANIFEST_TTL must be positive", logPrefix)
	}
	if c.AnnounceTTL <= 0 {
		return fmt.Errorf("%s - SPATIALDDS_ANNOUNCE_TTL must be positive", logPrefix)
	}
	if c.DiscoverTimeout <= 0 || c.LocalizeTimeout <= 0 || c.CatalogTimeout <= 0 {
		return fmt.Errorf("%s - exchange timeouts must be positive", logPrefix)
	}
	if _, err := c.ParseCoverageBbox(); err != nil {
		return err
	}
	return nil
}

// ParseCoverageBbox parses the configured coverage bounding box.
func (c *Config) ParseCoverageBbox() ([4]float64, error) {
	parts := strings.Split(c.CoverageBbox, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("%s - SPATIALDDS_COVERAGE_BBOX must be west,south,east,north", logPrefix)
	}
	var bbox [4]float64
	for i, part := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &bbox[i]); err != nil {
			return [4]float64{}, fmt.Errorf("%s - SPATIALDDS_COVERAGE_BBOX component %d: %w", logPrefix, i, err)
		}
	}
	return bbox, nil
}

// HTTPListenAddr returns the bridge listen address, preferring
// SPATIALDDS_HTTP_ADDR over the port shorthand.
func (c *Config) HTTPListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ManifestURIList splits the comma-separated manifest URI setting.
func (c *Config) ManifestURIList() []string {
	return splitNonEmpty(c.ManifestURIs)
}

// ManifestTable parses the "<uri>=<path>" pairs backing local
// spatialdds:// manifest resolution.
func (c *Config) ManifestTable() map[string]string {
	table := map[string]string{}
	for _, pair := range splitNonEmpty(c.ManifestFiles) {
		uri, path, ok := strings.Cut(pair, "=")
		if ok && uri != "" {
			table[uri] = path
		}
	}
	return table
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
