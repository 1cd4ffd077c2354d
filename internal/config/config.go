// Package config loads the Darwin Core Archive downloader's configuration
// from layered sources: built-in defaults, an optional YAML file, and
// environment variables, in that order of increasing priority.
package config

import "time"

// INaturalistConfig configures the HTTP Client Facade and Rate Limiter.
type INaturalistConfig struct {
	BaseURL           string        `koanf:"base_url"`
	RateLimitInterval time.Duration `koanf:"rate_limit_interval"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// DownloadConfig configures what the orchestrator produces.
type DownloadConfig struct {
	// Extensions lists enabled DwC-A extensions: "multimedia", "audiovisual",
	// "identifications". Order does not affect archive layout.
	Extensions  []string `koanf:"extensions"`
	FetchPhotos bool     `koanf:"fetch_photos"`
	OutputPath  string   `koanf:"output_path"`
}

// EventBusConfig configures the optional progress event mirror.
type EventBusConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled    bool   `koanf:"enabled"`
	ListenAddr string `koanf:"listen_addr"`
}

// Config is the complete downloader configuration.
type Config struct {
	INaturalist INaturalistConfig `koanf:"inaturalist"`
	Download    DownloadConfig    `koanf:"download"`
	EventBus    EventBusConfig    `koanf:"eventbus"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// knownExtensions are the only DwC-A extensions this downloader supports.
var knownExtensions = map[string]bool{
	"multimedia":      true,
	"audiovisual":     true,
	"identifications": true,
}

// Validate checks the configuration for internally inconsistent or
// out-of-range values that would otherwise surface as confusing failures
// deep inside the pipeline.
func (c *Config) Validate() error {
	if c.INaturalist.BaseURL == "" {
		return &ValidationError{Field: "inaturalist.base_url", Reason: "must not be empty"}
	}
	if c.INaturalist.RateLimitInterval <= 0 {
		return &ValidationError{Field: "inaturalist.rate_limit_interval", Reason: "must be positive"}
	}
	if c.INaturalist.RequestTimeout <= 0 {
		return &ValidationError{Field: "inaturalist.request_timeout", Reason: "must be positive"}
	}
	if c.Download.OutputPath == "" {
		return &ValidationError{Field: "download.output_path", Reason: "must not be empty"}
	}
	for _, ext := range c.Download.Extensions {
		if !knownExtensions[ext] {
			return &ValidationError{Field: "download.extensions", Reason: "unknown extension: " + ext}
		}
	}
	if c.EventBus.Enabled && c.EventBus.NATSURL == "" {
		return &ValidationError{Field: "eventbus.nats_url", Reason: "must not be empty when eventbus.enabled is true"}
	}
	return nil
}

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}
