package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in priority order. The first one found is used.
var DefaultConfigPaths = []string{
	"dwca-download.yaml",
	"dwca-download.yml",
	"/etc/dwca-download/config.yaml",
}

// ConfigPathEnvVar overrides DefaultConfigPaths with an explicit file.
const ConfigPathEnvVar = "DWCA_CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		INaturalist: INaturalistConfig{
			BaseURL:           "https://api.inaturalist.org/v1",
			RateLimitInterval: 1100 * time.Millisecond,
			RequestTimeout:    30 * time.Second,
		},
		Download: DownloadConfig{
			Extensions:  nil,
			FetchPhotos: false,
			OutputPath:  "observations.zip",
		},
		EventBus: EventBusConfig{
			Enabled: false,
			Subject: "dwca.download.progress",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

// Load builds a Config by layering, in increasing priority:
//
//  1. Defaults (defaultConfig)
//  2. An optional YAML file (DWCA_CONFIG_PATH, else DefaultConfigPaths)
//  3. Environment variables (DWCA_INATURALIST_BASE_URL, DWCA_DOWNLOAD_EXTENSIONS, ...)
//
// The assembled configuration is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("DWCA_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists koanf paths that env.Provider delivers as a single
// comma-separated string but which unmarshal into a []string field.
var sliceConfigPaths = []string{
	"download.extensions",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc converts DWCA_INATURALIST_BASE_URL to inaturalist.base_url.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, "DWCA_")
	key = strings.ToLower(key)
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	section, rest := parts[0], parts[1]
	switch section {
	case "inaturalist", "download", "eventbus", "logging", "metrics":
		return section + "." + rest
	default:
		return strings.ReplaceAll(key, "_", ".")
	}
}
