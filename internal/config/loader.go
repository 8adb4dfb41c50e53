package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "queryhub.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config. Provider variables
// keep the names the original deployment used (METASO_*, SILICONFLOW_*, KB_*).
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "QUERYHUB_PORT")
	setString(&cfg.Server.CORSOrigin, "QUERYHUB_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "QUERYHUB_LOG_LEVEL")
	setString(&cfg.Logging.Service, "QUERYHUB_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "QUERYHUB_LOG_ASYNC")

	setString(&cfg.LLM.BaseURL, "SILICONFLOW_BASE_URL")
	setString(&cfg.LLM.APIKey, "SILICONFLOW_API_KEY")
	setString(&cfg.LLM.Model, "SILICONFLOW_MODEL")
	setString(&cfg.LLM.RouteModel, "QUERYHUB_ROUTE_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "SILICONFLOW_EMBEDDING_MODEL")
	setDuration(&cfg.LLM.Timeout, "QUERYHUB_LLM_TIMEOUT")

	setString(&cfg.Search.BaseURL, "METASO_BASE_URL")
	setString(&cfg.Search.APIKey, "METASO_API_KEY")
	setString(&cfg.Search.Scope, "QUERYHUB_SEARCH_SCOPE")
	setInt(&cfg.Search.Size, "SEARCH_SIZE_DEFAULT")
	setDuration(&cfg.Search.Timeout, "QUERYHUB_SEARCH_TIMEOUT")

	setString(&cfg.KB.Root, "KB_ROOT")
	setString(&cfg.KB.RouteKBID, "KB_ROUTE_KB_ID")
	setFloat64(&cfg.KB.RouteThreshold, "KB_ROUTE_THRESHOLD")
	setInt(&cfg.KB.TopK, "QUERYHUB_KB_TOP_K")

	setDuration(&cfg.Router.SuggestTimeout, "QUERYHUB_SUGGEST_TIMEOUT")

	setInt64(&cfg.Cache.MaxSizeMB, "QUERYHUB_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.SuggestionTTL, "QUERYHUB_SUGGESTION_TTL")

	setInt(&cfg.Breaker.MaxFailures, "QUERYHUB_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "QUERYHUB_BREAKER_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "QUERYHUB_PG_MAX_CONNS")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.KB.Root == "" {
		return errors.New("kb.root is required")
	}
	if cfg.KB.RouteThreshold < 0 || cfg.KB.RouteThreshold > 1 {
		return errors.New("kb.route_threshold must be in [0,1]")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
