// Package config provides hierarchical configuration loading for queryhub.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the queryhub service.
type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	LLM      LLM      `yaml:"llm"`
	Search   Search   `yaml:"search"`
	KB       KB       `yaml:"kb"`
	Router   Router   `yaml:"router"`
	Cache    Cache    `yaml:"cache"`
	Breaker  Breaker  `yaml:"breaker"`
	Postgres Postgres `yaml:"postgres"`
	Otel     Otel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// LLM holds the OpenAI-compatible chat/embeddings endpoint configuration.
type LLM struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`           // answer/rewrite/codegen model
	RouteModel     string        `yaml:"route_model"`     // routing suggestions; empty = Model
	EmbeddingModel string        `yaml:"embedding_model"` // retrieval index embeddings
	Timeout        time.Duration `yaml:"timeout"`
}

// Search holds the Metaso web search provider configuration.
type Search struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Scope   string        `yaml:"scope"`
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

// KB holds knowledge-base storage and routing-probe configuration.
type KB struct {
	Root           string  `yaml:"root"`            // per-KB directories live under here
	RouteKBID      string  `yaml:"route_kb_id"`     // knowledge base probed during routing
	RouteThreshold float64 `yaml:"route_threshold"` // probe score for a "strong" KB signal
	TopK           int     `yaml:"top_k"`
}

// Router holds decision-merger tunables.
type Router struct {
	SuggestTimeout time.Duration `yaml:"suggest_timeout"`
}

// Cache holds suggestion-cache configuration.
type Cache struct {
	MaxSizeMB     int64         `yaml:"max_size_mb"`
	SuggestionTTL time.Duration `yaml:"suggestion_ttl"`
}

// Breaker holds circuit breaker configuration for outbound HTTP.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Postgres holds the optional decision-log database configuration.
// An empty DSN disables decision logging.
type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// Otel holds OpenTelemetry export configuration. An empty endpoint disables export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8000",
			CORSOrigin: "*",
		},
		Logging: Logging{
			Level:   "info",
			Service: "queryhub",
		},
		LLM: LLM{
			BaseURL:        "https://api.siliconflow.cn/v1",
			Model:          "Qwen/Qwen2-7B-Instruct",
			EmbeddingModel: "BAAI/bge-m3",
			Timeout:        30 * time.Second,
		},
		Search: Search{
			BaseURL: "https://metaso.cn",
			Scope:   "webpage",
			Size:    5,
			Timeout: 12 * time.Second,
		},
		KB: KB{
			Root:           "data/kb",
			RouteKBID:      "default",
			RouteThreshold: 0.35,
			TopK:           5,
		},
		Router: Router{
			SuggestTimeout: 10 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB:     32,
			SuggestionTTL: 5 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Postgres: Postgres{
			MaxConns: 5,
		},
	}
}
