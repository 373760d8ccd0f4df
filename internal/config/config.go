// Package config provides the configuration schema, loader, and provider
// registry for the Arcsong episode director service.
package config

import "time"

// LogLevel controls log verbosity for the Arcsong server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SessionBackend selects where episode session state is persisted.
type SessionBackend string

const (
	// BackendMemory keeps sessions in process memory. Intended for
	// development and tests.
	BackendMemory SessionBackend = "memory"

	// BackendPostgres persists sessions in PostgreSQL.
	BackendPostgres SessionBackend = "postgres"

	// BackendRedis persists sessions in Redis with a TTL.
	BackendRedis SessionBackend = "redis"
)

// IsValid reports whether b is a recognised session backend.
func (b SessionBackend) IsValid() bool {
	switch b {
	case BackendMemory, BackendPostgres, BackendRedis:
		return true
	}
	return false
}

// Config is the root configuration structure for Arcsong.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Memory    MemoryConfig    `yaml:"memory"`
	Sparks    SparksConfig    `yaml:"sparks"`
	Episodes  EpisodesConfig  `yaml:"episodes"`
	Director  DirectorConfig  `yaml:"director"`
}

// ServerConfig holds network and logging settings for the Arcsong server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary model used for evaluation and director notes.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks lists additional models tried in order when the
	// primary fails. May be empty.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Embeddings is the model used to vectorize saved episode memories.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// SessionsConfig selects and configures the session state store.
type SessionsConfig struct {
	// Backend picks the store implementation. Defaults to "memory".
	Backend SessionBackend `yaml:"backend"`

	// PostgresDSN is the connection string used when Backend is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr is the host:port used when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`

	// RedisPassword authenticates against Redis. May be empty.
	RedisPassword string `yaml:"redis_password"`

	// RedisTTL is how long idle sessions live in Redis. Zero means the
	// store default of 24 hours.
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// MemoryConfig holds settings for the long-term episode memory layer.
type MemoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// memory store. Empty disables persistent memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension used for the embeddings
	// column. Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// SparksConfig configures the spark balance ledger.
type SparksConfig struct {
	// PostgresDSN is the connection string for the persistent ledger.
	// Empty selects an in-memory ledger where every user starts at zero,
	// so paid visuals are denied until balances are granted.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EpisodesConfig points at the episode template catalog.
type EpisodesConfig struct {
	// CatalogPath is the YAML file holding episode templates.
	CatalogPath string `yaml:"catalog_path"`
}

// DirectorConfig tunes the director's model call budgets.
type DirectorConfig struct {
	// EvaluationTimeout bounds the turn evaluation model call.
	// Zero means 20 seconds.
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`

	// TensionNoteTimeout bounds the optional tension note model call.
	// Zero means 3 seconds.
	TensionNoteTimeout time.Duration `yaml:"tension_note_timeout"`
}
