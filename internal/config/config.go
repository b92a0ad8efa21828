package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the foliorag service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Search    SearchConfig    `yaml:"search"`
	Context   ContextConfig   `yaml:"context"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds datastore connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RateLimitConfig bounds upstream embedding calls over a rolling 60-second window.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 = unlimited
	TokensPerMinute   int `yaml:"tokens_per_minute"`   // 0 = unlimited
}

// EmbeddingConfig holds embedding provider and gateway settings.
type EmbeddingConfig struct {
	APIKey       string          `yaml:"api_key"`
	BaseURL      string          `yaml:"base_url"`
	Model        string          `yaml:"model"`
	Dimensions   int             `yaml:"dimensions"`
	MaxTokens    int             `yaml:"max_tokens"`    // input truncation budget
	ChunkSize    int             `yaml:"chunk_size"`    // characters per window for long text
	ChunkOverlap int             `yaml:"chunk_overlap"` // characters of window overlap
	Fallback     bool            `yaml:"fallback"`      // synthesize hash vectors on provider failure
	CacheTTLSec  int             `yaml:"cache_ttl_sec"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// ChatConfig holds the downstream completion model settings.
type ChatConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// SearchConfig holds fusion and ranking settings.
type SearchConfig struct {
	SemanticWeight     float64 `yaml:"semantic_weight"`
	KeywordWeight      float64 `yaml:"keyword_weight"`
	DiversityWeight    float64 `yaml:"diversity_weight"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	FallbackDiscount   float64 `yaml:"fallback_discount"` // scales similarity from fallback vectors
	MaxResults         int     `yaml:"max_results"`
	ResultCacheTTLSec  int     `yaml:"result_cache_ttl_sec"`
}

// ContextConfig bounds context assembly.
type ContextConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	MaxChunks int `yaml:"max_chunks"`
}

// StorageConfig holds key prefixes and index names in the datastore.
type StorageConfig struct {
	KeyPrefix         string `yaml:"key_prefix"`
	ChunkIndex        string `yaml:"chunk_index"`
	FactsIndex        string `yaml:"facts_index"` // secondary lexical corpus
	ConversationIndex string `yaml:"conversation_index"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.Database.Addrs) == 0 {
		c.Database.Addrs = []string{"localhost:6379"}
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 30
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxTokens <= 0 {
		c.Embedding.MaxTokens = 8000
	}
	if c.Embedding.ChunkSize <= 0 {
		c.Embedding.ChunkSize = 2000
	}
	if c.Embedding.ChunkOverlap <= 0 {
		c.Embedding.ChunkOverlap = c.Embedding.ChunkSize / 10
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 7 * 24 * 3600
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1024
	}
	if c.Search.SemanticWeight <= 0 {
		c.Search.SemanticWeight = 0.7
	}
	if c.Search.KeywordWeight <= 0 {
		c.Search.KeywordWeight = 0.3
	}
	if c.Search.RelevanceThreshold <= 0 {
		c.Search.RelevanceThreshold = 0.6
	}
	if c.Search.FallbackDiscount <= 0 {
		c.Search.FallbackDiscount = 0.5
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 10
	}
	if c.Search.ResultCacheTTLSec <= 0 {
		c.Search.ResultCacheTTLSec = 300
	}
	if c.Context.MaxTokens <= 0 {
		c.Context.MaxTokens = 2000
	}
	if c.Context.MaxChunks <= 0 {
		c.Context.MaxChunks = 8
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "foliorag:"
	}
	if c.Storage.ChunkIndex == "" {
		c.Storage.ChunkIndex = "idx:chunks"
	}
	if c.Storage.FactsIndex == "" {
		c.Storage.FactsIndex = "idx:facts"
	}
	if c.Storage.ConversationIndex == "" {
		c.Storage.ConversationIndex = "idx:conversation"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be 1-65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Embedding.ChunkOverlap >= c.Embedding.ChunkSize {
		return fmt.Errorf("embedding.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Embedding.ChunkOverlap, c.Embedding.ChunkSize)
	}
	if c.Search.RelevanceThreshold > 1 {
		return fmt.Errorf("search.relevance_threshold must be 0-1, got %f", c.Search.RelevanceThreshold)
	}
	if c.Search.FallbackDiscount > 1 {
		return fmt.Errorf("search.fallback_discount must be 0-1, got %f", c.Search.FallbackDiscount)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
