// Package config loads process configuration from the environment, an optional
// .env file and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned by Validate when a required setting is missing.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting the server and CLI need. Secrets are injected
// here and never read from the environment by other packages.
type Config struct {
	Port       string `toml:"port"`
	ServerMode bool   `toml:"server_mode"`

	StoreBackend         string `toml:"store_backend"`
	QdrantHost           string `toml:"qdrant_host"`
	QdrantPort           int    `toml:"qdrant_port"`
	QdrantAPIKey         string `toml:"qdrant_api_key"`
	QdrantUseTLS         bool   `toml:"qdrant_use_tls"`
	DefaultCollection    string `toml:"default_collection"`
	AutoCreateCollection bool   `toml:"auto_create_collection"`

	OpenAIAPIKey  string `toml:"openai_api_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`

	LLMProvider          string  `toml:"llm_provider"`
	LLMModel             string  `toml:"llm_model"`
	LLMBaseURL           string  `toml:"llm_base_url"`
	LLMRequestsPerSecond float64 `toml:"llm_requests_per_second"`
	LLMBurst             int     `toml:"llm_burst"`

	EmbeddingProvider  string `toml:"embedding_provider"`
	EmbeddingModel     string `toml:"embedding_model"`
	EmbeddingDimension int    `toml:"embedding_dimension"`
	EmbeddingCacheDir  string `toml:"embedding_cache_dir"`

	ChunkMaxTokens    int           `toml:"chunk_max_tokens"`
	IngestConcurrency int           `toml:"ingest_concurrency"`
	IngestTimeout     time.Duration `toml:"-"`

	QAMaxRetries     int    `toml:"qa_max_retries"`
	QAReview         bool   `toml:"qa_review"`
	QAMaxRefinements int    `toml:"qa_max_refinements"`
	QAExamplesPath   string `toml:"qa_examples_path"`
	QAExamplesK      int    `toml:"qa_examples_k"`

	APIKeyHashes []string `toml:"api_key_hashes"`
	CORSOrigins  []string `toml:"cors_origins"`

	AWSRegion    string `toml:"aws_region"`
	AWSAccessKey string `toml:"aws_access_key"`
	AWSSecretKey string `toml:"aws_secret_key"`
	GitHubToken  string `toml:"github_token"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                 "8080",
		StoreBackend:         "qdrant",
		QdrantHost:           "localhost",
		QdrantPort:           6334,
		DefaultCollection:    "documents_qa",
		AutoCreateCollection: true,
		LLMProvider:          "openai",
		LLMModel:             "gpt-4o-mini",
		LLMRequestsPerSecond: 5,
		LLMBurst:             10,
		EmbeddingProvider:    "openai",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimension:   1536,
		ChunkMaxTokens:       512,
		IngestConcurrency:    4,
		IngestTimeout:        10 * time.Minute,
		QAMaxRetries:         2,
		QAMaxRefinements:     3,
		QAExamplesK:          3,
		CORSOrigins:          []string{"*"},
		AWSRegion:            "us-east-1",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads .env (if present), then the TOML file named by CONFIG_FILE (if
// set), then the environment. Environment values win over the file.
func Load() (*Config, error) {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.ServerMode = getEnvBool("SERVER_MODE", c.ServerMode)

	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.QdrantHost = getEnv("QDRANT_HOST", c.QdrantHost)
	c.QdrantPort = getEnvInt("QDRANT_PORT", c.QdrantPort)
	c.QdrantAPIKey = getEnv("QDRANT_API_KEY", c.QdrantAPIKey)
	c.QdrantUseTLS = getEnvBool("QDRANT_USE_TLS", c.QdrantUseTLS)
	c.DefaultCollection = getEnv("DEFAULT_COLLECTION", c.DefaultCollection)
	c.AutoCreateCollection = getEnvBool("AUTO_CREATE_COLLECTION", c.AutoCreateCollection)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)

	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMRequestsPerSecond = getEnvFloat("LLM_REQUESTS_PER_SECOND", c.LLMRequestsPerSecond)
	c.LLMBurst = getEnvInt("LLM_BURST", c.LLMBurst)

	c.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", c.EmbeddingProvider)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDimension = getEnvInt("EMBEDDING_DIMENSION", c.EmbeddingDimension)
	c.EmbeddingCacheDir = getEnv("EMBEDDING_CACHE_DIR", c.EmbeddingCacheDir)

	c.ChunkMaxTokens = getEnvInt("CHUNK_MAX_TOKENS", c.ChunkMaxTokens)
	c.IngestConcurrency = getEnvInt("INGEST_CONCURRENCY", c.IngestConcurrency)
	c.IngestTimeout = getEnvDuration("INGEST_TIMEOUT", c.IngestTimeout)

	c.QAMaxRetries = getEnvInt("QA_MAX_RETRIES", c.QAMaxRetries)
	c.QAReview = getEnvBool("QA_REVIEW", c.QAReview)
	c.QAMaxRefinements = getEnvInt("QA_MAX_REFINEMENTS", c.QAMaxRefinements)
	c.QAExamplesPath = getEnv("QA_EXAMPLES_PATH", c.QAExamplesPath)
	c.QAExamplesK = getEnvInt("QA_EXAMPLES_K", c.QAExamplesK)

	c.APIKeyHashes = getEnvList("API_KEY_HASHES", c.APIKeyHashes)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.AWSAccessKey = getEnv("AWS_ACCESS_KEY", c.AWSAccessKey)
	c.AWSSecretKey = getEnv("AWS_SECRET_KEY", c.AWSSecretKey)
	c.GitHubToken = getEnv("GITHUB_TOKEN", c.GitHubToken)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate checks that the secrets required by the selected backends are set.
func (c *Config) Validate() error {
	var problems []string

	switch c.StoreBackend {
	case "qdrant":
		if c.QdrantHost == "" || c.QdrantPort <= 0 {
			problems = append(problems, "QDRANT_HOST and QDRANT_PORT are required for the qdrant backend")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required for the openai LLM provider")
		}
	case "langchain":
		if c.LLMBaseURL == "" {
			problems = append(problems, "LLM_BASE_URL is required for the langchain LLM provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required for the openai embedding provider")
		}
	case "hash":
	default:
		problems = append(problems, fmt.Sprintf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	if c.EmbeddingDimension <= 0 {
		problems = append(problems, "EMBEDDING_DIMENSION must be positive")
	}
	if c.ChunkMaxTokens <= 0 {
		problems = append(problems, "CHUNK_MAX_TOKENS must be positive")
	}
	if c.IngestConcurrency <= 0 {
		problems = append(problems, "INGEST_CONCURRENCY must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, defaultValue)
		return defaultValue
	}
	return d
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
