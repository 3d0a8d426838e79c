// Package config loads adaptiverag settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallnest/adaptiverag/log"
)

// ErrConfiguration marks missing or malformed settings.
var ErrConfiguration = errors.New("configuration error")

// LLM providers. The provider serves both the chat model and the embedder.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// defaultModels holds the chat and embedding model used when none is set.
var defaultModels = map[string][2]string{
	ProviderOpenAI:   {"gpt-4.1-mini", "text-embedding-3-small"},
	ProviderGoogleAI: {"gemini-2.5-flash", "gemini-embedding-001"},
}

// Search providers.
const (
	SearchTavily = "tavily"
	SearchBrave  = "brave"
)

// Thread store backends.
const (
	ThreadStoreMemory   = "memory"
	ThreadStoreSQLite   = "sqlite"
	ThreadStoreRedis    = "redis"
	ThreadStorePostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// LLM configuration
	LLMProvider       string
	OpenAIKey         string
	OpenAIBaseURL     string
	GoogleAPIKey      string
	ChatModel         string
	EmbedModel        string
	RouterTemperature float64
	AnswerTemperature float64

	// Web search
	SearchProvider   string
	TavilyKey        string
	BraveKey         string
	SearchMaxResults int

	// Retrieval and ingestion
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	SourceDir    string
	IndexPath    string

	// Conversation persistence
	ThreadStore   string
	RedisAddr     string
	RedisPassword string
	PostgresDSN   string

	TurnTimeout time.Duration
	LogLevel    log.LogLevel
}

// ConfigurationError lists every problem found while loading or validating.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Load reads an optional .env file (existing environment variables win) and
// then builds a Config from the environment. Only malformed values fail here;
// missing keys are reported by Validate.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("read %s: %v", f, err)}}
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() (*Config, error) {
	p := &parser{}
	provider := strings.ToLower(getEnv("ADAPTIVERAG_LLM_PROVIDER", ProviderOpenAI))
	models, ok := defaultModels[provider]
	if !ok {
		models = defaultModels[ProviderOpenAI]
	}
	cfg := &Config{
		LLMProvider:       provider,
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		ChatModel:         getEnv("ADAPTIVERAG_CHAT_MODEL", models[0]),
		EmbedModel:        getEnv("ADAPTIVERAG_EMBED_MODEL", models[1]),
		RouterTemperature: p.float("ADAPTIVERAG_ROUTER_TEMPERATURE", 0),
		AnswerTemperature: p.float("ADAPTIVERAG_ANSWER_TEMPERATURE", 0.7),
		SearchProvider:    strings.ToLower(getEnv("ADAPTIVERAG_SEARCH_PROVIDER", SearchTavily)),
		TavilyKey:         os.Getenv("TAVILY_API_KEY"),
		BraveKey:          os.Getenv("BRAVE_API_KEY"),
		SearchMaxResults:  p.int("ADAPTIVERAG_SEARCH_MAX_RESULTS", 3),
		TopK:              p.int("ADAPTIVERAG_TOP_K", 3),
		ChunkSize:         p.int("ADAPTIVERAG_CHUNK_SIZE", 1000),
		ChunkOverlap:      p.int("ADAPTIVERAG_CHUNK_OVERLAP", 200),
		SourceDir:         getEnv("ADAPTIVERAG_SOURCE_DIR", "docs"),
		IndexPath:         getEnv("ADAPTIVERAG_INDEX_PATH", "adaptiverag.db"),
		ThreadStore:       strings.ToLower(getEnv("ADAPTIVERAG_THREAD_STORE", ThreadStoreMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		TurnTimeout:       p.duration("ADAPTIVERAG_TURN_TIMEOUT", 60*time.Second),
	}

	level, err := log.ParseLevel(os.Getenv("ADAPTIVERAG_LOG_LEVEL"))
	if err != nil {
		p.problems = append(p.problems, err.Error())
	}
	cfg.LogLevel = level

	if cfg.TopK <= 0 {
		p.problems = append(p.problems, "ADAPTIVERAG_TOP_K must be positive")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		p.problems = append(p.problems, "ADAPTIVERAG_CHUNK_OVERLAP must be smaller than ADAPTIVERAG_CHUNK_SIZE")
	}

	if len(p.problems) > 0 {
		return nil, &ConfigurationError{Problems: p.problems}
	}
	return cfg, nil
}

// ValidateProvider checks only the LLM provider and its key, which is all
// the knowledge base commands need.
func (c *Config) ValidateProvider() error {
	if problems := c.providerProblems(); len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (c *Config) providerProblems() []string {
	switch c.LLMProvider {
	case ProviderOpenAI, "":
		if c.OpenAIKey == "" {
			return []string{"OPENAI_API_KEY is required for the openai provider"}
		}
	case ProviderGoogleAI:
		if c.GoogleAPIKey == "" {
			return []string{"GOOGLE_API_KEY is required for the googleai provider"}
		}
	default:
		return []string{fmt.Sprintf("unknown llm provider %q", c.LLMProvider)}
	}
	return nil
}

// Validate reports every required key that is missing for the selected
// providers and backends.
func (c *Config) Validate() error {
	missing := c.providerProblems()
	switch c.SearchProvider {
	case SearchTavily:
		if c.TavilyKey == "" {
			missing = append(missing, "TAVILY_API_KEY is required for the tavily search provider")
		}
	case SearchBrave:
		if c.BraveKey == "" {
			missing = append(missing, "BRAVE_API_KEY is required for the brave search provider")
		}
	default:
		missing = append(missing, fmt.Sprintf("unknown search provider %q", c.SearchProvider))
	}
	switch c.ThreadStore {
	case ThreadStoreMemory, ThreadStoreSQLite:
	case ThreadStoreRedis:
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR is required for the redis thread store")
		}
	case ThreadStorePostgres:
		if c.PostgresDSN == "" {
			missing = append(missing, "POSTGRES_DSN is required for the postgres thread store")
		}
	default:
		missing = append(missing, fmt.Sprintf("unknown thread store %q", c.ThreadStore))
	}
	if len(missing) > 0 {
		return &ConfigurationError{Problems: missing}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type parser struct {
	problems []string
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
