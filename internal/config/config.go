// Package config reads the process environment into typed settings: one
// flat struct filled at startup and passed into constructors, no
// config-file layer.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Provider identifies which LLM backend extraction/enrichment talks to.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Config holds every environment-derived setting for the three services.
type Config struct {
	DBPath string

	UseLLMExtraction bool
	LLMProvider      Provider

	OllamaHost  string
	OllamaModel string

	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIAPIKey  string

	// IndexingURL is where the composer reaches the indexing service for
	// topic-scoped memory fetches. The env variable is named INGESTION_URL
	// for compatibility with existing clients' configuration.
	IndexingURL string
}

// Load reads Config from the environment, applying documented defaults.
func Load() Config {
	cfg := Config{
		DBPath:           getenv("DB_PATH", defaultDBPath()),
		UseLLMExtraction: getbool("USE_LLM_EXTRACTION", false),
		LLMProvider:      Provider(getenv("LLM_PROVIDER", string(ProviderOllama))),
		OllamaHost:       getenv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaModel:      getenv("OLLAMA_MODEL", "llama3.2"),
		OpenAIBaseURL:    getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      getenv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		IndexingURL:      getenv("INGESTION_URL", "http://127.0.0.1:21954"),
	}
	return cfg
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "memory.db"
	}
	return filepath.Join(home, ".local", "share", "memory-layer", "memory.db")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
