// Package llmprovider implements the concrete LLM provider adapters behind
// the extraction pipeline's narrow Provider capability: a local Ollama
// daemon and an OpenAI-compatible HTTP API. Each adapter exposes a single
// Complete method; everything else (prompting, parsing, fallback) lives in
// the caller. No provider is required for correctness — the system runs
// with extraction LLMs disabled.
package llmprovider

import (
	"net/http"
	"time"

	"github.com/ashvinar/memory-layer/internal/config"
	"github.com/ashvinar/memory-layer/pkg/extraction"
)

// DefaultTimeout bounds every outbound completion call. The caller's
// context may shorten it further, never extend it.
const DefaultTimeout = 30 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// FromConfig builds the configured provider, or nil when LLM extraction is
// disabled or the provider lacks credentials.
func FromConfig(cfg config.Config) extraction.Provider {
	if !cfg.UseLLMExtraction {
		return nil
	}
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return NewOllama(OllamaConfig{Host: cfg.OllamaHost, Model: cfg.OllamaModel})
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			APIKey:  cfg.OpenAIAPIKey,
		})
	default:
		return nil
	}
}
