package llmprovider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/config"
)

func TestOllama_Complete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"message":{"content":"{\"memories\":[]}"}}`))
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{Host: srv.URL, Model: "llama3.2"})
	text, err := o.Complete(context.Background(), "user", "system")
	require.NoError(t, err)
	require.Equal(t, `{"memories":[]}`, text)
	require.Equal(t, "/api/chat", gotPath)
}

func TestOllama_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := o.Complete(context.Background(), "user", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.Upstream))
}

func TestOpenAI_Complete(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	text, err := o.Complete(context.Background(), "user", "system")
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	_, err := o.Complete(context.Background(), "user", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.Upstream))
}

func TestFromConfig(t *testing.T) {
	require.Nil(t, FromConfig(config.Config{UseLLMExtraction: false}))
	require.Nil(t, FromConfig(config.Config{
		UseLLMExtraction: true,
		LLMProvider:      config.ProviderOpenAI, // no API key
	}))
	require.NotNil(t, FromConfig(config.Config{
		UseLLMExtraction: true,
		LLMProvider:      config.ProviderOllama,
		OllamaHost:       "http://127.0.0.1:11434",
		OllamaModel:      "llama3.2",
	}))
}
