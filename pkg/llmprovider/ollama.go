package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// ollamaRequest represents the request body for Ollama's chat API.
type ollamaRequest struct {
	Model    string     `json:"model"`
	Messages []chatMsg  `json:"messages"`
	Stream   bool       `json:"stream"`
	Options  ollamaOpts `json:"options"`
}

type ollamaOpts struct {
	Temperature float64 `json:"temperature"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaResponse represents the non-streaming response from Ollama.
type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// OllamaConfig holds connection settings for a local Ollama daemon.
type OllamaConfig struct {
	Host    string // e.g. http://127.0.0.1:11434
	Model   string
	Timeout time.Duration
}

// Ollama talks to a local Ollama daemon over its chat endpoint.
type Ollama struct {
	config OllamaConfig
	client *http.Client
}

// NewOllama creates an Ollama provider adapter.
func NewOllama(config OllamaConfig) *Ollama {
	return &Ollama{config: config, client: newHTTPClient(config.Timeout)}
}

// Complete makes a non-streaming chat request and returns the assistant's
// text.
func (o *Ollama) Complete(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	messages := make([]chatMsg, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMsg{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMsg{Role: "user", Content: userPrompt})

	req := ollamaRequest{
		Model:    o.config.Model,
		Messages: messages,
		Stream:   false, // EXPLICITLY NO STREAMING
		Options:  ollamaOpts{Temperature: 0.3},
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llmprovider: failed to marshal ollama request: %w", err)
	}

	url := strings.TrimRight(o.config.Host, "/") + "/api/chat"
	raw, err := postJSON(ctx, o.client, url, reqBody, "")
	if err != nil {
		return "", apperr.WrapUpstream(err, "ollama request failed")
	}

	var resp ollamaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", apperr.WrapUpstream(err, "failed to parse ollama response")
	}
	if resp.Error != "" {
		return "", apperr.WrapUpstream(nil, "ollama error: %s", resp.Error)
	}
	if resp.Message.Content == "" {
		return "", apperr.WrapUpstream(nil, "empty content in ollama response")
	}
	return resp.Message.Content, nil
}

// postJSON issues a POST with optional bearer auth and returns the raw
// response body. Non-2xx statuses are errors carrying the body text.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
