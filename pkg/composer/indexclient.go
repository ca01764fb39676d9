package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/store"
)

// fetchTimeout bounds every outbound fetch from the composer.
const fetchTimeout = 5 * time.Second

// IndexClient is the HTTP MemoryFetcher over the indexing service's
// topic-recency endpoint (base URL from the INGESTION_URL environment
// variable).
type IndexClient struct {
	baseURL string
	client  *http.Client
}

// NewIndexClient builds a client against the indexing service.
func NewIndexClient(baseURL string) *IndexClient {
	return &IndexClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

// FetchTopicMemories returns the most recent memories filed under the
// literal topic string.
func (c *IndexClient) FetchTopicMemories(ctx context.Context, topic string, limit int) ([]*store.Memory, error) {
	u := fmt.Sprintf("%s/topics/%s/recent?limit=%d", c.baseURL, url.PathEscape(topic), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("composer: build topic fetch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.WrapUpstream(err, "topic fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.WrapUpstream(nil, "topic fetch HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Memories []*store.Memory `json:"memories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.WrapUpstream(err, "decode topic fetch response")
	}
	return payload.Memories, nil
}
