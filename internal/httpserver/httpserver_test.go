package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/agentic"
	"github.com/ashvinar/memory-layer/pkg/composer"
	"github.com/ashvinar/memory-layer/pkg/extraction"
	"github.com/ashvinar/memory-layer/pkg/search"
	"github.com/ashvinar/memory-layer/pkg/worker"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newIngestion(t *testing.T) (*httptest.Server, *store.SQLiteStore, *worker.Pipeline) {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	pipeline := worker.New(worker.Config{
		Store:     s,
		Extractor: extraction.New(extraction.Config{}),
		Agentic:   agentic.New(s),
	})

	router := NewIngestionRouter(s, pipeline, testLogger(), metrics.NewCollector("ingestion_test"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, s, pipeline
}

func postJSONBody(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func ingestBody(i int) map[string]any {
	return map[string]any{
		"thread_id": "thr_load",
		"user_text": fmt.Sprintf("I decided to use Rust for service %d because it's fast.", i),
		"source":    map[string]string{"app": "editor", "path": "/u/me/code/svc/src/main.rs"},
	}
}

func TestIngestion_Health(t *testing.T) {
	srv, _, _ := newIngestion(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "ingestion", body["service"])
	require.Equal(t, "healthy", body["status"])
	require.NotEmpty(t, body["version"])
}

func TestIngestion_TurnAckAndDrain(t *testing.T) {
	srv, s, pipeline := newIngestion(t)

	resp := postJSONBody(t, srv.URL+"/ingest/turn", ingestBody(0))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack map[string]string
	decodeBody(t, resp, &ack)
	require.Equal(t, "queued", ack["status"])
	require.NotEmpty(t, ack["turn_id"])

	pipeline.Close()

	stats, err := s.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Turns)
	require.GreaterOrEqual(t, stats.Memories, 1)
}

func TestIngestion_ValidationErrors(t *testing.T) {
	srv, _, _ := newIngestion(t)

	tests := []map[string]any{
		{"user_text": "", "thread_id": "thr_1", "source": map[string]string{"app": "editor"}},
		{"user_text": "hello", "thread_id": "", "source": map[string]string{"app": "editor"}},
		{"user_text": "hello", "thread_id": "thr_1", "source": map[string]string{"app": ""}},
	}
	for _, body := range tests {
		resp := postJSONBody(t, srv.URL+"/ingest/turn", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Post(srv.URL+"/ingest/turn", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// Concurrent ingests all ack 200 and the stats add up
// after drain, with no duplicate memory IDs.
func TestIngestion_ConcurrentLoad(t *testing.T) {
	srv, s, pipeline := newIngestion(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := postJSONBody(t, srv.URL+"/ingest/turn", ingestBody(i))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()
		}(i)
	}
	wg.Wait()
	pipeline.Close()

	stats, err := s.GetStats()
	require.NoError(t, err)
	require.Equal(t, n, stats.Turns)
	require.GreaterOrEqual(t, stats.Memories, n)

	memories, err := s.ListRecentMemories(1000)
	require.NoError(t, err)
	seen := make(map[string]bool, len(memories))
	for _, m := range memories {
		require.False(t, seen[m.ID], "duplicate memory id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestIngestion_NotFoundMemory(t *testing.T) {
	srv, _, _ := newIngestion(t)
	resp, err := http.Get(srv.URL + "/memories/mem_missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func newIndexing(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	router := NewIndexingRouter(s, search.New(s), search.NewEmbedCache(nil, s), testLogger(), metrics.NewCollector("indexing_test"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, s
}

func TestIndexing_SearchAndValidation(t *testing.T) {
	srv, s := newIndexing(t)

	m := &store.Memory{
		ID:        "mem_search_1",
		Kind:      store.KindFact,
		Topic:     "db",
		Text:      "the sqlite cache layer",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMemory(m))

	resp, err := http.Get(srv.URL + "/search?q=sqlite")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Results []store.SearchHit `json:"results"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Results, 1)
	require.Equal(t, "mem_search_1", body.Results[0].Memory.ID)

	resp, err = http.Get(srv.URL + "/search")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/search?q=sqlite&limit=zap")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIndexing_Embed(t *testing.T) {
	srv, _ := newIndexing(t)

	resp := postJSONBody(t, srv.URL+"/embed", map[string]string{"text": "hello world"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Vector     []float32 `json:"vector"`
		Dimensions int       `json:"dimensions"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, search.FallbackDimensions, body.Dimensions)
	require.Len(t, body.Vector, search.FallbackDimensions)
}

func newComposerServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	router := NewComposerRouter(composer.New(s, testLogger()), testLogger(), metrics.NewCollector("composer_test"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, s
}

// A small budget against an empty store still yields a capsule.
func TestComposer_ContextBudget(t *testing.T) {
	srv, _ := newComposerServer(t)

	resp := postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 80})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var capsule struct {
		CapsuleID    string `json:"capsule_id"`
		PreambleText string `json:"preamble_text"`
		TTLSec       int    `json:"ttl_sec"`
		TokenCount   int    `json:"token_count"`
		Style        string `json:"style"`
	}
	decodeBody(t, resp, &capsule)
	require.Equal(t, "Short", capsule.Style)
	require.True(t, len(capsule.PreambleText) > 0)
	require.Equal(t, "Context: General", capsule.PreambleText[:16])
	require.Equal(t, len(capsule.PreambleText)/4, capsule.TokenCount)
	require.Equal(t, 600, capsule.TTLSec)
	require.NotEmpty(t, capsule.CapsuleID)
}

func TestComposer_DeltaAcrossRequests(t *testing.T) {
	srv, _ := newComposerServer(t)

	resp := postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 80, "thread_key": "thr_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 80, "thread_key": "thr_1"})
	var second struct {
		Delta string `json:"delta"`
	}
	decodeBody(t, resp, &second)
	require.Equal(t, "NoChange", second.Delta)
}

func TestComposer_UndoAndErrors(t *testing.T) {
	srv, _ := newComposerServer(t)

	resp := postJSONBody(t, srv.URL+"/v1/undo", map[string]string{"thread_key": "thr_missing"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Two composes, then undo restores the first capsule.
	resp = postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 80, "topic_hint": "a", "thread_key": "thr_2"})
	var first struct {
		CapsuleID string `json:"capsule_id"`
	}
	decodeBody(t, resp, &first)

	resp = postJSONBody(t, srv.URL+"/v1/context", map[string]any{"budget_tokens": 80, "topic_hint": "b", "thread_key": "thr_2"})
	resp.Body.Close()

	resp = postJSONBody(t, srv.URL+"/v1/undo", map[string]string{"thread_key": "thr_2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var restored struct {
		CapsuleID string `json:"capsule_id"`
	}
	decodeBody(t, resp, &restored)
	require.Equal(t, first.CapsuleID, restored.CapsuleID)
}
