package composer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
	"github.com/ashvinar/memory-layer/internal/store"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedImportant(t *testing.T, s *store.SQLiteStore, kind store.MemoryKind, text string, snippet *store.Snippet) *store.Memory {
	t.Helper()
	m := &store.Memory{
		ID:         ids.New(ids.PrefixMemory),
		Kind:       kind,
		Topic:      "db",
		Text:       text,
		Snippet:    snippet,
		Importance: 9,
		CreatedAt:  time.Now().UTC().Add(-30 * time.Minute),
	}
	require.NoError(t, s.CreateMemory(m))
	return m
}

// A small budget against an empty store still yields a well-formed Short
// capsule.
func TestCompose_EmptyStoreShortBudget(t *testing.T) {
	c := New(newStore(t), nil)

	capsule := c.Compose(ContextRequest{BudgetTokens: 80})
	require.Equal(t, StyleShort, capsule.Style)
	require.True(t, strings.HasPrefix(capsule.PreambleText, "Context: General"))
	require.Equal(t, len(capsule.PreambleText)/4, capsule.TokenCount)
	require.Equal(t, capsuleTTLSec, capsule.TTLSec)
	require.Len(t, capsule.Messages, 1)
	require.Equal(t, "system", capsule.Messages[0].Role)
	require.Equal(t, capsule.PreambleText, capsule.Messages[0].Content)
	require.Equal(t, []ProvenanceRef{{Type: "memory", Ref: "0 memories"}}, capsule.Provenance)
}

func TestStyleForBudget(t *testing.T) {
	require.Equal(t, StyleShort, StyleForBudget(99))
	require.Equal(t, StyleStandard, StyleForBudget(100))
	require.Equal(t, StyleStandard, StyleForBudget(299))
	require.Equal(t, StyleDetailed, StyleForBudget(300))
}

func TestMemoryLimitForBudget(t *testing.T) {
	require.Equal(t, 5, memoryLimitForBudget(80))    // 2 clamps up
	require.Equal(t, 10, memoryLimitForBudget(400))  // in range
	require.Equal(t, 50, memoryLimitForBudget(9000)) // clamps down
}

func TestCompose_StandardRendering(t *testing.T) {
	s := newStore(t)
	seedImportant(t, s, store.KindDecision, "Use sqlite for the store. It is embedded.", nil)
	seedImportant(t, s, store.KindSnippet, "The clamp helper.", &store.Snippet{
		Text:     "func clamp(v int) int {\n\treturn v\n}\nfunc unused() {}",
		Location: "L216-L224",
	})

	c := New(s, nil)
	capsule := c.Compose(ContextRequest{TopicHint: "db", BudgetTokens: 200})
	require.Equal(t, StyleStandard, capsule.Style)
	require.True(t, strings.HasPrefix(capsule.PreambleText, "- Topic: db"))
	require.Contains(t, capsule.PreambleText, "ago)")
	require.Contains(t, capsule.PreambleText, "Snippet (L216-L224)")
	require.Contains(t, capsule.PreambleText, instructionFooter)
	// The snippet excerpt is capped at three lines.
	require.NotContains(t, capsule.PreambleText, "func unused")
}

func TestCompose_DetailedGroupsByKind(t *testing.T) {
	s := newStore(t)
	seedImportant(t, s, store.KindDecision, "Use sqlite.", nil)
	seedImportant(t, s, store.KindFact, "DB_PATH points at the store file.", nil)
	seedImportant(t, s, store.KindTask, "Wire the archiver.", nil)
	seedImportant(t, s, store.KindSnippet, "Clamp helper.", &store.Snippet{Text: "func clamp() {}", Language: "go"})

	c := New(s, nil)
	capsule := c.Compose(ContextRequest{TopicHint: "db", BudgetTokens: 500})
	require.Equal(t, StyleDetailed, capsule.Style)
	for _, section := range []string{"## Decisions", "## Facts", "## Tasks", "## Code", "## Instructions"} {
		require.Contains(t, capsule.PreambleText, section)
	}
	require.Contains(t, capsule.PreambleText, "```go")
}

func TestCompose_ThreadCacheAndUndo(t *testing.T) {
	s := newStore(t)
	c := New(s, nil)

	first := c.Compose(ContextRequest{TopicHint: "a", BudgetTokens: 80, ThreadKey: "thr_1"})
	second := c.Compose(ContextRequest{TopicHint: "b", BudgetTokens: 80, ThreadKey: "thr_1"})

	cached, ok := c.Cached("thr_1")
	require.True(t, ok)
	require.Equal(t, second.CapsuleID, cached.CapsuleID)

	restored, err := c.Undo("thr_1")
	require.NoError(t, err)
	require.Equal(t, first.CapsuleID, restored.CapsuleID)

	// Only one generation of undo is kept.
	_, err = c.Undo("thr_1")
	require.Error(t, err)
}

func TestUndo_UnknownThread(t *testing.T) {
	c := New(newStore(t), nil)
	_, err := c.Undo("thr_missing")
	require.Error(t, err)
}

// fakeFetcher returns canned topic memories or an error.
type fakeFetcher struct {
	memories []*store.Memory
	err      error
	gotTopic string
	gotLimit int
}

func (f *fakeFetcher) FetchTopicMemories(_ context.Context, topic string, limit int) ([]*store.Memory, error) {
	f.gotTopic = topic
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.memories, nil
}

func topicMemory(id, text string) *store.Memory {
	return &store.Memory{
		ID:        id,
		Kind:      store.KindFact,
		Topic:     "db",
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCompose_SupplementsFromTopicFetch(t *testing.T) {
	s := newStore(t)
	pinned := seedImportant(t, s, store.KindDecision, "Use sqlite for the store.", nil)

	fetcher := &fakeFetcher{memories: []*store.Memory{
		topicMemory(pinned.ID, "duplicate of the pinned row"),
		topicMemory("mem_topic_1", "The cache layer is write-through."),
	}}
	c := New(s, nil)
	c.SetFetcher(fetcher)

	capsule := c.Compose(ContextRequest{TopicHint: "db", BudgetTokens: 500})
	require.Equal(t, "db", fetcher.gotTopic)
	require.Contains(t, capsule.PreambleText, "write-through")
	// The duplicate id is dropped, so provenance counts each memory once.
	require.Equal(t, []ProvenanceRef{{Type: "memory", Ref: "2 memories"}}, capsule.Provenance)
}

func TestCompose_FetchFailureFallsBack(t *testing.T) {
	s := newStore(t)
	seedImportant(t, s, store.KindDecision, "Use sqlite for the store.", nil)

	c := New(s, nil)
	c.SetFetcher(&fakeFetcher{err: fmt.Errorf("connection refused")})

	capsule := c.Compose(ContextRequest{TopicHint: "db", BudgetTokens: 200})
	require.Equal(t, StyleStandard, capsule.Style)
	require.Contains(t, capsule.PreambleText, "Use sqlite")
	require.Equal(t, []ProvenanceRef{{Type: "memory", Ref: "1 memories"}}, capsule.Provenance)
}

func TestCompose_NoFetchWithoutTopicHint(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := New(newStore(t), nil)
	c.SetFetcher(fetcher)

	c.Compose(ContextRequest{BudgetTokens: 80})
	require.Empty(t, fetcher.gotTopic, "no topic hint must mean no outbound fetch")
}

func TestIndexClient_FetchTopicMemories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/topics/db notes/recent", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"memories":[{"id":"mem_1","kind":"fact","topic":"db notes","text":"t"}]}`))
	}))
	defer srv.Close()

	client := NewIndexClient(srv.URL)
	memories, err := client.FetchTopicMemories(context.Background(), "db notes", 3)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.Equal(t, "mem_1", memories[0].ID)
}

func TestIndexClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewIndexClient(srv.URL)
	_, err := client.FetchTopicMemories(context.Background(), "db", 3)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.Upstream))
}

// Delta classification: identical text, small word churn, full rewrite.
func TestComputeDelta(t *testing.T) {
	text := "Context: General\nUse sqlite for the store"
	require.Equal(t, DeltaNoChange, ComputeDelta(text, text))

	// Mutating well under 10% of a long word set stays Small.
	words := make([]string, 40)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	base := strings.Join(words, " ")
	words[0] = "changed"
	mutated := strings.Join(words, " ")
	require.Equal(t, DeltaSmall, ComputeDelta(base, mutated))

	require.Equal(t, DeltaChanged, ComputeDelta(base, "completely different text"))
}

func TestGist(t *testing.T) {
	require.Equal(t, "Short.", gist("Short. More after.", 50))
	long := strings.Repeat("a", 60)
	require.Equal(t, strings.Repeat("a", 50)+"…", gist(long, 50))
}
