package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Revert round-trip: baseline, two edits, then revert to v1. The text
// returns to "A", three version rows exist, and the newest snapshot's
// change summary names the revert.
func TestRevertMemoryToVersion(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	m := mustMemory(t, s, topic.ID, "A")

	m.Text = "B"
	require.NoError(t, s.UpdateMemory(m, "edit to B"))
	m.Text = "C"
	require.NoError(t, s.UpdateMemory(m, "edit to C"))

	require.NoError(t, s.RevertMemoryToVersion(m.ID, 1, "restore"))

	got, err := s.GetMemory(m.ID)
	require.NoError(t, err)
	require.Equal(t, "A", got.Text)

	versions, err := s.ListVersions(m.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	latest := versions[len(versions)-1]
	require.NotNil(t, latest.ChangeSummary)
	require.Contains(t, *latest.ChangeSummary, "reverted to v1")
	require.Equal(t, "C", latest.Content, "the revert snapshots the pre-revert text")

	_, err = s.ListVersions("mem_missing")
	require.NoError(t, err)

	require.Error(t, s.RevertMemoryToVersion(m.ID, 99, "no such version"))
}

func TestStatsAndTopicCounts(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	mustMemory(t, s, topic.ID, "first")
	mustMemory(t, s, topic.ID, "second")

	require.NoError(t, s.CreateTurn(&Turn{
		ID: "turn_1", ThreadID: "thr_1", TSUser: time.Now().UTC(),
		UserText: "hello", Source: Source{App: "chat-A"},
	}))

	stats, err := s.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Turns)
	require.Equal(t, 2, stats.Memories)
	require.Equal(t, 1, stats.Workspaces)
	require.Equal(t, 1, stats.Topics)

	counts, err := s.ListTopicCounts()
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, "storage engine", counts[0].Topic)
	require.Equal(t, 2, counts[0].Count)
}

func TestListMemoriesByTopicString(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	first := mustMemory(t, s, topic.ID, "first")
	time.Sleep(2 * time.Millisecond)
	second := mustMemory(t, s, topic.ID, "second")

	memories, err := s.ListMemoriesByTopicString("storage engine", 1)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.Equal(t, second.ID, memories[0].ID)

	memories, err = s.ListMemoriesByTopicString("storage engine", 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	require.Equal(t, first.ID, memories[1].ID)

	memories, err = s.ListMemoriesByTopicString("no such topic", 10)
	require.NoError(t, err)
	require.Empty(t, memories)
}

func TestAgenticSearchAndRecent(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	m1 := mustMemory(t, s, topic.ID, "first")
	m2 := mustMemory(t, s, topic.ID, "second")

	require.NoError(t, s.UpsertAgenticMemory(&AgenticMemory{
		MemoryID: m1.ID, Content: "sqlite schema triggers", Context: "storage",
		Keywords: []string{"sqlite", "schema"}, Category: KindDecision,
	}))
	require.NoError(t, s.UpsertAgenticMemory(&AgenticMemory{
		MemoryID: m2.ID, Content: "capsule template rendering", Context: "composer",
		Keywords: []string{"capsule", "template"}, Category: KindFact,
	}))

	rows, err := s.SearchAgenticMemories("sqlite", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, m1.ID, rows[0].MemoryID)

	recent, err := s.ListRecentAgenticMemories(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)

	blob := []byte{0, 0, 128, 63, 0, 0, 0, 64} // [1.0, 2.0] little-endian f32
	require.NoError(t, s.UpsertCachedEmbedding("hash-a", blob))

	got, err := s.GetCachedEmbedding("hash-a")
	require.NoError(t, err)
	require.Equal(t, blob, got)

	_, err = s.GetCachedEmbedding("hash-missing")
	require.Error(t, err)

	// Upsert replaces in place.
	blob2 := []byte{0, 0, 64, 64, 0, 0, 128, 64}
	require.NoError(t, s.UpsertCachedEmbedding("hash-a", blob2))
	got, err = s.GetCachedEmbedding("hash-a")
	require.NoError(t, err)
	require.Equal(t, blob2, got)
}

func TestRefreshIndexNote(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)

	var important *Memory
	for i := 0; i < 7; i++ {
		m := mustMemory(t, s, topic.ID, "memory")
		if i == 3 {
			m.Importance = 9
			require.NoError(t, s.UpdateMemory(m, ""))
			important = m
		}
	}

	note, err := s.RefreshIndexNote(topic.ID)
	require.NoError(t, err)
	require.Equal(t, 7, note.MemoryCount)
	require.Len(t, note.KeyMemories, 5)
	require.Equal(t, important.ID, note.KeyMemories[0], "highest importance leads the key memories")

	got, err := s.GetIndexNoteForScope("topic", topic.ID)
	require.NoError(t, err)
	require.Equal(t, note.MemoryCount, got.MemoryCount)

	flagged, err := s.GetTopic(topic.ID)
	require.NoError(t, err)
	require.True(t, flagged.IsIndexNote)

	// A memory pinned by an index note scores the +3 referral bonus.
	score, err := s.CalculateMemoryImportance(important.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, 8)

	_, err = s.RefreshIndexNote("topic_missing")
	require.Error(t, err)
}

func TestSearchAgenticMemories_BadQuery(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SearchAgenticMemories(`"unbalanced`, 10)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "invalid") || strings.Contains(err.Error(), "fts"))
}
