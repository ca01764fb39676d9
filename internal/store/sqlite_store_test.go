package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/ids"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustTopic(t *testing.T, s *SQLiteStore) *Topic {
	t.Helper()
	ws, err := s.GetOrCreateWorkspace("claude-code")
	require.NoError(t, err)
	p, err := s.GetOrCreateProject(ws.ID, "memory-layer")
	require.NoError(t, err)
	a, err := s.GetOrCreateArea(p.ID, string(KindDecision))
	require.NoError(t, err)
	topic, err := s.GetOrCreateTopic(a.ID, "storage engine")
	require.NoError(t, err)
	return topic
}

func mustMemory(t *testing.T, s *SQLiteStore, topicID, text string) *Memory {
	t.Helper()
	m := &Memory{
		ID:        ids.New(ids.PrefixMemory),
		Kind:      KindDecision,
		Topic:     "storage engine",
		Text:      text,
		TopicID:   &topicID,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMemory(m))
	return m
}

// The FTS index always stays coherent with the base table,
// purely via the AFTER INSERT/UPDATE/DELETE triggers (no application-level
// reindex step).
func TestFTSCoherence(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)

	m := mustMemory(t, s, topic.ID, "use sqlite with fts5 for search")
	hits, err := s.SearchMemories("fts5", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, m.ID, hits[0].Memory.ID)

	m.Text = "switched to postgres full text search"
	require.NoError(t, s.UpdateMemory(m, "revised storage choice"))

	hits, err = s.SearchMemories("fts5", 10)
	require.NoError(t, err)
	require.Empty(t, hits, "stale FTS row for the old text must not survive an update")

	hits, err = s.SearchMemories("postgres", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, s.DeleteMemory(m.ID))
	hits, err = s.SearchMemories("postgres", 10)
	require.NoError(t, err)
	require.Empty(t, hits, "FTS row must be removed when the base row is deleted")
}

// Creating the same (source, target, type) relation twice is
// idempotent and returns the original relation's id rather than erroring or
// duplicating the row.
func TestRelationIdempotence(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	a := mustMemory(t, s, topic.ID, "memory a")
	b := mustMemory(t, s, topic.ID, "memory b")

	r1 := &MemoryRelation{SourceID: a.ID, TargetID: b.ID, Type: RelRelatesTo}
	require.NoError(t, s.CreateRelation(r1))

	r2 := &MemoryRelation{SourceID: a.ID, TargetID: b.ID, Type: RelRelatesTo}
	require.NoError(t, s.CreateRelation(r2))
	require.Equal(t, r1.ID, r2.ID)

	rels, err := s.ListRelationsFrom(a.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
}

// A "supersedes" relation sets the target's
// superseded_by pointer, and deleting it clears that pointer again.
func TestSupersedesConsistency(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	m1 := mustMemory(t, s, topic.ID, "initial decision")
	time.Sleep(time.Millisecond)
	m2 := mustMemory(t, s, topic.ID, "revised decision")

	rel := &MemoryRelation{SourceID: m2.ID, TargetID: m1.ID, Type: RelSupersedes}
	require.NoError(t, s.CreateRelation(rel))

	updated, err := s.GetMemory(m1.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.SupersededBy)
	require.Equal(t, m2.ID, *updated.SupersededBy)

	trail, err := s.GetEvolutionTrail(m2.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, m1.ID, trail[0].ID)
	require.Equal(t, m2.ID, trail[1].ID)

	require.NoError(t, s.DeleteRelation(rel.ID))
	updated, err = s.GetMemory(m1.ID)
	require.NoError(t, err)
	require.Nil(t, updated.SupersededBy)
}

// Version numbers are strictly increasing and
// contiguous per memory, and pruning keeps only the most recent N.
func TestVersionMonotonicityAndPrune(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	m := mustMemory(t, s, topic.ID, "v1 text")

	for i := 2; i <= 5; i++ {
		m.Text = "v text revision " + string(rune('0'+i))
		require.NoError(t, s.UpdateMemory(m, "revision"))
	}

	versions, err := s.ListVersions(m.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4) // v1..v4 snapshotted, current text is v5

	for i, v := range versions {
		require.Equal(t, i+1, v.VersionNumber)
	}

	n, err := s.PruneOldVersions(m.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	remaining, err := s.ListVersions(m.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, 3, remaining[0].VersionNumber)
	require.Equal(t, 4, remaining[1].VersionNumber)
}

// GetOrCreate* hierarchy lookups are idempotent even when
// raced by concurrent callers — every goroutine resolving the same name
// must land on the same row.
func TestHierarchyIdempotenceUnderConcurrency(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ws, err := s.GetOrCreateWorkspace("shared-workspace")
			require.NoError(t, err)
			ids[i] = ws.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Equal(t, ids[0], ids[i], "every concurrent GetOrCreateWorkspace call must resolve to the same row")
	}
}

// Importance is always clamped into [0, 10], regardless of
// what the caller supplies.
func TestImportanceBounds(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)

	high := &Memory{ID: "mem-high", Kind: KindFact, Topic: "x", Text: "t", TopicID: &topic.ID, Importance: 999, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateMemory(high))
	got, err := s.GetMemory("mem-high")
	require.NoError(t, err)
	require.Equal(t, MaxImportance, got.Importance)

	low := &Memory{ID: "mem-low", Kind: KindFact, Topic: "x", Text: "t", TopicID: &topic.ID, Importance: -999, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateMemory(low))
	got, err = s.GetMemory("mem-low")
	require.NoError(t, err)
	require.Equal(t, MinImportance, got.Importance)

	score, err := s.CalculateMemoryImportance("mem-high")
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, MinImportance)
	require.LessOrEqual(t, score, MaxImportance)
}

// Full-store export/import round trip: every table a fresh store restores
// from a snapshot taken of a populated one.
func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)
	m1 := mustMemory(t, s, topic.ID, "decision one")
	m2 := mustMemory(t, s, topic.ID, "decision two")

	rel := &MemoryRelation{SourceID: m2.ID, TargetID: m1.ID, Type: RelRelatesTo}
	require.NoError(t, s.CreateRelation(rel))

	agentic := &AgenticMemory{
		MemoryID: m1.ID,
		Content:  m1.Text,
		Context:  "storage engine decisions",
		Keywords: []string{"sqlite", "fts5"},
		Tags:     []string{"storage"},
		Category: KindDecision,
	}
	require.NoError(t, s.UpsertAgenticMemory(agentic))

	data, err := s.Export()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = restored.Close() })
	require.NoError(t, restored.Import(data))

	gotM1, err := restored.GetMemory(m1.ID)
	require.NoError(t, err)
	require.Equal(t, m1.Text, gotM1.Text)

	rels, err := restored.ListRelationsFrom(m2.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	gotAgentic, err := restored.GetAgenticMemory(m1.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sqlite", "fts5"}, gotAgentic.Keywords)

	hits, err := restored.SearchMemories("decision", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "FTS index must be rebuilt by the insert triggers fired during import")
}

func TestArchiveStaleMemories(t *testing.T) {
	s := newTestStore(t)
	topic := mustTopic(t, s)

	old := &Memory{
		ID: "mem-old", Kind: KindFact, Topic: "x", Text: "stale", TopicID: &topic.ID,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, s.CreateMemory(old))

	fresh := mustMemory(t, s, topic.ID, "fresh fact")

	n, err := s.ArchiveStaleMemories(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetMemory("mem-old")
	require.NoError(t, err)
	require.Equal(t, StatusArchived, got.Status)

	stillFleeting, err := s.GetMemory(fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFleeting, stillFleeting.Status)
}
