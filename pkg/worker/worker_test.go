package worker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/ids"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/agentic"
	"github.com/ashvinar/memory-layer/pkg/extraction"
)

func newPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p := New(Config{
		Store:     s,
		Extractor: extraction.New(extraction.Config{}),
		Agentic:   agentic.New(s),
	})
	return p, s
}

func decisionTurn(i int) *store.Turn {
	return &store.Turn{
		ID:       ids.New(ids.PrefixTurn),
		ThreadID: "thr_load",
		TSUser:   time.Now().UTC(),
		UserText: fmt.Sprintf("I decided to use Rust for service %d because it's fast.", i),
		Source:   store.Source{App: "editor", Path: "/u/me/code/svc/src/main.rs"},
	}
}

// One ingested decision flows through extraction, organization, and
// agentic materialization.
func TestPipeline_SingleDecisionTurn(t *testing.T) {
	p, s := newPipeline(t)

	turn := decisionTurn(0)
	require.NoError(t, p.Enqueue(turn))
	p.Close()

	stored, err := s.GetTurn(turn.ID)
	require.NoError(t, err)
	require.Equal(t, turn.UserText, stored.UserText)

	memories, err := s.ListRecentMemories(10)
	require.NoError(t, err)
	require.Len(t, memories, 1)

	m := memories[0]
	require.Equal(t, store.KindDecision, m.Kind)
	require.NotNil(t, m.TopicID)

	ws, project, area, topic, err := s.HierarchyPath(*m.TopicID)
	require.NoError(t, err)
	require.Equal(t, "editor", ws.Name)
	require.Equal(t, "svc", project.Name)
	require.Equal(t, "Decisions", area.Name)
	require.Equal(t, "main.rs", topic.Name)

	agm, err := s.GetAgenticMemory(m.ID)
	require.NoError(t, err)
	require.Contains(t, agm.Tags, "kind:decision")

	note, err := s.GetIndexNoteForScope("topic", topic.ID)
	require.NoError(t, err)
	require.Equal(t, 1, note.MemoryCount)
	require.Equal(t, []string{m.ID}, note.KeyMemories)
}

// Concurrent enqueues all land, no turn is lost, and at least one memory
// exists per turn after drain.
func TestPipeline_ConcurrentEnqueue(t *testing.T) {
	p, s := newPipeline(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, p.Enqueue(decisionTurn(i)))
		}(i)
	}
	wg.Wait()
	p.Close()

	stats, err := s.GetStats()
	require.NoError(t, err)
	require.Equal(t, n, stats.Turns)
	require.GreaterOrEqual(t, stats.Memories, n)
}

func TestPipeline_EmptyTurnDoesNotStallQueue(t *testing.T) {
	p, s := newPipeline(t)

	// Two turns; the first has no extractable content and must not stall
	// the second.
	empty := &store.Turn{
		ID:       ids.New(ids.PrefixTurn),
		ThreadID: "thr_x",
		TSUser:   time.Now().UTC(),
		UserText: "hi",
		Source:   store.Source{App: "chat-A"},
	}
	require.NoError(t, p.Enqueue(empty))
	require.NoError(t, p.Enqueue(decisionTurn(1)))
	p.Close()

	stats, err := s.GetStats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.Turns)
	require.GreaterOrEqual(t, stats.Memories, 1)
}

func TestPipeline_QueueFull(t *testing.T) {
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p := New(Config{
		Store:     s,
		Extractor: extraction.New(extraction.Config{}),
		Agentic:   agentic.New(s),
		QueueSize: 1,
	})

	// Saturate: with a queue of one, eventually an enqueue must report
	// back-pressure instead of blocking.
	var sawFull bool
	for i := 0; i < 1000; i++ {
		if err := p.Enqueue(decisionTurn(i)); err != nil {
			sawFull = true
			break
		}
	}
	p.Close()
	require.True(t, sawFull)
}
