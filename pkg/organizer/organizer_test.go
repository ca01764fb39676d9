package organizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/store"
)

func newStore(t *testing.T) store.Storer {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOrganize_MarkerSegmentWins(t *testing.T) {
	s := newStore(t)
	m := &store.Memory{ID: "m1", Kind: store.KindDecision, Topic: "storage engine", Text: "text"}
	turn := &store.Turn{
		ID:     "t1",
		Source: store.Source{App: "claude-code", Path: "/home/user/code/memory-layer/internal/store/schema.go"},
	}

	got, err := Organize(s, m, turn)
	require.NoError(t, err)
	require.NotNil(t, got.TopicID)

	_, project, area, topic, err := s.HierarchyPath(*got.TopicID)
	require.NoError(t, err)
	require.Equal(t, "memory-layer", project.Name)
	require.Equal(t, "Decisions", area.Name)
	require.Equal(t, "storage engine", topic.Name)
}

func TestOrganize_PositionalFallback(t *testing.T) {
	s := newStore(t)
	m := &store.Memory{ID: "m2", Kind: store.KindTask, Topic: "", Text: "text"}
	turn := &store.Turn{
		ID:     "t2",
		Source: store.Source{App: "cursor", Path: "/a/b/c/d/e.go"},
	}

	got, err := Organize(s, m, turn)
	require.NoError(t, err)

	_, project, area, topic, err := s.HierarchyPath(*got.TopicID)
	require.NoError(t, err)
	require.Equal(t, "d", project.Name)
	require.Equal(t, "Tasks", area.Name)
	require.Equal(t, "General", topic.Name)
}

func TestOrganize_URLFallback(t *testing.T) {
	s := newStore(t)
	m := &store.Memory{ID: "m3", Kind: store.KindFact, Topic: "api design", Text: "text"}
	turn := &store.Turn{
		ID:     "t3",
		Source: store.Source{App: "web-chat", URL: "https://github.com/acme/widgets/pull/42"},
	}

	got, err := Organize(s, m, turn)
	require.NoError(t, err)

	_, project, area, _, err := s.HierarchyPath(*got.TopicID)
	require.NoError(t, err)
	require.Equal(t, "acme", project.Name)
	require.Equal(t, "Facts", area.Name)
}

func TestOrganize_URLHostFallback(t *testing.T) {
	s := newStore(t)
	m := &store.Memory{ID: "m4", Kind: store.KindSnippet, Topic: "", Text: "text"}
	turn := &store.Turn{
		ID:     "t4",
		Source: store.Source{App: "web-chat", URL: "https://docs.example.com"},
	}

	got, err := Organize(s, m, turn)
	require.NoError(t, err)

	_, project, _, _, err := s.HierarchyPath(*got.TopicID)
	require.NoError(t, err)
	require.Equal(t, "docs", project.Name)
}

func TestOrganize_DefaultProjectName(t *testing.T) {
	s := newStore(t)
	m := &store.Memory{ID: "m5", Kind: store.KindFact, Topic: "misc", Text: "text"}
	turn := &store.Turn{ID: "t5", Source: store.Source{App: "notes-app"}}

	got, err := Organize(s, m, turn)
	require.NoError(t, err)

	_, project, _, _, err := s.HierarchyPath(*got.TopicID)
	require.NoError(t, err)
	require.Equal(t, defaultProjectName, project.Name)
}

func TestOrganize_SameMarkerResolvesToSameProject(t *testing.T) {
	s := newStore(t)
	turn := &store.Turn{ID: "t6", Source: store.Source{App: "claude-code", Path: "/home/user/projects/widgets/README.md"}}

	m1 := &store.Memory{ID: "m6a", Kind: store.KindFact, Topic: "x", Text: "text"}
	m2 := &store.Memory{ID: "m6b", Kind: store.KindTask, Topic: "y", Text: "text"}

	got1, err := Organize(s, m1, turn)
	require.NoError(t, err)
	got2, err := Organize(s, m2, turn)
	require.NoError(t, err)

	_, p1, a1, _, err := s.HierarchyPath(*got1.TopicID)
	require.NoError(t, err)
	_, p2, a2, _, err := s.HierarchyPath(*got2.TopicID)
	require.NoError(t, err)

	require.Equal(t, p1.ID, p2.ID, "same project marker must resolve to the same project row")
	require.NotEqual(t, a1.ID, a2.ID, "different memory kinds must land in different areas")
}
