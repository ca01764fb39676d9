package extraction

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashvinar/memory-layer/internal/store"
)

func testTurn(userText string, src store.Source) *store.Turn {
	return &store.Turn{
		ID:       "turn_test",
		ThreadID: "thr_test",
		TSUser:   time.Now().UTC(),
		UserText: userText,
		Source:   src,
	}
}

func TestExtract_Decision(t *testing.T) {
	svc := New(Config{})
	turn := testTurn(
		"I decided to use Rust because it's fast.",
		store.Source{App: "editor", Path: "/u/me/code/svc/src/main.rs"},
	)

	memories := svc.Extract(turn)
	require.Len(t, memories, 1)

	m := memories[0]
	require.Equal(t, store.KindDecision, m.Kind)
	require.Equal(t, "main.rs", m.Topic)
	require.Contains(t, m.Text, "decided to use Rust")
	require.Contains(t, m.Entities, "Rust")
	require.Equal(t, []string{"turn_test"}, m.Provenance)
	require.Equal(t, store.StatusFleeting, m.Status)
}

func TestExtract_TaskTTL(t *testing.T) {
	svc := New(Config{})

	tests := []struct {
		name    string
		text    string
		wantTTL int64
		wantMin float64
	}{
		{"todo marker", "TODO: wire the retry loop into the worker", ttlTaskSeconds, 0.9},
		{"urgent modal", "We need to fix this urgent bug in the parser", ttlUrgentSeconds, 0.75},
		{"plain modal", "We should document the schema migrations", ttlTaskSeconds, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memories := svc.Extract(testTurn(tt.text, store.Source{App: "terminal"}))
			var task *store.Memory
			for _, m := range memories {
				if m.Kind == store.KindTask {
					task = m
				}
			}
			require.NotNil(t, task, "expected a task memory")
			require.NotNil(t, task.TTLSeconds)
			require.Equal(t, tt.wantTTL, *task.TTLSeconds)
		})
	}
}

func TestExtract_FactNeedsBoost(t *testing.T) {
	svc := New(Config{})

	// Technical terminology lifts 0.6 past the 0.7 threshold.
	memories := svc.Extract(testTurn("CQRS means the read schema is split from the write schema", store.Source{App: "notes"}))
	var kinds []string
	for _, m := range memories {
		kinds = append(kinds, string(m.Kind))
	}
	require.Contains(t, kinds, "fact")

	// A plain non-technical claim stays below threshold.
	memories = svc.Extract(testTurn("Lunch is at noon on Fridays", store.Source{App: "notes"}))
	for _, m := range memories {
		require.NotEqual(t, store.KindFact, m.Kind)
	}
}

func TestExtract_FactRejections(t *testing.T) {
	svc := New(Config{})
	tests := []string{
		"It is the sqlite database for the service", // pronoun lead
		"Is the sqlite schema versioned?",           // question
		"env = x",                                   // very short value
	}
	for _, text := range tests {
		for _, m := range svc.Extract(testTurn(text, store.Source{App: "notes"})) {
			require.NotEqual(t, store.KindFact, m.Kind, "text %q must not yield a fact", text)
		}
	}
}

func TestExtract_FencedSnippet(t *testing.T) {
	svc := New(Config{})
	text := "Here is the helper:\n```go\nfunc clamp(v int) int { return v }\n```"
	memories := svc.Extract(testTurn(text, store.Source{App: "editor"}))

	var snippet *store.Memory
	for _, m := range memories {
		if m.Kind == store.KindSnippet {
			snippet = m
		}
	}
	require.NotNil(t, snippet)
	require.NotNil(t, snippet.Snippet)
	require.Equal(t, "go", snippet.Snippet.Language)
	require.Contains(t, snippet.Snippet.Text, "func clamp")
}

func TestExtract_FileReferenceSnippet(t *testing.T) {
	svc := New(Config{})
	memories := svc.Extract(testTurn(
		"The clamp lives in internal/store/models.go:L216-L224 now.",
		store.Source{App: "editor"},
	))

	var snippet *store.Memory
	for _, m := range memories {
		if m.Kind == store.KindSnippet {
			snippet = m
		}
	}
	require.NotNil(t, snippet)
	require.NotNil(t, snippet.Snippet)
	require.Equal(t, "L216-L224", snippet.Snippet.Location)
	require.Equal(t, "internal/store/models.go", snippet.Snippet.Title)
	require.Equal(t, "go", snippet.Snippet.Language)
}

func TestInferTopic_Precedence(t *testing.T) {
	tests := []struct {
		name string
		src  store.Source
		text string
		want string
	}{
		{"path wins", store.Source{App: "editor", Path: "/u/me/code/svc/src/main.rs", URL: "https://x.dev/docs"}, "sqlite everywhere", "main.rs"},
		{"url second", store.Source{App: "chat", URL: "https://github.com/acme/widgets"}, "sqlite everywhere", "acme"},
		{"keyword third", store.Source{App: "chat"}, "the sqlite cache is warm", "sqlite"},
		{"app last", store.Source{App: "mail"}, "nothing notable here at all", "mail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, inferTopic(tt.src, tt.text))
		})
	}
}

// For fixed input text, the heuristic extractor yields the same set of
// memories modulo id generation.
func TestExtract_Deterministic(t *testing.T) {
	svc := New(Config{})
	text := "I decided to migrate to Postgres because sqlite locks. TODO: update the docker config. " +
		"DB_PATH means the sqlite file location.\n```sql\nSELECT 1;\n```"

	fingerprint := func() []string {
		var out []string
		for _, m := range svc.Extract(testTurn(text, store.Source{App: "terminal"})) {
			out = append(out, fmt.Sprintf("%s|%s|%s|%v", m.Kind, m.Topic, m.Text, m.Entities))
		}
		sort.Strings(out)
		return out
	}

	first := fingerprint()
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, fingerprint())
	}
}

func TestDedupe_KeepsHigherConfidence(t *testing.T) {
	cands := []candidate{
		{kind: store.KindDecision, topic: "db", text: "weak", confidence: 0.7},
		{kind: store.KindDecision, topic: "db", text: "strong", confidence: 0.9},
		{kind: store.KindFact, topic: "db", text: "other kind survives", confidence: 0.8},
	}
	out := dedupe(cands)
	require.Len(t, out, 2)
	require.Equal(t, "strong", out[0].text)
}

func TestDedupe_TieBreaksOnEntities(t *testing.T) {
	cands := []candidate{
		{kind: store.KindFact, topic: "db", text: "few", confidence: 0.8, entities: []string{"A"}},
		{kind: store.KindFact, topic: "db", text: "many", confidence: 0.8, entities: []string{"A", "B"}},
	}
	out := dedupe(cands)
	require.Len(t, out, 1)
	require.Equal(t, "many", out[0].text)
}

func TestIsComplex(t *testing.T) {
	require.False(t, isComplex("Short note."))
	require.True(t, isComplex("One. Two. Three. Four. Five. Six. Seven."))
	require.True(t, isComplex("We chose it because of cost and since the team knows it."))
	require.True(t, isComplex("First implement the cache, then migrate the schema."))
}

// fakeProvider returns a canned response or error for LLM-path tests.
type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (f *fakeProvider) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestExtractAsync_LLMFallbackOnError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("connection refused")}
	svc := New(Config{Strategy: StrategyLLM, Provider: provider})

	turn := testTurn("I decided to use Rust because it's fast.", store.Source{App: "editor"})
	memories := svc.ExtractAsync(context.Background(), turn)

	require.Equal(t, 1, provider.calls)
	require.NotEmpty(t, memories, "heuristic fallback must still produce the decision")
	require.Equal(t, store.KindDecision, memories[0].Kind)
}

func TestExtractAsync_LLMParsesFencedJSON(t *testing.T) {
	provider := &fakeProvider{response: "```json\n{\"memories\":[{\"kind\":\"task\",\"text\":\"ship the composer\",\"confidence\":0.9}]}\n```"}
	svc := New(Config{Strategy: StrategyLLM, Provider: provider})

	memories := svc.ExtractAsync(context.Background(), testTurn("anything", store.Source{App: "chat"}))
	require.Len(t, memories, 1)
	require.Equal(t, store.KindTask, memories[0].Kind)
	require.Equal(t, "ship the composer", memories[0].Text)
	require.NotNil(t, memories[0].TTLSeconds)
	require.Equal(t, ttlTaskSeconds, *memories[0].TTLSeconds)
}

func TestExtractAsync_HybridSkipsLLMForSimpleText(t *testing.T) {
	provider := &fakeProvider{response: `{"memories":[]}`}
	svc := New(Config{Strategy: StrategyHybrid, Provider: provider})

	svc.ExtractAsync(context.Background(), testTurn("Short note.", store.Source{App: "chat"}))
	require.Zero(t, provider.calls, "simple text must not reach the LLM")
}

func TestParseMemories_Repair(t *testing.T) {
	raw := `garbage before {"kind":"fact","text":"the cache is write-through","confidence":0.8} garbage after`
	parsed, err := ParseMemories(raw)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, "fact", parsed[0].Kind)
}

func TestParseMemories_RejectsUnknownKind(t *testing.T) {
	parsed, err := ParseMemories(`{"memories":[{"kind":"opinion","text":"nope"},{"kind":"fact","text":"keep"}]}`)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, "keep", parsed[0].Text)
}
