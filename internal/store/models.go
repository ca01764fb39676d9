// Package store provides SQLite-backed persistence for the memory engine.
// This is the unified data layer: turns, distilled memories, the
// workspace/project/area/topic hierarchy, the typed relation graph,
// version history, and the agentic metadata sidecar all live here. Every
// other package reaches storage only through the Storer interface.
package store

import "time"

// MemoryKind categorizes the kind of knowledge distilled from conversation.
type MemoryKind string

const (
	KindDecision MemoryKind = "decision"
	KindFact     MemoryKind = "fact"
	KindSnippet  MemoryKind = "snippet"
	KindTask     MemoryKind = "task"
)

// MemoryStatus tracks a memory's lifecycle.
type MemoryStatus string

const (
	StatusFleeting   MemoryStatus = "fleeting"
	StatusPermanent  MemoryStatus = "permanent"
	StatusArchived   MemoryStatus = "archived"
	StatusDeprecated MemoryStatus = "deprecated"
)

// RelationType enumerates the typed edges a MemoryRelation can carry.
type RelationType string

const (
	RelSupersedes  RelationType = "supersedes"
	RelImplements  RelationType = "implements"
	RelQuestions   RelationType = "questions"
	RelRelatesTo   RelationType = "relates_to"
	RelContradicts RelationType = "contradicts"
	RelExemplifies RelationType = "exemplifies"
)

// ProjectStatus tracks a project's lifecycle.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
	ProjectPlanned  ProjectStatus = "planned"
)

// Source describes where a Turn originated.
type Source struct {
	App  string `json:"app"`
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

// Turn is one conversational event. Immutable once inserted.
type Turn struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"threadId"`
	TSUser    time.Time  `json:"tsUser"`
	UserText  string     `json:"userText"`
	TSAI      *time.Time `json:"tsAi,omitempty"`
	AIText    string     `json:"aiText,omitempty"`
	Source    Source     `json:"source"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Snippet holds a captured code block attached to a snippet-kind memory.
type Snippet struct {
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	Location string `json:"location,omitempty"` // e.g. "L12-L40"
	Language string `json:"language,omitempty"`
}

// Memory is distilled knowledge derived from one or more turns.
type Memory struct {
	ID           string       `json:"id"`
	Kind         MemoryKind   `json:"kind"`
	Topic        string       `json:"topic"`
	Text         string       `json:"text"`
	Snippet      *Snippet     `json:"snippet,omitempty"`
	Entities     []string     `json:"entities"`
	Provenance   []string     `json:"provenance"`
	CreatedAt    time.Time    `json:"createdAt"`
	TTLSeconds   *int64       `json:"ttlSeconds,omitempty"`
	TopicID      *string      `json:"topicId,omitempty"`
	Importance   int          `json:"importance"`
	Status       MemoryStatus `json:"status"`
	Version      int          `json:"version"`
	SupersededBy *string      `json:"supersededBy,omitempty"`
}

// Workspace is the outermost hierarchy scope, named after the source app.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project groups areas under a workspace.
type Project struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspaceId"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Area groups topics under a project, named after the memory kind.
type Area struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Topic is the leaf hierarchy scope every memory ultimately resolves to.
type Topic struct {
	ID          string    `json:"id"`
	AreaID      string    `json:"areaId"`
	Name        string    `json:"name"`
	IsIndexNote bool      `json:"isIndexNote"`
	Summary     *string   `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MemoryRelation is a typed directed edge between two memories.
type MemoryRelation struct {
	ID        string       `json:"id"`
	SourceID  string       `json:"sourceId"`
	TargetID  string       `json:"targetId"`
	Type      RelationType `json:"type"`
	Rationale *string      `json:"rationale,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// MemoryVersion is a prior-content snapshot preserved before an overwrite.
type MemoryVersion struct {
	ID            string    `json:"id"`
	MemoryID      string    `json:"memoryId"`
	Content       string    `json:"content"`
	VersionNumber int       `json:"versionNumber"`
	ChangeSummary *string   `json:"changeSummary,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AgenticLink is a directed, weighted edge in the agentic keyword graph.
type AgenticLink struct {
	Target    string  `json:"target"`
	Strength  float64 `json:"strength"`
	Rationale string  `json:"rationale,omitempty"`
}

// EvolutionEntry records one refresh of an agentic row's derived fields.
type EvolutionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Snapshot  []string  `json:"snapshot"` // [context, keyword, keyword, ...]
}

// AgenticMemory is the sidecar metadata record attached to a memory:
// derived context, keywords, tags, and a symmetric keyword-similarity
// link graph, following the A-MEM agentic-memory pattern.
type AgenticMemory struct {
	MemoryID         string           `json:"memoryId"`
	Content          string           `json:"content"`
	Context          string           `json:"context"`
	Keywords         []string         `json:"keywords"`
	Tags             []string         `json:"tags"`
	Category         MemoryKind       `json:"category"`
	Links            []AgenticLink    `json:"links"`
	RetrievalCount   int              `json:"retrievalCount"`
	LastAccessed     time.Time        `json:"lastAccessed"`
	CreatedAt        time.Time        `json:"createdAt"`
	EvolutionHistory []EvolutionEntry `json:"evolutionHistory"`
}

// IndexNote is a hub note pinned to a hierarchy scope, currently always a
// topic, summarizing the memories filed beneath it.
type IndexNote struct {
	ID          string    `json:"id"`
	ScopeType   string    `json:"scopeType"`
	ScopeID     string    `json:"scopeId"`
	MemoryCount int       `json:"memoryCount"`
	KeyMemories []string  `json:"keyMemories"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProgressiveSummary is one refinement-layer summary of a memory. The
// number of distinct layers a memory has feeds its importance score.
type ProgressiveSummary struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memoryId"`
	Layer     int       `json:"layer"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchHit pairs a memory with its ranking score from a search query.
type SearchHit struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// Importance is clamped to this range by every write path.
const (
	MinImportance = 0
	MaxImportance = 10
)

// ClampImportance keeps importance in [0,10]; every write path applies it.
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// Storer is the full persistence surface. SQLiteStore is the sole
// implementation, backed by an embedded ncruces/go-sqlite3 database file.
type Storer interface {
	// Turns
	CreateTurn(t *Turn) error
	GetTurn(id string) (*Turn, error)
	ListTurnsForThread(threadID string) ([]*Turn, error)

	// Memories
	CreateMemory(m *Memory) error
	GetMemory(id string) (*Memory, error)
	UpdateMemory(m *Memory, changeSummary string) error
	DeleteMemory(id string) error
	ListMemoriesByTopic(topicID string) ([]*Memory, error)
	ListMemoriesByTopicString(topic string, limit int) ([]*Memory, error)
	ListMemoriesByKind(kind MemoryKind) ([]*Memory, error)
	ListRecentMemories(limit int) ([]*Memory, error)
	GetHighPriorityMemories(limit int) ([]*Memory, error)
	ArchiveStaleMemories(olderThan time.Duration) (int, error)
	UpdateMemoriesTopic(oldTopic, newTopicID string) (int, error)
	CalculateMemoryImportance(memoryID string) (int, error)

	// Hierarchy
	GetOrCreateWorkspace(name string) (*Workspace, error)
	GetOrCreateProject(workspaceID, name string) (*Project, error)
	GetOrCreateArea(projectID, name string) (*Area, error)
	GetOrCreateTopic(areaID, name string) (*Topic, error)
	GetTopic(id string) (*Topic, error)
	ListTopicsForArea(areaID string) ([]*Topic, error)
	HierarchyPath(topicID string) (*Workspace, *Project, *Area, *Topic, error)

	// Relations
	CreateRelation(r *MemoryRelation) error
	DeleteRelation(id string) error
	ListRelationsFrom(memoryID string) ([]*MemoryRelation, error)
	ListRelationsTo(memoryID string) ([]*MemoryRelation, error)
	ListRelationsByType(memoryID string, t RelationType) ([]*MemoryRelation, error)

	// Versions
	CreateMemoryVersion(memoryID, oldContent string, changeSummary *string) (*MemoryVersion, error)
	RevertMemoryToVersion(memoryID string, targetVersion int, reason string) error
	PruneOldVersions(memoryID string, keepN int) (int, error)
	ListVersions(memoryID string) ([]*MemoryVersion, error)

	// Agentic sidecar
	UpsertAgenticMemory(a *AgenticMemory) error
	GetAgenticMemory(memoryID string) (*AgenticMemory, error)
	TouchAgenticMemory(memoryID string) error
	ListAgenticLinksFrom(memoryID string) ([]AgenticLink, error)
	ListAgenticMemories() ([]*AgenticMemory, error)
	ListRecentAgenticMemories(limit int) ([]*AgenticMemory, error)
	SearchAgenticMemories(query string, limit int) ([]*AgenticMemory, error)

	// Index notes
	UpsertIndexNote(n *IndexNote) error
	GetIndexNoteForScope(scopeType, scopeID string) (*IndexNote, error)
	RefreshIndexNote(topicID string) (*IndexNote, error)

	// Progressive summaries
	UpsertProgressiveSummary(s *ProgressiveSummary) error
	GetProgressiveSummary(memoryID string, layer int) (*ProgressiveSummary, error)

	// Search
	SearchMemories(query string, limit int) ([]SearchHit, error)
	SearchMemoriesInTopic(query, topicID string, limit int) ([]SearchHit, error)

	// Embedding cache
	UpsertCachedEmbedding(textHash string, vector []byte) error
	GetCachedEmbedding(textHash string) ([]byte, error)
	SimilarEmbeddings(vector []byte, limit int) ([]EmbeddingNeighbor, error)

	// Narrative queries
	GetDecisionChain(topicID string) ([]*Memory, error)
	GetEvolutionTrail(memoryID string) ([]*Memory, error)
	FindContradictions(topicID string) ([]*MemoryRelation, error)
	GetQuestionResolution(memoryID string) (*Memory, error)
	GetImplementationTracking(memoryID string) ([]*Memory, error)
	GetMemoryNarrative(memoryID string) (*MemoryNarrative, error)

	// Export/Import (full-database serialization for backup/migration)
	Export() ([]byte, error)
	Import(data []byte) error

	// Stats
	GetStats() (*Stats, error)
	ListTopicCounts() ([]TopicCount, error)

	// Lifecycle
	Close() error
}
