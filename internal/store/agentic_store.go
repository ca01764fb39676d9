package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// UpsertAgenticMemory writes or refreshes the sidecar row for a.MemoryID.
// Fails NotFound if the memory itself is missing; the FK on
// agentic_memories.memory_id (ON DELETE CASCADE) backs this up, the check
// just gives a clean error instead of a raw constraint violation.
func (s *SQLiteStore) UpsertAgenticMemory(a *AgenticMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.memoryExistsUnlocked(a.MemoryID) {
		return apperr.NewNotFound("memory %s not found", a.MemoryID)
	}

	keywordsJSON, err := json.Marshal(nonNilStrings(a.Keywords))
	if err != nil {
		return apperr.WrapInternal(err, "marshal keywords")
	}
	tagsJSON, err := json.Marshal(nonNilStrings(a.Tags))
	if err != nil {
		return apperr.WrapInternal(err, "marshal tags")
	}
	linksJSON, err := json.Marshal(nonNilLinks(a.Links))
	if err != nil {
		return apperr.WrapInternal(err, "marshal links")
	}
	evolutionJSON, err := json.Marshal(nonNilEvolution(a.EvolutionHistory))
	if err != nil {
		return apperr.WrapInternal(err, "marshal evolution history")
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.LastAccessed.IsZero() {
		a.LastAccessed = a.CreatedAt
	}

	_, err = s.db.Exec(`
		INSERT INTO agentic_memories (
			memory_id, content, context, keywords, tags, category, links,
			retrieval_count, last_accessed, created_at, evolution_history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			content = excluded.content,
			context = excluded.context,
			keywords = excluded.keywords,
			tags = excluded.tags,
			category = excluded.category,
			links = excluded.links,
			evolution_history = excluded.evolution_history
	`, a.MemoryID, a.Content, a.Context, string(keywordsJSON), string(tagsJSON), string(a.Category),
		string(linksJSON), a.RetrievalCount, a.LastAccessed.UnixMilli(), a.CreatedAt.UnixMilli(), string(evolutionJSON))
	if err != nil {
		return apperr.WrapInternal(err, "upsert agentic memory")
	}
	return nil
}

// GetAgenticMemory reads the sidecar row for a memory.
func (s *SQLiteStore) GetAgenticMemory(memoryID string) (*AgenticMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(agenticSelect+`WHERE memory_id = ?`, memoryID)
	return scanAgenticRow(row)
}

// TouchAgenticMemory increments retrieval_count and bumps last_accessed,
// used when an agentic row is read through the indexing service's
// single-row GET endpoint.
func (s *SQLiteStore) TouchAgenticMemory(memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE agentic_memories SET retrieval_count = retrieval_count + 1, last_accessed = ?
		WHERE memory_id = ?
	`, time.Now().UTC().UnixMilli(), memoryID)
	if err != nil {
		return apperr.WrapInternal(err, "touch agentic memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewNotFound("agentic memory %s not found", memoryID)
	}
	return nil
}

// ListAgenticLinksFrom returns the outgoing link set for a memory's agentic
// row, sorted by descending strength (as stored).
func (s *SQLiteStore) ListAgenticLinksFrom(memoryID string) ([]AgenticLink, error) {
	a, err := s.GetAgenticMemory(memoryID)
	if err != nil {
		return nil, err
	}
	return a.Links, nil
}

// ListAgenticMemories returns every agentic row, used by the agentic layer
// to compute Jaccard similarity against every other memory on each upsert.
func (s *SQLiteStore) ListAgenticMemories() ([]*AgenticMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(agenticSelect)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list agentic memories")
	}
	defer rows.Close()

	var out []*AgenticMemory
	for rows.Next() {
		var (
			a                           AgenticMemory
			category                    string
			keywordsJSON, tagsJSON      string
			linksJSON, evolutionJSON    string
			lastAccessedMs, createdAtMs int64
		)
		if err := rows.Scan(&a.MemoryID, &a.Content, &a.Context, &keywordsJSON, &tagsJSON, &category,
			&linksJSON, &a.RetrievalCount, &lastAccessedMs, &createdAtMs, &evolutionJSON); err != nil {
			return nil, apperr.WrapInternal(err, "scan agentic memory")
		}
		a.Category = MemoryKind(category)
		a.LastAccessed = time.UnixMilli(lastAccessedMs).UTC()
		a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
		_ = json.Unmarshal([]byte(tagsJSON), &a.Tags)
		_ = json.Unmarshal([]byte(linksJSON), &a.Links)
		_ = json.Unmarshal([]byte(evolutionJSON), &a.EvolutionHistory)
		out = append(out, &a)
	}
	return out, rows.Err()
}

const agenticSelect = `
	SELECT memory_id, content, context, keywords, tags, category, links,
		retrieval_count, last_accessed, created_at, evolution_history
	FROM agentic_memories
`

// ListRecentAgenticMemories returns agentic rows most recently accessed
// first (by last_accessed, which a touch bumps and a refresh leaves as it
// is), bounded by limit.
func (s *SQLiteStore) ListRecentAgenticMemories(limit int) ([]*AgenticMemory, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.listAgentic(agenticSelect+` ORDER BY last_accessed DESC LIMIT ?`, limit)
}

// SearchAgenticMemories matches the agentic FTS index over content,
// context, keywords, and tags.
func (s *SQLiteStore) SearchAgenticMemories(query string, limit int) ([]*AgenticMemory, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := s.listAgentic(`
		SELECT a.memory_id, a.content, a.context, a.keywords, a.tags, a.category, a.links,
			a.retrieval_count, a.last_accessed, a.created_at, a.evolution_history
		FROM agentic_memories_fts
		JOIN agentic_memories a ON a.rowid = agentic_memories_fts.rowid
		WHERE agentic_memories_fts MATCH ?
		ORDER BY bm25(agentic_memories_fts)
		LIMIT ?
	`, query, limit)
	if err != nil && isFTSSyntaxError(err) {
		return nil, apperr.NewBadRequest("invalid agentic search query: %v", err)
	}
	return out, err
}

func (s *SQLiteStore) listAgentic(query string, args ...any) ([]*AgenticMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AgenticMemory
	for rows.Next() {
		var (
			a                           AgenticMemory
			category                    string
			keywordsJSON, tagsJSON      string
			linksJSON, evolutionJSON    string
			lastAccessedMs, createdAtMs int64
		)
		if err := rows.Scan(&a.MemoryID, &a.Content, &a.Context, &keywordsJSON, &tagsJSON, &category,
			&linksJSON, &a.RetrievalCount, &lastAccessedMs, &createdAtMs, &evolutionJSON); err != nil {
			return nil, apperr.WrapInternal(err, "scan agentic memory")
		}
		a.Category = MemoryKind(category)
		a.LastAccessed = time.UnixMilli(lastAccessedMs).UTC()
		a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
		_ = json.Unmarshal([]byte(tagsJSON), &a.Tags)
		_ = json.Unmarshal([]byte(linksJSON), &a.Links)
		_ = json.Unmarshal([]byte(evolutionJSON), &a.EvolutionHistory)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanAgenticRow(row *sql.Row) (*AgenticMemory, error) {
	var (
		a                             AgenticMemory
		category                      string
		keywordsJSON, tagsJSON        string
		linksJSON, evolutionJSON      string
		lastAccessedMs, createdAtMs   int64
	)
	if err := row.Scan(&a.MemoryID, &a.Content, &a.Context, &keywordsJSON, &tagsJSON, &category,
		&linksJSON, &a.RetrievalCount, &lastAccessedMs, &createdAtMs, &evolutionJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("agentic memory not found")
		}
		return nil, apperr.WrapInternal(err, "scan agentic memory")
	}
	a.Category = MemoryKind(category)
	a.LastAccessed = time.UnixMilli(lastAccessedMs).UTC()
	a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
	_ = json.Unmarshal([]byte(tagsJSON), &a.Tags)
	_ = json.Unmarshal([]byte(linksJSON), &a.Links)
	_ = json.Unmarshal([]byte(evolutionJSON), &a.EvolutionHistory)
	return &a, nil
}

func nonNilLinks(xs []AgenticLink) []AgenticLink {
	if xs == nil {
		return []AgenticLink{}
	}
	return xs
}

func nonNilEvolution(xs []EvolutionEntry) []EvolutionEntry {
	if xs == nil {
		return []EvolutionEntry{}
	}
	return xs
}

// UpsertIndexNote creates or refreshes the hub note pinned to a scope.
func (s *SQLiteStore) UpsertIndexNote(n *IndexNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertIndexNoteUnlocked(n)
}

func (s *SQLiteStore) upsertIndexNoteUnlocked(n *IndexNote) error {
	keyMemoriesJSON, err := json.Marshal(nonNilStrings(n.KeyMemories))
	if err != nil {
		return apperr.WrapInternal(err, "marshal key memories")
	}

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.ID == "" {
		n.ID = ids.New(ids.PrefixIndexNote)
	}

	_, err = s.db.Exec(`
		INSERT INTO index_notes (id, scope_type, scope_id, memory_count, key_memories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_type, scope_id) DO UPDATE SET
			memory_count = excluded.memory_count,
			key_memories = excluded.key_memories,
			updated_at = excluded.updated_at
	`, n.ID, n.ScopeType, n.ScopeID, n.MemoryCount, string(keyMemoriesJSON), n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli())
	if err != nil {
		return apperr.WrapInternal(err, "upsert index note")
	}
	return nil
}

// GetIndexNoteForScope reads the index note pinned to (scopeType, scopeID).
// scopeID is always the real scope id (a topic id for scope_type="topic"),
// never a name string.
func (s *SQLiteStore) GetIndexNoteForScope(scopeType, scopeID string) (*IndexNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, scope_type, scope_id, memory_count, key_memories, created_at, updated_at
		FROM index_notes WHERE scope_type = ? AND scope_id = ?
	`, scopeType, scopeID)

	var n IndexNote
	var keyMemoriesJSON string
	var createdAtMs, updatedAtMs int64
	if err := row.Scan(&n.ID, &n.ScopeType, &n.ScopeID, &n.MemoryCount, &keyMemoriesJSON, &createdAtMs, &updatedAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("index note for %s %s not found", scopeType, scopeID)
		}
		return nil, apperr.WrapInternal(err, "get index note")
	}
	_ = json.Unmarshal([]byte(keyMemoriesJSON), &n.KeyMemories)
	n.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	n.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &n, nil
}

// UpsertProgressiveSummary inserts a new refinement-layer summary row.
// Multiple rows per (memory, layer) are permitted (layers are refinement
// stages, not a unique key) so this always inserts rather than updating.
func (s *SQLiteStore) UpsertProgressiveSummary(sm *ProgressiveSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.memoryExistsUnlocked(sm.MemoryID) {
		return apperr.NewNotFound("memory %s not found", sm.MemoryID)
	}

	if sm.ID == "" {
		sm.ID = ids.New(ids.PrefixSummary)
	}
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO progressive_summaries (id, memory_id, layer, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sm.ID, sm.MemoryID, sm.Layer, sm.Content, sm.CreatedAt.UnixMilli())
	if err != nil {
		return apperr.WrapInternal(err, "insert progressive summary")
	}
	return nil
}

// GetProgressiveSummary returns the most recently written summary for
// (memoryID, layer), or NotFound if none exists.
func (s *SQLiteStore) GetProgressiveSummary(memoryID string, layer int) (*ProgressiveSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, memory_id, layer, content, created_at FROM progressive_summaries
		WHERE memory_id = ? AND layer = ? ORDER BY created_at DESC LIMIT 1
	`, memoryID, layer)

	var sm ProgressiveSummary
	var createdAtMs int64
	if err := row.Scan(&sm.ID, &sm.MemoryID, &sm.Layer, &sm.Content, &createdAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("summary for memory %s layer %d not found", memoryID, layer)
		}
		return nil, apperr.WrapInternal(err, "get progressive summary")
	}
	sm.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &sm, nil
}
