package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// MemoryNarrative bundles every read-only aggregation available for a
// memory into a single snapshot: its evolution trail, version history, and
// the relations touching it.
type MemoryNarrative struct {
	Memory            *Memory
	EvolutionTrail    []*Memory
	Versions          []*MemoryVersion
	IncomingRelations []*MemoryRelation
	OutgoingRelations []*MemoryRelation
}

const memorySearchSelect = `
	SELECT m.id, m.kind, m.topic, m.text, m.snippet_title, m.snippet_text, m.snippet_location, m.snippet_language,
		m.entities, m.provenance, m.created_at, m.ttl_seconds, m.topic_id, m.importance, m.status, m.version, m.superseded_by,
		bm25(memories_fts) AS rank
	FROM memories_fts
	JOIN memories m ON m.rowid = memories_fts.rowid
`

// SearchMemories runs an FTS5 match ordered by the engine's native bm25
// relevance (lower is better; pkg/search builds its hybrid score on top).
// Malformed FTS query syntax surfaces as apperr.BadRequest (caller maps to
// HTTP 400).
func (s *SQLiteStore) SearchMemories(query string, limit int) ([]SearchHit, error) {
	return s.searchMemories(memorySearchSelect+`WHERE memories_fts MATCH ? ORDER BY rank LIMIT ?`, limit, query, limit)
}

// SearchMemoriesInTopic narrows the same FTS match to a single topic scope.
func (s *SQLiteStore) SearchMemoriesInTopic(query, topicID string, limit int) ([]SearchHit, error) {
	return s.searchMemories(
		memorySearchSelect+`WHERE memories_fts MATCH ? AND m.topic_id = ? ORDER BY rank LIMIT ?`,
		limit, query, topicID, limit,
	)
}

func (s *SQLiteStore) searchMemories(sql string, limit int, args ...any) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(sql, args...)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, apperr.NewBadRequest("invalid search query: %v", err)
		}
		return nil, apperr.WrapInternal(err, "search memories")
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		m, rank, err := scanMemorySearchRow(rows)
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan search hit")
		}
		hits = append(hits, SearchHit{Memory: m, Score: rank})
	}
	return hits, rows.Err()
}

func scanMemorySearchRow(rows *sql.Rows) (*Memory, float64, error) {
	var (
		m                                                   Memory
		kind, status                                        string
		snippetTitle, snippetText, snippetLoc, snippetLang  sql.NullString
		entitiesJSON, provenanceJSON                        string
		createdAtMs                                         int64
		ttl                                                 sql.NullInt64
		topicID, supersededBy                               sql.NullString
		rank                                                float64
	)
	if err := rows.Scan(&m.ID, &kind, &m.Topic, &m.Text, &snippetTitle, &snippetText, &snippetLoc, &snippetLang,
		&entitiesJSON, &provenanceJSON, &createdAtMs, &ttl, &topicID, &m.Importance, &status, &m.Version,
		&supersededBy, &rank); err != nil {
		return nil, 0, err
	}
	m.Kind = MemoryKind(kind)
	m.Status = MemoryStatus(status)
	m.CreatedAt = timeFromMillis(createdAtMs)
	if snippetText.Valid {
		m.Snippet = &Snippet{Title: snippetTitle.String, Text: snippetText.String, Location: snippetLoc.String, Language: snippetLang.String}
	}
	_ = json.Unmarshal([]byte(entitiesJSON), &m.Entities)
	_ = json.Unmarshal([]byte(provenanceJSON), &m.Provenance)
	if ttl.Valid {
		v := ttl.Int64
		m.TTLSeconds = &v
	}
	if topicID.Valid {
		v := topicID.String
		m.TopicID = &v
	}
	if supersededBy.Valid {
		v := supersededBy.String
		m.SupersededBy = &v
	}
	return &m, rank, nil
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "malformed match") ||
		strings.Contains(msg, "unterminated string")
}

// GetDecisionChain returns every decision-kind memory filed under a topic,
// oldest first, approximating the narrative order decisions were made in.
func (s *SQLiteStore) GetDecisionChain(topicID string) ([]*Memory, error) {
	return s.listMemories(`WHERE topic_id = ? AND kind = ? ORDER BY created_at ASC`, topicID, string(KindDecision))
}

// GetEvolutionTrail follows `supersedes` edges backward from memoryID to
// the earliest ancestor, then returns the chain oldest-first. Cycles are
// truncated: a memory id already seen stops the walk instead of looping
// forever.
func (s *SQLiteStore) GetEvolutionTrail(memoryID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := []string{memoryID}
	seen := map[string]bool{memoryID: true}
	cur := memoryID

	for {
		var predecessor string
		err := s.db.QueryRow(`
			SELECT target_id FROM memory_relations WHERE source_id = ? AND type = ? LIMIT 1
		`, cur, string(RelSupersedes)).Scan(&predecessor)
		if err != nil {
			break
		}
		if seen[predecessor] {
			break
		}
		trail = append([]string{predecessor}, trail...)
		seen[predecessor] = true
		cur = predecessor
	}

	out := make([]*Memory, 0, len(trail))
	for _, id := range trail {
		m, err := s.getMemoryUnlocked(id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// FindContradictions returns every `contradicts` relation touching a memory
// filed under topicID.
func (s *SQLiteStore) FindContradictions(topicID string) ([]*MemoryRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT r.id, r.source_id, r.target_id, r.type, r.rationale, r.created_at
		FROM memory_relations r
		JOIN memories m ON m.id = r.source_id OR m.id = r.target_id
		WHERE r.type = ? AND m.topic_id = ?
	`, string(RelContradicts), topicID)
	if err != nil {
		return nil, apperr.WrapInternal(err, "find contradictions")
	}
	return scanRelationRows(rows)
}

// GetQuestionResolution follows an outgoing `questions` relation from
// memoryID to the memory it questions, and returns whatever memory
// eventually superseded that target (the resolution), if any.
func (s *SQLiteStore) GetQuestionResolution(memoryID string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var questioned string
	err := s.db.QueryRow(`
		SELECT target_id FROM memory_relations WHERE source_id = ? AND type = ? LIMIT 1
	`, memoryID, string(RelQuestions)).Scan(&questioned)
	if err != nil {
		return nil, apperr.NewNotFound("no question relation from %s", memoryID)
	}

	target, err := s.getMemoryUnlocked(questioned)
	if err != nil {
		return nil, err
	}
	if target.SupersededBy == nil {
		return nil, apperr.NewNotFound("question %s not yet resolved", memoryID)
	}
	return s.getMemoryUnlocked(*target.SupersededBy)
}

// GetImplementationTracking returns every memory that `implements`
// memoryID, most recent first.
func (s *SQLiteStore) GetImplementationTracking(memoryID string) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT source_id FROM memory_relations WHERE target_id = ? AND type = ? ORDER BY created_at DESC
	`, memoryID, string(RelImplements))
	if err != nil {
		return nil, apperr.WrapInternal(err, "list implementations")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.WrapInternal(err, "scan implementation source")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Memory, 0, len(ids))
	for _, id := range ids {
		m, err := s.getMemoryUnlocked(id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMemoryNarrative composes the other narrative queries into a single
// snapshot for a memory: its evolution trail, version history, and the
// relations touching it in either direction.
func (s *SQLiteStore) GetMemoryNarrative(memoryID string) (*MemoryNarrative, error) {
	m, err := s.GetMemory(memoryID)
	if err != nil {
		return nil, err
	}
	trail, err := s.GetEvolutionTrail(memoryID)
	if err != nil {
		return nil, err
	}
	versions, err := s.ListVersions(memoryID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.ListRelationsTo(memoryID)
	if err != nil {
		return nil, err
	}
	outgoing, err := s.ListRelationsFrom(memoryID)
	if err != nil {
		return nil, err
	}
	return &MemoryNarrative{
		Memory:            m,
		EvolutionTrail:    trail,
		Versions:          versions,
		IncomingRelations: incoming,
		OutgoingRelations: outgoing,
	}, nil
}

// getMemoryUnlocked reads a memory without acquiring mu, for use by callers
// already holding the read lock.
func (s *SQLiteStore) getMemoryUnlocked(id string) (*Memory, error) {
	row := s.db.QueryRow(memorySelect+`WHERE id = ?`, id)
	return scanMemoryRow(row)
}

func scanRelationRows(rows *sql.Rows) ([]*MemoryRelation, error) {
	defer rows.Close()
	var out []*MemoryRelation
	for rows.Next() {
		var r MemoryRelation
		var typ string
		var rationale sql.NullString
		var createdAtMs int64
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &typ, &rationale, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan relation")
		}
		r.Type = RelationType(typ)
		if rationale.Valid {
			v := rationale.String
			r.Rationale = &v
		}
		r.CreatedAt = timeFromMillis(createdAtMs)
		out = append(out, &r)
	}
	return out, rows.Err()
}
