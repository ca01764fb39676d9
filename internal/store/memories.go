package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// CreateMemory persists a memory. Fails NotFound if topic_id references a
// missing topic (topic_id may be null).
func (s *SQLiteStore) CreateMemory(m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.TopicID != nil {
		if !s.topicExistsUnlocked(*m.TopicID) {
			return apperr.NewNotFound("topic %s not found", *m.TopicID)
		}
	}

	m.Importance = ClampImportance(m.Importance)
	entitiesJSON, err := json.Marshal(nonNilStrings(m.Entities))
	if err != nil {
		return apperr.WrapInternal(err, "marshal entities")
	}
	provenanceJSON, err := json.Marshal(nonNilStrings(m.Provenance))
	if err != nil {
		return apperr.WrapInternal(err, "marshal provenance")
	}

	var snippetTitle, snippetText, snippetLoc, snippetLang sql.NullString
	if m.Snippet != nil {
		snippetTitle = nullString(m.Snippet.Title)
		snippetText = sql.NullString{String: m.Snippet.Text, Valid: true}
		snippetLoc = nullString(m.Snippet.Location)
		snippetLang = nullString(m.Snippet.Language)
	}

	var ttl sql.NullInt64
	if m.TTLSeconds != nil {
		ttl = sql.NullInt64{Int64: *m.TTLSeconds, Valid: true}
	}

	if m.Version == 0 {
		m.Version = 1
	}
	if m.Status == "" {
		m.Status = StatusFleeting
	}

	_, err = s.db.Exec(`
		INSERT INTO memories (
			id, kind, topic, text, snippet_title, snippet_text, snippet_location, snippet_language,
			entities, provenance, created_at, ttl_seconds, topic_id, importance, status, version, superseded_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Kind), m.Topic, m.Text, snippetTitle, snippetText, snippetLoc, snippetLang,
		string(entitiesJSON), string(provenanceJSON), m.CreatedAt.UnixMilli(), ttl, nullableStringPtr(m.TopicID),
		m.Importance, string(m.Status), m.Version, nullableStringPtr(m.SupersededBy))
	if err != nil {
		if isUniqueConstraint(err) {
			return apperr.NewConflict("memory %s already exists", m.ID)
		}
		return apperr.WrapInternal(err, "insert memory")
	}
	return nil
}

// GetMemory reads a memory by id.
func (s *SQLiteStore) GetMemory(id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(memorySelect+`WHERE id = ?`, id)
	return scanMemoryRow(row)
}

// UpdateMemory overwrites a memory's mutable fields. If the text changes, a
// version row preserving the *previous* text under the current version
// number is written and the counter advances by one, in one transaction
// together with the update; changeSummary, when non-empty, is stored on
// that row. An update that leaves the text as it is writes no version row.
func (s *SQLiteStore) UpdateMemory(m *Memory, changeSummary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevText string
	var prevVersion int
	err := s.db.QueryRow(`SELECT text, version FROM memories WHERE id = ?`, m.ID).Scan(&prevText, &prevVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("memory %s not found", m.ID)
		}
		return apperr.WrapInternal(err, "read memory for update")
	}

	m.Importance = ClampImportance(m.Importance)
	entitiesJSON, _ := json.Marshal(nonNilStrings(m.Entities))
	provenanceJSON, _ := json.Marshal(nonNilStrings(m.Provenance))

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.WrapInternal(err, "begin update tx")
	}
	defer tx.Rollback()

	newVersion := prevVersion
	if prevText != m.Text {
		var summaryPtr *string
		if changeSummary != "" {
			summaryPtr = &changeSummary
		}
		if _, err := tx.Exec(`
			INSERT INTO memory_versions (id, memory_id, content, version_number, change_summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ids.New(ids.PrefixVersion), m.ID, prevText, prevVersion, nullableRationale(summaryPtr), time.Now().UTC().UnixMilli()); err != nil {
			return apperr.WrapInternal(err, "insert version on update")
		}
		newVersion = prevVersion + 1
	}

	var snippetTitle, snippetText, snippetLoc, snippetLang sql.NullString
	if m.Snippet != nil {
		snippetTitle = nullString(m.Snippet.Title)
		snippetText = sql.NullString{String: m.Snippet.Text, Valid: true}
		snippetLoc = nullString(m.Snippet.Location)
		snippetLang = nullString(m.Snippet.Language)
	}
	var ttl sql.NullInt64
	if m.TTLSeconds != nil {
		ttl = sql.NullInt64{Int64: *m.TTLSeconds, Valid: true}
	}

	_, err = tx.Exec(`
		UPDATE memories SET kind=?, topic=?, text=?, snippet_title=?, snippet_text=?, snippet_location=?,
			snippet_language=?, entities=?, provenance=?, ttl_seconds=?, topic_id=?, importance=?, status=?,
			version=?, superseded_by=?
		WHERE id = ?
	`, string(m.Kind), m.Topic, m.Text, snippetTitle, snippetText, snippetLoc, snippetLang,
		string(entitiesJSON), string(provenanceJSON), ttl, nullableStringPtr(m.TopicID), m.Importance,
		string(m.Status), newVersion, nullableStringPtr(m.SupersededBy), m.ID)
	if err != nil {
		return apperr.WrapInternal(err, "update memory")
	}
	m.Version = newVersion

	return tx.Commit()
}

// DeleteMemory removes a memory row; the FTS row goes with it via the
// AFTER DELETE trigger.
func (s *SQLiteStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return apperr.WrapInternal(err, "delete memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NewNotFound("memory %s not found", id)
	}
	return nil
}

// ListMemoriesByTopic returns every memory filed under a topic, most
// recent first.
func (s *SQLiteStore) ListMemoriesByTopic(topicID string) ([]*Memory, error) {
	return s.listMemories(`WHERE topic_id = ? ORDER BY created_at DESC`, topicID)
}

// ListMemoriesByTopicString returns the most recent memories whose
// free-form topic string equals topic, bounded by limit. This is the
// literal-topic search path: no ranking beyond recency.
func (s *SQLiteStore) ListMemoriesByTopicString(topic string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.listMemories(`WHERE topic = ? ORDER BY created_at DESC LIMIT ?`, topic, limit)
}

// ListMemoriesByKind returns every memory of a given kind, most recent
// first.
func (s *SQLiteStore) ListMemoriesByKind(kind MemoryKind) ([]*Memory, error) {
	return s.listMemories(`WHERE kind = ? ORDER BY created_at DESC`, string(kind))
}

// ListRecentMemories returns the most recently created memories across all
// topics, bounded by limit.
func (s *SQLiteStore) ListRecentMemories(limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.listMemories(`ORDER BY created_at DESC LIMIT ?`, limit)
}

// GetHighPriorityMemories returns memories with importance >= 8, ordered
// by importance desc then recency desc, bounded by limit. An empty result
// is not an error; the composer renders an empty capsule from it.
func (s *SQLiteStore) GetHighPriorityMemories(limit int) ([]*Memory, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.listMemories(`WHERE importance >= 8 ORDER BY importance DESC, created_at DESC LIMIT ?`, limit)
}

// ArchiveStaleMemories moves fleeting memories older than olderThan to
// status "archived". Run periodically by the ingestion service.
func (s *SQLiteStore) ArchiveStaleMemories(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC().UnixMilli()
	res, err := s.db.Exec(`UPDATE memories SET status = ? WHERE status = ? AND created_at < ?`,
		string(StatusArchived), string(StatusFleeting), cutoff)
	if err != nil {
		return 0, apperr.WrapInternal(err, "archive stale memories")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.WrapInternal(err, "rows affected")
	}
	return int(n), nil
}

// UpdateMemoriesTopic bulk-reassigns every memory whose free-form topic
// string equals oldTopic to the given topic id, returning the count
// changed (storage op `update_memories_topic`).
func (s *SQLiteStore) UpdateMemoriesTopic(oldTopic, newTopicID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE memories SET topic_id = ? WHERE topic = ?`, newTopicID, oldTopic)
	if err != nil {
		return 0, apperr.WrapInternal(err, "update memories topic")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.WrapInternal(err, "rows affected")
	}
	return int(n), nil
}

const memorySelect = `
	SELECT id, kind, topic, text, snippet_title, snippet_text, snippet_location, snippet_language,
		entities, provenance, created_at, ttl_seconds, topic_id, importance, status, version, superseded_by
	FROM memories
`

func (s *SQLiteStore) listMemories(whereAndOrder string, args ...any) ([]*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(memorySelect+whereAndOrder, args...)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list memories")
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan memory")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemoryRow(row *sql.Row) (*Memory, error) {
	m, err := scanMemoryGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NewNotFound("memory not found")
	}
	if err != nil {
		return nil, apperr.WrapInternal(err, "scan memory")
	}
	return m, nil
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	return scanMemoryGeneric(rows)
}

func scanMemoryGeneric(r rowScanner) (*Memory, error) {
	var (
		m                                                        Memory
		kind, status                                              string
		snippetTitle, snippetText, snippetLoc, snippetLang        sql.NullString
		entitiesJSON, provenanceJSON                              string
		createdAtMs                                               int64
		ttl                                                       sql.NullInt64
		topicID, supersededBy                                     sql.NullString
	)
	if err := r.Scan(&m.ID, &kind, &m.Topic, &m.Text, &snippetTitle, &snippetText, &snippetLoc, &snippetLang,
		&entitiesJSON, &provenanceJSON, &createdAtMs, &ttl, &topicID, &m.Importance, &status, &m.Version, &supersededBy); err != nil {
		return nil, err
	}
	m.Kind = MemoryKind(kind)
	m.Status = MemoryStatus(status)
	m.CreatedAt = time.UnixMilli(createdAtMs).UTC()

	if snippetText.Valid {
		m.Snippet = &Snippet{
			Title:    snippetTitle.String,
			Text:     snippetText.String,
			Location: snippetLoc.String,
			Language: snippetLang.String,
		}
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
	return &m, nil
}

func (s *SQLiteStore) topicExistsUnlocked(id string) bool {
	var n int
	_ = s.db.QueryRow(`SELECT 1 FROM topics WHERE id = ?`, id).Scan(&n)
	return n == 1
}

func nonNilStrings(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
