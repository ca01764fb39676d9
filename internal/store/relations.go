package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// CreateRelation: if (source, target, type) already exists, returns that
// row's id (idempotent). If type is "supersedes", atomically sets
// memory(target).superseded_by = source in the same transaction.
func (s *SQLiteStore) CreateRelation(r *MemoryRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM memory_relations WHERE source_id = ? AND target_id = ? AND type = ?`,
		r.SourceID, r.TargetID, string(r.Type)).Scan(&existingID)
	if err == nil {
		r.ID = existingID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return apperr.WrapInternal(err, "lookup relation")
	}

	if !s.memoryExistsUnlocked(r.SourceID) || !s.memoryExistsUnlocked(r.TargetID) {
		return apperr.NewNotFound("source or target memory not found")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.WrapInternal(err, "begin relation tx")
	}
	defer tx.Rollback()

	if r.ID == "" {
		r.ID = ids.New(ids.PrefixRelation)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO memory_relations (id, source_id, target_id, type, rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.SourceID, r.TargetID, string(r.Type), nullableRationale(r.Rationale), r.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			// Lost the race to a concurrent insert; read back the winner.
			var winner string
			if qerr := s.db.QueryRow(`SELECT id FROM memory_relations WHERE source_id = ? AND target_id = ? AND type = ?`,
				r.SourceID, r.TargetID, string(r.Type)).Scan(&winner); qerr == nil {
				r.ID = winner
				return nil
			}
		}
		return apperr.WrapInternal(err, "insert relation")
	}

	if r.Type == RelSupersedes {
		if _, err := tx.Exec(`UPDATE memories SET superseded_by = ? WHERE id = ?`, r.SourceID, r.TargetID); err != nil {
			return apperr.WrapInternal(err, "set superseded_by")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.WrapInternal(err, "commit relation tx")
	}
	return nil
}

// DeleteRelation removes a relation by id; if its type was "supersedes" it
// clears superseded_by on the target.
func (s *SQLiteStore) DeleteRelation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r MemoryRelation
	var typ string
	err := s.db.QueryRow(`SELECT source_id, target_id, type FROM memory_relations WHERE id = ?`, id).
		Scan(&r.SourceID, &r.TargetID, &typ)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("relation %s not found", id)
		}
		return apperr.WrapInternal(err, "lookup relation")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.WrapInternal(err, "begin delete relation tx")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memory_relations WHERE id = ?`, id); err != nil {
		return apperr.WrapInternal(err, "delete relation")
	}

	if RelationType(typ) == RelSupersedes {
		if _, err := tx.Exec(`UPDATE memories SET superseded_by = NULL WHERE id = ? AND superseded_by = ?`,
			r.TargetID, r.SourceID); err != nil {
			return apperr.WrapInternal(err, "clear superseded_by")
		}
	}

	return tx.Commit()
}

// ListRelationsFrom returns every relation with the given source.
func (s *SQLiteStore) ListRelationsFrom(memoryID string) ([]*MemoryRelation, error) {
	return s.queryRelations(`WHERE source_id = ?`, memoryID)
}

// ListRelationsTo returns every relation with the given target.
func (s *SQLiteStore) ListRelationsTo(memoryID string) ([]*MemoryRelation, error) {
	return s.queryRelations(`WHERE target_id = ?`, memoryID)
}

// ListRelationsByType filters outgoing relations from memoryID by type.
func (s *SQLiteStore) ListRelationsByType(memoryID string, t RelationType) ([]*MemoryRelation, error) {
	return s.queryRelations(`WHERE source_id = ? AND type = ?`, memoryID, string(t))
}

func (s *SQLiteStore) queryRelations(where string, args ...any) ([]*MemoryRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, source_id, target_id, type, rationale, created_at FROM memory_relations `+where, args...)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list relations")
	}
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
		r.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) memoryExistsUnlocked(id string) bool {
	var n int
	_ = s.db.QueryRow(`SELECT 1 FROM memories WHERE id = ?`, id).Scan(&n)
	return n == 1
}

func nullableRationale(r *string) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *r, Valid: true}
}
