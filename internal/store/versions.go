package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// CreateMemoryVersion reads the memory's current version counter v, writes
// a version row with version_number=v holding the *old* content, then
// advances the memory's counter to v+1. The counter only ever advances
// alongside a written row, so versions are contiguous 1..k by
// construction.
func (s *SQLiteStore) CreateMemoryVersion(memoryID, oldContent string, changeSummary *string) (*MemoryVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v int
	err := s.db.QueryRow(`SELECT version FROM memories WHERE id = ?`, memoryID).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("memory %s not found", memoryID)
		}
		return nil, apperr.WrapInternal(err, "read memory version counter")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperr.WrapInternal(err, "begin version tx")
	}
	defer tx.Rollback()

	mv := &MemoryVersion{
		ID:            ids.New(ids.PrefixVersion),
		MemoryID:      memoryID,
		Content:       oldContent,
		VersionNumber: v,
		ChangeSummary: changeSummary,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = tx.Exec(`
		INSERT INTO memory_versions (id, memory_id, content, version_number, change_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mv.ID, mv.MemoryID, mv.Content, mv.VersionNumber, nullableRationale(mv.ChangeSummary), mv.CreatedAt.UnixMilli())
	if err != nil {
		return nil, apperr.WrapInternal(err, "insert version")
	}

	if _, err := tx.Exec(`UPDATE memories SET version = ? WHERE id = ?`, v+1, memoryID); err != nil {
		return nil, apperr.WrapInternal(err, "advance version counter")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.WrapInternal(err, "commit version tx")
	}
	return mv, nil
}

// RevertMemoryToVersion atomically snapshots the current content as a new
// version (change summary "reverted to v<target>: <reason>"), then
// overwrites memory.text with the target version's content.
func (s *SQLiteStore) RevertMemoryToVersion(memoryID string, targetVersion int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var currentText string
	var currentVersion int
	err := s.db.QueryRow(`SELECT text, version FROM memories WHERE id = ?`, memoryID).Scan(&currentText, &currentVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("memory %s not found", memoryID)
		}
		return apperr.WrapInternal(err, "read memory")
	}

	var targetContent string
	err = s.db.QueryRow(`SELECT content FROM memory_versions WHERE memory_id = ? AND version_number = ?`,
		memoryID, targetVersion).Scan(&targetContent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("version %d of memory %s not found", targetVersion, memoryID)
		}
		return apperr.WrapInternal(err, "read target version")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.WrapInternal(err, "begin revert tx")
	}
	defer tx.Rollback()

	summary := fmt.Sprintf("reverted to v%d: %s", targetVersion, reason)
	_, err = tx.Exec(`
		INSERT INTO memory_versions (id, memory_id, content, version_number, change_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ids.New(ids.PrefixVersion), memoryID, currentText, currentVersion, summary, time.Now().UTC().UnixMilli())
	if err != nil {
		return apperr.WrapInternal(err, "insert revert snapshot")
	}

	if _, err := tx.Exec(`UPDATE memories SET text = ?, version = ? WHERE id = ?`,
		targetContent, currentVersion+1, memoryID); err != nil {
		return apperr.WrapInternal(err, "overwrite memory text")
	}

	return tx.Commit()
}

// PruneOldVersions keeps the keepN most recent version rows for a memory,
// deleting the rest, and returns how many were removed.
func (s *SQLiteStore) PruneOldVersions(memoryID string, keepN int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM memory_versions
		WHERE memory_id = ? AND version_number NOT IN (
			SELECT version_number FROM memory_versions
			WHERE memory_id = ?
			ORDER BY version_number DESC
			LIMIT ?
		)
	`, memoryID, memoryID, keepN)
	if err != nil {
		return 0, apperr.WrapInternal(err, "prune versions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.WrapInternal(err, "rows affected")
	}
	return int(n), nil
}

// ListVersions returns every version row for a memory, oldest first.
func (s *SQLiteStore) ListVersions(memoryID string) ([]*MemoryVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, memory_id, content, version_number, change_summary, created_at
		FROM memory_versions WHERE memory_id = ? ORDER BY version_number ASC
	`, memoryID)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list versions")
	}
	defer rows.Close()

	var out []*MemoryVersion
	for rows.Next() {
		var mv MemoryVersion
		var changeSummary sql.NullString
		var createdAtMs int64
		if err := rows.Scan(&mv.ID, &mv.MemoryID, &mv.Content, &mv.VersionNumber, &changeSummary, &createdAtMs); err != nil {
			return nil, apperr.WrapInternal(err, "scan version")
		}
		if changeSummary.Valid {
			v := changeSummary.String
			mv.ChangeSummary = &v
		}
		mv.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		out = append(out, &mv)
	}
	return out, rows.Err()
}
