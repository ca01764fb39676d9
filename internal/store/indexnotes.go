package store

import (
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
)

// maxKeyMemories bounds how many memory ids an index note pins.
const maxKeyMemories = 5

// RefreshIndexNote recomputes the hub note for a topic: total memory count
// plus the top key memories by importance then recency. The topic row's
// is_index_note flag is set alongside, so hierarchy reads can surface hub
// topics without joining index_notes.
func (s *SQLiteStore) RefreshIndexNote(topicID string) (*IndexNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.topicExistsUnlocked(topicID) {
		return nil, apperr.NewNotFound("topic %s not found", topicID)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE topic_id = ?`, topicID).Scan(&count); err != nil {
		return nil, apperr.WrapInternal(err, "count topic memories")
	}

	rows, err := s.db.Query(`
		SELECT id FROM memories WHERE topic_id = ?
		ORDER BY importance DESC, created_at DESC
		LIMIT ?
	`, topicID, maxKeyMemories)
	if err != nil {
		return nil, apperr.WrapInternal(err, "select key memories")
	}
	defer rows.Close()

	var keyMemories []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.WrapInternal(err, "scan key memory")
		}
		keyMemories = append(keyMemories, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := &IndexNote{
		ID:          ids.New(ids.PrefixIndexNote),
		ScopeType:   "topic",
		ScopeID:     topicID,
		MemoryCount: count,
		KeyMemories: keyMemories,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.upsertIndexNoteUnlocked(note); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`UPDATE topics SET is_index_note = 1 WHERE id = ?`, topicID); err != nil {
		return nil, apperr.WrapInternal(err, "flag index-note topic")
	}
	return note, nil
}
