package store

import "github.com/ashvinar/memory-layer/internal/apperr"

// CalculateMemoryImportance scores a memory deterministically: base 5,
// +min(incoming,3), +min(outgoing,4)/2, +2 if permanent,
// +min(summaryLayers,2), +3 if referenced by any index note; clamped to
// [0,10]. Pure of side effects beyond the read queries it issues.
func (s *SQLiteStore) CalculateMemoryImportance(memoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status string
	if err := s.db.QueryRow(`SELECT status FROM memories WHERE id = ?`, memoryID).Scan(&status); err != nil {
		return 0, apperr.NewNotFound("memory %s not found", memoryID)
	}

	var incoming, outgoing, summaryLayers, indexNoteRefs int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memory_relations WHERE target_id = ?`, memoryID).Scan(&incoming)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memory_relations WHERE source_id = ?`, memoryID).Scan(&outgoing)
	_ = s.db.QueryRow(`SELECT COUNT(DISTINCT layer) FROM progressive_summaries WHERE memory_id = ?`, memoryID).Scan(&summaryLayers)
	_ = s.db.QueryRow(`
		SELECT COUNT(*) FROM index_notes
		WHERE key_memories LIKE '%' || ? || '%'
	`, memoryID).Scan(&indexNoteRefs)

	score := 5
	score += min(incoming, 3)
	score += min(outgoing, 4) / 2
	if status == string(StatusPermanent) {
		score += 2
	}
	score += min(summaryLayers, 2)
	if indexNoteRefs > 0 {
		score += 3
	}

	return ClampImportance(score), nil
}
