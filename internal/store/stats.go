package store

import (
	"github.com/ashvinar/memory-layer/internal/apperr"
)

// Stats is the counters snapshot served by the ingestion service.
type Stats struct {
	Turns      int `json:"turns"`
	Memories   int `json:"memories"`
	Workspaces int `json:"workspaces"`
	Projects   int `json:"projects"`
	Areas      int `json:"areas"`
	Topics     int `json:"topics"`
	Relations  int `json:"relations"`
}

// GetStats counts the primary tables in one pass under the read gate.
func (s *SQLiteStore) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"turns", &st.Turns},
		{"memories", &st.Memories},
		{"workspaces", &st.Workspaces},
		{"projects", &st.Projects},
		{"areas", &st.Areas},
		{"topics", &st.Topics},
		{"memory_relations", &st.Relations},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + c.table).Scan(c.dst); err != nil {
			return nil, apperr.WrapInternal(err, "count %s", c.table)
		}
	}
	return &st, nil
}

// TopicCount pairs a free-form topic string with how many memories carry
// it.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// ListTopicCounts aggregates memories by their free-form topic string,
// most populous first.
func (s *SQLiteStore) ListTopicCounts() ([]TopicCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT topic, COUNT(*) AS n FROM memories
		WHERE topic != ''
		GROUP BY topic
		ORDER BY n DESC, topic ASC
	`)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list topic counts")
	}
	defer rows.Close()

	var out []TopicCount
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, apperr.WrapInternal(err, "scan topic count")
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
