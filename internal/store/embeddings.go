package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// EmbeddingNeighbor is one nearest-neighbor hit from the embedding cache.
type EmbeddingNeighbor struct {
	TextHash string  `json:"textHash"`
	Distance float64 `json:"distance"`
}

// UpsertCachedEmbedding stores a vector blob under its text hash. Vectors
// are raw little-endian float32 sequences, the layout sqlite-vec's distance
// functions consume directly.
func (s *SQLiteStore) UpsertCachedEmbedding(textHash string, vector []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO embedding_cache (text_hash, vector, created_at) VALUES (?, ?, ?)
		ON CONFLICT(text_hash) DO UPDATE SET vector = excluded.vector
	`, textHash, vector, time.Now().UnixMilli())
	if err != nil {
		return apperr.WrapInternal(err, "upsert cached embedding")
	}
	return nil
}

// GetCachedEmbedding returns the vector blob stored for textHash.
func (s *SQLiteStore) GetCachedEmbedding(textHash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vector []byte
	err := s.db.QueryRow(`SELECT vector FROM embedding_cache WHERE text_hash = ?`, textHash).Scan(&vector)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("embedding %s not cached", textHash)
		}
		return nil, apperr.WrapInternal(err, "get cached embedding")
	}
	return vector, nil
}

// SimilarEmbeddings ranks cached vectors by cosine distance to the given
// vector via sqlite-vec's vec_distance_cosine, nearest first.
func (s *SQLiteStore) SimilarEmbeddings(vector []byte, limit int) ([]EmbeddingNeighbor, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT text_hash, vec_distance_cosine(vector, ?) AS dist
		FROM embedding_cache
		ORDER BY dist ASC
		LIMIT ?
	`, vector, limit)
	if err != nil {
		return nil, apperr.WrapInternal(err, "query similar embeddings")
	}
	defer rows.Close()

	var out []EmbeddingNeighbor
	for rows.Next() {
		var n EmbeddingNeighbor
		if err := rows.Scan(&n.TextHash, &n.Distance); err != nil {
			return nil, apperr.WrapInternal(err, "scan embedding neighbor")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
