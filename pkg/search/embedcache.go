package search

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/ashvinar/memory-layer/internal/store"
)

// Embedder is the pluggable embedding capability: one method, injected at
// startup. No embedder is required for correctness.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// FallbackDimensions is the vector width of the deterministic placeholder
// embedder.
const FallbackDimensions = 384

// FallbackEmbedder is the default placeholder: a deterministic 384-dim
// mapping of character codepoints, L2-normalized. It carries no semantics
// and exists so the embedding surface works with no provider configured.
type FallbackEmbedder struct{}

// Embed folds the text's codepoints into a fixed-width vector and
// normalizes it.
func (FallbackEmbedder) Embed(text string) ([]float32, error) {
	v := make([]float32, FallbackDimensions)
	for i, r := range text {
		v[i%FallbackDimensions] += float32(r % 997)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EmbedCache is the read-through per-text cache in front of an Embedder:
// memory first, then the store's embedding_cache table, then the embedder
// itself. Reads take the read lock; only a miss takes the write lock.
type EmbedCache struct {
	mu       sync.RWMutex
	embedder Embedder
	store    store.Storer
	entries  map[string][]float32
}

// NewEmbedCache builds a cache over embedder, persisting vectors through s.
// A nil embedder falls back to the deterministic placeholder.
func NewEmbedCache(embedder Embedder, s store.Storer) *EmbedCache {
	if embedder == nil {
		embedder = FallbackEmbedder{}
	}
	return &EmbedCache{
		embedder: embedder,
		store:    s,
		entries:  make(map[string][]float32),
	}
}

// Embed returns the vector for text, computing and caching it on miss.
func (c *EmbedCache) Embed(text string) ([]float32, error) {
	key := textHash(text)

	c.mu.RLock()
	if v, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if blob, err := c.store.GetCachedEmbedding(key); err == nil {
		v := decodeVector(blob)
		c.mu.Lock()
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	}

	v, err := c.embedder.Embed(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()

	// Persistence failures degrade the cache, not the caller.
	_ = c.store.UpsertCachedEmbedding(key, encodeVector(v))
	return v, nil
}

// Nearest embeds text and returns the closest cached vectors by cosine
// distance, via the store's sqlite-vec query.
func (c *EmbedCache) Nearest(text string, limit int) ([]store.EmbeddingNeighbor, error) {
	v, err := c.Embed(text)
	if err != nil {
		return nil, err
	}
	return c.store.SimilarEmbeddings(encodeVector(v), limit)
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// encodeVector lays the vector out as little-endian float32 bytes, the
// blob format sqlite-vec's distance functions accept directly.
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

func decodeVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
