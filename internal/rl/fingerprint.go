package rl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Key prefixes distinguish how a state key was derived.
const (
	exactKeyPrefix    = "exact_"
	semanticKeyPrefix = "sem_"
)

// DefaultSimilarityThreshold is the cosine similarity at which two requests
// are treated as the same state.
const DefaultSimilarityThreshold = 0.92

// DefaultEmbeddingCacheSize bounds both the text→vector cache and the
// number of known state vectors.
const DefaultEmbeddingCacheSize = 1000

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Normalize lower-cases text and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ExactKey returns the exact-mode state key for text.
// Texts with equal normalized forms always map to the same key.
func ExactKey(text string) string {
	return exactKeyPrefix + shortHash(Normalize(text))
}

func semanticKey(text string) string {
	return semanticKeyPrefix + shortHash(Normalize(text))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Fingerprinter derives state keys from request text.
type Fingerprinter struct {
	mu        sync.Mutex
	embedder  Embedder
	threshold float64
	// vectors caches embeddings by raw request text.
	vectors *lru.Cache[string, []float64]
	// states maps known semantic state keys to their founding vector.
	states *lru.Cache[string, []float64]
	log    zerolog.Logger
}

// NewExactFingerprinter returns a fingerprinter that only hashes text.
func NewExactFingerprinter() *Fingerprinter {
	return &Fingerprinter{log: zerolog.Nop()}
}

// NewEmbeddingFingerprinter returns a fingerprinter that merges requests
// whose embeddings are at least threshold-similar. cacheSize bounds the
// embedding cache and the set of known states; least recently used entries
// are evicted first.
func NewEmbeddingFingerprinter(embedder Embedder, threshold float64, cacheSize int, log zerolog.Logger) (*Fingerprinter, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding fingerprinter requires an embedder")
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if cacheSize < 1 {
		cacheSize = DefaultEmbeddingCacheSize
	}

	vectors, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	states, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create state cache: %w", err)
	}

	return &Fingerprinter{
		embedder:  embedder,
		threshold: threshold,
		vectors:   vectors,
		states:    states,
		log:       log,
	}, nil
}

// UsesEmbeddings reports whether semantic matching is enabled.
func (f *Fingerprinter) UsesEmbeddings() bool {
	return f.embedder != nil
}

// CachedEmbeddings returns the number of cached text embeddings.
func (f *Fingerprinter) CachedEmbeddings() int {
	if f.vectors == nil {
		return 0
	}
	return f.vectors.Len()
}

// Key returns the state key for text. It never fails: embedding errors
// degrade to the exact key for this call.
func (f *Fingerprinter) Key(ctx context.Context, text string) string {
	if f.embedder == nil {
		return ExactKey(text)
	}

	vec, err := f.embed(ctx, text)
	if err != nil {
		f.log.Warn().Err(err).Msg("embedding failed, using exact state key")
		return ExactKey(text)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bestKey := ""
	bestSim := -1.0
	for _, key := range f.states.Keys() {
		stateVec, ok := f.states.Peek(key)
		if !ok {
			continue
		}
		if sim := cosine(vec, stateVec); sim > bestSim {
			bestKey, bestSim = key, sim
		}
	}

	if bestKey != "" && bestSim >= f.threshold {
		// Touch so frequently matched states survive eviction.
		f.states.Get(bestKey)
		return bestKey
	}

	key := semanticKey(text)
	f.states.Add(key, vec)
	f.log.Debug().Str("state_key", key).Float64("best_similarity", bestSim).Msg("new semantic state")
	return key
}

func (f *Fingerprinter) embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := f.vectors.Get(text); ok {
		return vec, nil
	}

	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 || norm(vec) == 0 {
		return nil, fmt.Errorf("embedder returned a zero vector")
	}

	f.vectors.Add(text, vec)
	return vec, nil
}

// StateVectors returns a copy of the known semantic state vectors.
func (f *Fingerprinter) StateVectors() map[string][]float64 {
	if f.states == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string][]float64, f.states.Len())
	for _, key := range f.states.Keys() {
		if vec, ok := f.states.Peek(key); ok {
			out[key] = append([]float64(nil), vec...)
		}
	}
	return out
}

// ResetStates forgets every known semantic state. Cached text embeddings are kept.
func (f *Fingerprinter) ResetStates() {
	if f.states == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states.Purge()
}

// LoadStateVectors seeds known states, typically from a persisted snapshot.
func (f *Fingerprinter) LoadStateVectors(vectors map[string][]float64) {
	if f.states == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, vec := range vectors {
		if len(vec) > 0 {
			f.states.Add(key, append([]float64(nil), vec...))
		}
	}
}

// cosine returns the cosine similarity of a and b, or -1 when the vectors
// have different lengths or zero norm.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
