package rl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns fixed vectors keyed by normalized text.
type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
	fail    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding service unavailable")
	}
	vec, ok := f.vectors[Normalize(text)]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return vec, nil
}

func TestExactKey_NormalizationIdempotent(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"case", "Calculate the SUM of 10, 20, 30", "calculate the sum of 10, 20, 30"},
		{"whitespace", "  calculate\tthe sum\nof 10, 20, 30 ", "calculate the sum of 10, 20, 30"},
		{"identical", "format as report", "format as report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ExactKey(tt.a), ExactKey(tt.b))
		})
	}

	key := ExactKey("hello")
	assert.True(t, strings.HasPrefix(key, "exact_"))
	assert.Len(t, key, len("exact_")+16)
	assert.NotEqual(t, ExactKey("hello"), ExactKey("hello world"))
}

func TestFingerprinter_SemanticMatching(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"calculate the sum of 10, 20, 30":  {1, 0, 0},
		"add up 10, 20 and 30":             {0.99, 0.1, 0}, // cosine ≈ 0.995
		"what is 10 plus 20 plus 30":       {0.9, 0.43, 0}, // cosine ≈ 0.902
		"format these results as a report": {0, 1, 0},
	}}
	fp, err := NewEmbeddingFingerprinter(emb, 0.92, 10, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	base := fp.Key(ctx, "Calculate the sum of 10, 20, 30")
	assert.True(t, strings.HasPrefix(base, "sem_"))

	assert.Equal(t, base, fp.Key(ctx, "add up 10, 20 and 30"), "paraphrase above threshold shares the state")
	assert.NotEqual(t, base, fp.Key(ctx, "what is 10 plus 20 plus 30"), "below threshold mints a new state")
	assert.NotEqual(t, base, fp.Key(ctx, "format these results as a report"))

	calls := emb.calls
	fp.Key(ctx, "Calculate the sum of 10, 20, 30")
	assert.Equal(t, calls, emb.calls, "vectors are cached by raw text")
	assert.Equal(t, 4, fp.CachedEmbeddings())
	assert.Len(t, fp.StateVectors(), 3)
}

func TestFingerprinter_EmbeddingFailureFallsBackToExact(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	fp, err := NewEmbeddingFingerprinter(emb, 0, 0, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, ExactKey("sum 1 2"), fp.Key(context.Background(), "sum 1 2"))
	assert.True(t, fp.UsesEmbeddings())
}

func TestFingerprinter_LRUBoundsStates(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}}
	fp, err := NewEmbeddingFingerprinter(emb, 0.92, 2, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	fp.Key(ctx, "a")
	fp.Key(ctx, "b")
	fp.Key(ctx, "c")
	assert.Len(t, fp.StateVectors(), 2)
	assert.Equal(t, 2, fp.CachedEmbeddings())
}

func TestFingerprinter_LoadStateVectorsReusesKeys(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"sum 1 2":    {1, 0},
		"add 1 to 2": {0.98, 0.05},
	}}
	first, err := NewEmbeddingFingerprinter(emb, 0.92, 10, zerolog.Nop())
	require.NoError(t, err)
	key := first.Key(context.Background(), "sum 1 2")

	second, err := NewEmbeddingFingerprinter(emb, 0.92, 10, zerolog.Nop())
	require.NoError(t, err)
	second.LoadStateVectors(first.StateVectors())
	assert.Equal(t, key, second.Key(context.Background(), "add 1 to 2"))
}

func TestNewEmbeddingFingerprinter_RequiresEmbedder(t *testing.T) {
	_, err := NewEmbeddingFingerprinter(nil, 0.9, 10, zerolog.Nop())
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, -1.0, cosine([]float64{1}, []float64{1, 0}))
	assert.Equal(t, -1.0, cosine([]float64{0, 0}, []float64{1, 0}))
}
