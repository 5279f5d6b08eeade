package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("A 2br Condo, near-beach!")
	assert.Equal(t, []string{"2br", "condo", "near", "beach"}, got)
}

func TestTfidfMaxDFExcludesCommonTerms(t *testing.T) {
	v := NewTfidfVectorizer(0.7)
	_, err := v.FitTransform([]string{
		"apartment studio",
		"apartment loft",
		"apartment house",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"house", "loft", "studio"}, v.Vocabulary())
}

func TestTfidfRowsAreUnitLength(t *testing.T) {
	v := NewTfidfVectorizer(1.0)
	x, err := v.FitTransform([]string{"studio loft", "studio studio house"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, vals := x.Row(i)
		var norm float64
		for _, w := range vals {
			norm += w * w
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-12)
	}

	// Vocabulary is [house loft studio]; studio is in both documents so its
	// idf is 1 and the loft/studio ratio in row 0 is loft's idf.
	assert.InDelta(t, math.Log(3.0/2.0)+1, x.At(0, 1)/x.At(0, 2), 1e-12)
}

func TestTfidfTransformIgnoresUnseenTerms(t *testing.T) {
	v := NewTfidfVectorizer(0.7)
	require.NoError(t, v.Fit([]string{"cozy studio", "sunny loft", "garden house"}))

	x, err := v.Transform([]string{"penthouse skyline", "cozy penthouse"})
	require.NoError(t, err)

	r, c := x.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, len(v.Vocabulary()), c)

	idx, _ := x.Row(0)
	assert.Empty(t, idx, "a title made only of unseen terms must be a zero row")

	idx, vals := x.Row(1)
	require.Len(t, idx, 1)
	assert.Equal(t, "cozy", v.Vocabulary()[idx[0]])
	assert.InDelta(t, 1.0, vals[0], 1e-12)
}

func TestTfidfEmptyVocabulary(t *testing.T) {
	v := NewTfidfVectorizer(0.5)
	err := v.Fit([]string{"same words", "same words"})
	assert.ErrorIs(t, err, ErrEmptyVocabulary)

	_, err = NewTfidfVectorizer(0.7).Transform([]string{"x"})
	assert.ErrorIs(t, err, ErrNotFitted)
}
