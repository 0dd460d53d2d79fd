package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranspose(t *testing.T) {
	t.Run("rectangular", func(t *testing.T) {
		m := [][]float64{
			{1, 2, 3},
			{4, 5, 6},
		}
		out, err := Transpose(m)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 4}, {2, 5}, {3, 6}}, out)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Transpose(nil)
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = Transpose([][]float64{})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("ragged", func(t *testing.T) {
		_, err := Transpose([][]float64{{1, 2}, {3}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestMultiply(t *testing.T) {
	t.Run("product", func(t *testing.T) {
		a := [][]float64{
			{1, 2},
			{3, 4},
		}
		b := [][]float64{
			{5, 6},
			{7, 8},
		}
		out, err := Multiply(a, b)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{19, 22}, {43, 50}}, out)
	})

	t.Run("inner dimension mismatch", func(t *testing.T) {
		a := [][]float64{{1, 2, 3}}
		b := [][]float64{{1, 2}, {3, 4}}
		_, err := Multiply(a, b)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestMultiplyVector(t *testing.T) {
	m := [][]float64{
		{1, 2},
		{3, 4},
		{5, 6},
	}

	out, err := MultiplyVector(m, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 7, 11}, out)

	_, err = MultiplyVector(m, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestGaussJordan(t *testing.T) {
	t.Run("well conditioned 2x2", func(t *testing.T) {
		a := [][]float64{
			{2, 1},
			{1, 3},
		}
		x, err := GaussJordan(a, []float64{3, 5})
		require.NoError(t, err)
		assert.InDelta(t, 0.8, x[0], 1e-12)
		assert.InDelta(t, 1.4, x[1], 1e-12)
	})

	t.Run("singular system rejected", func(t *testing.T) {
		a := [][]float64{
			{1, 2},
			{2, 4},
		}
		_, err := GaussJordan(a, []float64{3, 6})
		assert.ErrorIs(t, err, ErrSingular)
	})

	t.Run("non-finite entries rejected", func(t *testing.T) {
		// A NaN pivot must not slip past the singularity check and come
		// back as a NaN "solution" with a nil error.
		a := [][]float64{
			{math.NaN(), 1},
			{1, 3},
		}
		_, err := GaussJordan(a, []float64{3, 5})
		assert.ErrorIs(t, err, ErrSingular)

		a = [][]float64{
			{math.Inf(1), 1},
			{1, 3},
		}
		_, err = GaussJordan(a, []float64{3, 5})
		assert.ErrorIs(t, err, ErrSingular)
	})

	t.Run("pivoting handles zero leading entry", func(t *testing.T) {
		a := [][]float64{
			{0, 1},
			{1, 0},
		}
		x, err := GaussJordan(a, []float64{2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 3.0, x[0], 1e-12)
		assert.InDelta(t, 2.0, x[1], 1e-12)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		a := [][]float64{
			{1, 0},
			{0, 1},
		}
		_, err := GaussJordan(a, []float64{1})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("non-square", func(t *testing.T) {
		a := [][]float64{
			{1, 0, 2},
			{0, 1, 1},
		}
		_, err := GaussJordan(a, []float64{1, 2})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("3x3 exact", func(t *testing.T) {
		a := [][]float64{
			{2, 0, 1},
			{1, 3, 2},
			{1, 1, 4},
		}
		// Chosen so x = [1, 2, 3].
		b := []float64{5, 13, 15}
		x, err := GaussJordan(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, x[0], 1e-10)
		assert.InDelta(t, 2.0, x[1], 1e-10)
		assert.InDelta(t, 3.0, x[2], 1e-10)
	})

	t.Run("inputs not modified", func(t *testing.T) {
		a := [][]float64{
			{2, 1},
			{1, 3},
		}
		b := []float64{3, 5}
		_, err := GaussJordan(a, b)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{2, 1}, {1, 3}}, a)
		assert.Equal(t, []float64{3, 5}, b)
	})
}

func BenchmarkGaussJordan6x6(b *testing.B) {
	a := [][]float64{
		{4, 1, 0, 0, 2, 1},
		{1, 5, 1, 0, 0, 2},
		{0, 1, 6, 1, 0, 0},
		{0, 0, 1, 7, 1, 0},
		{2, 0, 0, 1, 8, 1},
		{1, 2, 0, 0, 1, 9},
	}
	rhs := []float64{1, 2, 3, 4, 5, 6}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = GaussJordan(a, rhs)
	}
}
