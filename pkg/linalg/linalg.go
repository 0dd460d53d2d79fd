// Package linalg implements the small dense matrix operations backing the
// least-squares fit: transpose, multiplication and Gauss-Jordan elimination
// with partial pivoting.
package linalg

import (
	"errors"
	"math"
)

// pivotEpsilon is the smallest pivot magnitude accepted during elimination.
// Anything below it means the system is near-singular and the solution would
// be numerically worthless.
const pivotEpsilon = 1e-10

var (
	// ErrDimensionMismatch reports operands whose shapes are incompatible,
	// including ragged or empty matrices.
	ErrDimensionMismatch = errors.New("linalg: dimension mismatch")
	// ErrSingular reports a near-singular system rejected by GaussJordan.
	ErrSingular = errors.New("linalg: singular system")
)

// NewMatrix allocates an r×c zero matrix.
func NewMatrix(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
	}
	return m
}

// Transpose returns a new matrix with rows and columns exchanged.
func Transpose(m [][]float64) ([][]float64, error) {
	if err := checkRect(m); err != nil {
		return nil, err
	}
	out := NewMatrix(len(m[0]), len(m))
	for i := range m {
		for j := range m[0] {
			out[j][i] = m[i][j]
		}
	}
	return out, nil
}

// Multiply returns the matrix product a·b.
func Multiply(a, b [][]float64) ([][]float64, error) {
	if err := checkRect(a); err != nil {
		return nil, err
	}
	if err := checkRect(b); err != nil {
		return nil, err
	}
	if len(a[0]) != len(b) {
		return nil, ErrDimensionMismatch
	}
	out := NewMatrix(len(a), len(b[0]))
	for i := range out {
		for j := range out[0] {
			for k := range a[0] {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out, nil
}

// MultiplyVector returns the product m·v.
func MultiplyVector(m [][]float64, v []float64) ([]float64, error) {
	if err := checkRect(m); err != nil {
		return nil, err
	}
	if len(m[0]) != len(v) {
		return nil, ErrDimensionMismatch
	}
	out := make([]float64, len(m))
	for i := range m {
		for k := range v {
			out[i] += m[i][k] * v[k]
		}
	}
	return out, nil
}

// GaussJordan solves A·x = B for square A using Gauss-Jordan elimination with
// partial pivoting. It refuses near-singular systems (any pivot below 1e-10 in
// absolute value after row selection) rather than returning an unstable
// solution. A and B are not modified.
func GaussJordan(a [][]float64, b []float64) ([]float64, error) {
	if err := checkRect(a); err != nil {
		return nil, err
	}
	n := len(a)
	if len(a[0]) != n || len(b) != n {
		return nil, ErrDimensionMismatch
	}

	// Augmented working copy [A|b].
	aug := NewMatrix(n, n+1)
	for i := 0; i < n; i++ {
		copy(aug[i][:n], a[i])
		aug[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		// Partial pivoting: pick the remaining row with the largest magnitude
		// in this column and swap it into position.
		pivotRow := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivotRow][col]) {
				pivotRow = r
			}
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		// The inverted comparison also rejects NaN pivots, which would
		// otherwise pass a plain `< pivotEpsilon` check and propagate.
		pivot := aug[col][col]
		if !(math.Abs(pivot) >= pivotEpsilon) || math.IsInf(pivot, 0) {
			return nil, ErrSingular
		}

		for j := col; j <= n; j++ {
			aug[col][j] /= pivot
		}

		// Eliminate the column everywhere else.
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = aug[i][n]
	}
	return x, nil
}

func checkRect(m [][]float64) error {
	if len(m) == 0 || len(m[0]) == 0 {
		return ErrDimensionMismatch
	}
	for _, row := range m {
		if len(row) != len(m[0]) {
			return ErrDimensionMismatch
		}
	}
	return nil
}
