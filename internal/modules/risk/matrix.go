// Package risk builds asset covariance matrices: sample, Ledoit-Wolf
// shrinkage, exponentially weighted, and factor-structured. Every matrix it
// produces is symmetric and positive semi-definite by construction.
package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultEigenvalueFloor is the clipping floor applied when a matrix has to
// be repaired to restore positive semi-definiteness.
const DefaultEigenvalueFloor = 1e-10

// Matrix is an asset covariance matrix tied to one estimation window and
// method. ClippedEigenvalues reports how many eigenvalues had to be raised
// to the floor; a nonzero value is a diagnostic, not an error.
type Matrix struct {
	Symbols            []string    `json:"symbols"`
	Values             [][]float64 `json:"values"`
	Method             string      `json:"method"`
	Shrinkage          float64     `json:"shrinkage,omitempty"`
	ClippedEigenvalues int         `json:"clipped_eigenvalues,omitempty"`
	MinEigenvalue      float64     `json:"min_eigenvalue"`
}

// Dim returns the number of assets.
func (m Matrix) Dim() int { return len(m.Symbols) }

// At returns the covariance between assets i and j.
func (m Matrix) At(i, j int) float64 { return m.Values[i][j] }

// Dense converts the matrix to a gonum dense matrix.
func (m Matrix) Dense() *mat.Dense {
	n := m.Dim()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, m.Values[i][j])
		}
	}
	return out
}

// Sym converts the matrix to a gonum symmetric matrix.
func (m Matrix) Sym() *mat.SymDense {
	n := m.Dim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, m.Values[i][j])
		}
	}
	return out
}

// Variances returns the diagonal of the matrix.
func (m Matrix) Variances() []float64 {
	out := make([]float64, m.Dim())
	for i := range out {
		out[i] = m.Values[i][i]
	}
	return out
}

// Correlation converts the covariance matrix to a correlation matrix.
// Entries involving a zero-variance asset are zero.
func (m Matrix) Correlation() [][]float64 {
	n := m.Dim()
	std := make([]float64, n)
	for i := 0; i < n; i++ {
		std[i] = math.Sqrt(m.Values[i][i])
	}

	corr := make([][]float64, n)
	for i := 0; i < n; i++ {
		corr[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if std[i] > 0 && std[j] > 0 {
				corr[i][j] = m.Values[i][j] / (std[i] * std[j])
			}
		}
	}
	return corr
}

// symmetrize averages a square matrix with its transpose in place, removing
// floating-point asymmetry.
func symmetrize(values [][]float64) {
	n := len(values)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (values[i][j] + values[j][i]) / 2
			values[i][j] = avg
			values[j][i] = avg
		}
	}
}

// clipToPSD eigen-decomposes a symmetric matrix, raises eigenvalues below
// floor to the floor, and reconstructs. Returns the repaired values, the
// number of clipped eigenvalues, and the smallest eigenvalue seen before
// clipping.
func clipToPSD(values [][]float64, floor float64) ([][]float64, int, float64, bool) {
	n := len(values)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, values[i][j])
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, 0, 0, false
	}

	eigvals := eig.Values(nil)
	minEig := math.Inf(1)
	clipped := 0
	for i, v := range eigvals {
		if v < minEig {
			minEig = v
		}
		if v < floor {
			eigvals[i] = floor
			clipped++
		}
	}

	if clipped == 0 {
		return values, 0, minEig, true
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Reconstruct Q diag(λ) Qᵗ.
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vectors.At(i, j)*eigvals[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(scaled, vectors.T())

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = rebuilt.At(i, j)
		}
	}
	symmetrize(out)
	return out, clipped, minEig, true
}
