// Package interpolation provides the polynomial least-squares fit used across
// the pipeline and the gap interpolator that fills the missing time steps
// between two stitched trajectories.
package interpolation

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrUnderdetermined is returned when fewer points than coefficients are given.
var ErrUnderdetermined = errors.New("not enough points for polynomial degree")

// FitPolynomial fits a polynomial of the given degree to the points (xs, ys)
// in the least-squares sense. Coefficients are returned highest power first,
// so a cubic is c[0]*x^3 + c[1]*x^2 + c[2]*x + c[3].
func FitPolynomial(xs, ys []float64, degree int) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("mismatched inputs: %d x values, %d y values", len(xs), len(ys))
	}
	if degree < 0 {
		return nil, fmt.Errorf("invalid polynomial degree %d", degree)
	}
	n := degree + 1
	m := len(xs)
	if m < n {
		return nil, fmt.Errorf("%w: %d points, degree %d", ErrUnderdetermined, m, degree)
	}

	// Vandermonde matrix, highest power in the first column
	A := mat.NewDense(m, n, nil)
	for i, x := range xs {
		p := 1.0
		for k := n - 1; k >= 0; k-- {
			A.Set(i, k, p)
			p *= x
		}
	}
	b := mat.NewVecDense(m, append([]float64(nil), ys...))

	var qr mat.QR
	qr.Factorize(A)

	xDense := mat.NewDense(n, 1, nil)
	if err := qr.SolveTo(xDense, false, b); err != nil {
		return nil, fmt.Errorf("polynomial fit failed: %w", err)
	}

	coefs := make([]float64, n)
	for i := range coefs {
		coefs[i] = xDense.At(i, 0)
	}
	return coefs, nil
}

// EvalPolynomial evaluates coefficients (highest power first) at x.
func EvalPolynomial(coefs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coefs {
		y = y*x + c
	}
	return y
}

// DerivePolynomial returns the coefficients of the first derivative.
func DerivePolynomial(coefs []float64) []float64 {
	n := len(coefs) - 1
	if n < 1 {
		return []float64{0}
	}
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = coefs[i] * float64(n-i)
	}
	return d
}
