// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import (
	"math"
	"testing"
)

func TestHFTI(t *testing.T) {

	{ // full pseudo-rank solve with a tall matrix
		const mda, m, n = 3, 3, 2

		a := []float64{
			1, 0, 0,
			0, 1, 0,
		}
		b := []float64{3, 4, 5}

		h := make([]float64, n)
		g := make([]float64, n)
		ip := make([]int, n)
		var rnorm [1]float64

		krank := HFTI(a, mda, m, n, b, m, 1, 1e-10, rnorm[:], h, g, ip)
		switch {
		case krank != n:
			t.Fatal("TestHFTI: Pseudorank Unexpected")
		case !almostEqual([]float64{3, 4}, b[:n], 1e-14):
			t.Fatal("TestHFTI: Solution Unexpected")
		case !almostEqual(5.0, rnorm[0], 1e-14):
			t.Fatal("TestHFTI: Residual Norm Error")
		}
	}

	{ // rank one matrix takes the minimum length solution
		const mda, m, n = 2, 2, 2

		a := []float64{
			1, 1,
			1, 1,
		}
		b := []float64{2, 0}

		h := make([]float64, n)
		g := make([]float64, n)
		ip := make([]int, n)
		var rnorm [1]float64

		krank := HFTI(a, mda, m, n, b, m, 1, 1e-10, rnorm[:], h, g, ip)
		switch {
		case krank != 1:
			t.Fatal("TestHFTI: Pseudorank Unexpected")
		case !almostEqual([]float64{0.5, 0.5}, b[:n], 1e-14):
			t.Fatal("TestHFTI: Solution Unexpected")
		case !almostEqual(math.Sqrt(2), rnorm[0], 1e-14):
			t.Fatal("TestHFTI: Residual Norm Error")
		}
	}

	{ // a tolerance above the matrix norm zeroes the solution
		const mda, m, n = 2, 2, 2

		a := []float64{
			1, 1,
			1, 1,
		}
		b := []float64{2, 0}

		h := make([]float64, n)
		g := make([]float64, n)
		ip := make([]int, n)
		var rnorm [1]float64

		krank := HFTI(a, mda, m, n, b, m, 1, 10.0, rnorm[:], h, g, ip)
		switch {
		case krank != 0:
			t.Fatal("TestHFTI: Pseudorank Unexpected")
		case b[0] != zero || b[1] != zero:
			t.Fatal("TestHFTI: Solution Unexpected")
		case !almostEqual(2.0, rnorm[0], 1e-14):
			t.Fatal("TestHFTI: Residual Norm Error")
		}
	}
}

// Origin: https://www.netlib.org/lawson-hanson/all (PROG2)
// Reference: https://people.math.sc.edu/Burkardt/f_src/lawson/lawson.html
func TestHFTIRandom(t *testing.T) {

	const (
		mda = 8
		mdb = 8
		nb  = 1
	)

	a := make([]float64, mda*mda)
	b := make([]float64, mdb*nb)
	g := make([]float64, mda)
	h := make([]float64, mda)
	ip := make([]int, mda)
	srsmsq := make([]float64, nb)

	var gen randGen

	for _, anoise := range []float64{zero, 0.0001} {

		gen.next(-one)

		var anorm, tau float64
		if anoise == zero {
			tau = 0.5
		} else {
			anorm = 500.0
			tau = anorm * anoise * 10.0
		}

		t.Logf("  Use a relative noise level of %.6f\n", anoise)
		t.Logf("  The matrix norm is approximately %.6f\n", anorm)
		t.Logf("  The absolute pseudorank tolerance is %.6f\n", tau)

		for mn1 := 1; mn1 <= 6; mn1 += 5 {
			for m := mn1; m <= mn1+2; m++ {
				for n := mn1; n <= mn1+2; n++ {

					for i := 0; i < m; i++ {
						for j := 0; j < n; j++ {
							a[i+mda*j] = gen.next(anoise)
						}
					}

					for i := 0; i < m; i++ {
						b[i] = gen.next(anoise)
					}

					krank := HFTI(a, mda, m, n, b, mdb, nb, tau, srsmsq, h, g, ip)

					t.Logf("\n  M = %d  N = %d  Pseudorank = %d\n", m, n, krank)
					t.Log("  Estimated parameters X = A**(+)*B from HFTI:")
					for i := 0; i < n; i++ {
						t.Logf("%.6f ", b[i])
					}
					t.Logf("\n  Residual norm = %.6f\n", srsmsq[0])
				}
			}
		}
	}
}
