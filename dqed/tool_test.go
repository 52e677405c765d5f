// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import (
	"math"
	"testing"
)

func almostEqual[T float64 | []float64](want, got T, tol float64) bool {
	switch w := any(want).(type) {
	case float64:
		return math.Abs(w-any(got).(float64)) <= tol
	case []float64:
		g := any(got).([]float64)
		if len(w) != len(g) {
			return false
		}
		for i := range w {
			if math.Abs(w[i]-g[i]) > tol {
				return false
			}
		}
		return true
	}
	return false
}

// generate a random value with noise added.
type randGen struct {
	i, j int
	aj   float64
}

// generate next random value with noise added.
// anoise determines the level of "noise" to be added to the data.
func (g *randGen) next(anoise float64) float64 {

	const (
		mi = 891
		mj = 457
	)

	if anoise < zero {
		g.i = 5
		g.j = 7
		g.aj = zero
		return zero
	}

	// The sequence of values of J is bounded between 1 and 996.
	// If initial j = 1,2,3,4,5,6,7,8, or 9, the period is 332.
	if anoise > zero {
		g.j = g.j * mj
		g.j = g.j - 997*(g.j/997)
		g.aj = float64(g.j - 498)
	}

	// The sequence of values of I is bounded between 1 and 999.
	// If initial i = 1,2,3,6,7, or 9, the period will be 50.
	// If initial i = 4 or 8, the period will be 25.
	// If initial i = 5, the period will be 10.
	g.i = g.i * mi
	g.i = g.i - 1000*(g.i/1000)
	return float64(g.i-500) + g.aj*anoise
}

func TestHouseholder(t *testing.T) {

	const (
		mda = 3
		m   = 3
		n   = 2
	)

	// The columns of 𝐀 reproduce 𝐛 exactly at x = (1,1),
	// so the residual of the factored solve must vanish.
	a := []float64{
		2, 1, 2,
		0, 3, 0,
	}
	b := []float64{2, 4, 2}
	h := make([]float64, n)

	for j := 0; j < n; j++ {
		k := min(j+1, n-1)
		h[j] = h1(j, j+1, m, a[j*mda:], 1)
		h2(j, j+1, m, a[j*mda:], 1, h[j], a[k*mda:], 1, mda, n-1-j)
	}
	for j := 0; j < n; j++ {
		h2(j, j+1, m, a[j*mda:], 1, h[j], b, 1, 1, 1)
	}

	for k := 0; k < n; k++ {
		i := n - k - 1
		sm := zero
		if l := n - (i + 1); l > 0 {
			sm = ddot(l, a[i+mda*(i+1):], mda, b[i+1:], 1)
		}
		if a[i+mda*i] == zero {
			t.Fatal("TestHouseholder: Zero Divisor")
		}
		b[i] = (b[i] - sm) / a[i+mda*i]
	}

	srsmsq := zero
	for j := n; j < m; j++ {
		srsmsq += b[j] * b[j]
	}
	srsmsq = math.Sqrt(srsmsq)

	switch {
	case !almostEqual([]float64{1, 1}, b[:n], 1e-14):
		t.Fatal("TestHouseholder: Solution Unexpected")
	case srsmsq > 1e-14:
		t.Fatal("TestHouseholder: Residual Not Zero")
	}
}

func TestGivens(t *testing.T) {

	{
		c, s, sig := g1(3, 4)
		xr, yr := g2(c, s, 3, 4)
		switch {
		case !almostEqual(0.6, c, 1e-15) || !almostEqual(0.8, s, 1e-15):
			t.Fatal("TestGivens: Rotation Unexpected")
		case !almostEqual(5.0, sig, 1e-14):
			t.Fatal("TestGivens: Norm Unexpected")
		case !almostEqual(5.0, xr, 1e-14) || math.Abs(yr) > 1e-14:
			t.Fatal("TestGivens: Apply Unexpected")
		}
	}

	{ // rotation of a zero pair stays the identity permutation
		c, s, sig := g1(0, 0)
		if c != zero || s != one || sig != zero {
			t.Fatal("TestGivens: Zero Pair Unexpected")
		}
	}

	{
		c, s, sig := g1(-5, 0)
		if c != -one || s != zero || sig != 5 {
			t.Fatal("TestGivens: Axis Pair Unexpected")
		}
	}
}
