// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import (
	"math"
	"testing"
)

func TestBOCLS(t *testing.T) {

	inf := math.Inf(1)

	{ // the window clips an unconstrained descent direction
		const ne, nv, nc = 2, 2, 0
		const ld = nc + ne

		fj := []float64{
			1, 0,
			0, 1,
			-3, -4,
		}
		ind := []int{tagNone, tagNone}
		bl := []float64{-inf, -inf}
		bu := []float64{inf, inf}
		lo := []float64{-1, -1}
		hi := []float64{1, 1}

		dx := make([]float64, nv)
		w := make([]float64, (1+2+4)*(nv+1)+2+(2+4)*nv+(nv+1)*(4+2)+2*4)
		jw := make([]int, 2*(nv+nc))

		norm, st := BOCLS(ne, nv, nc, fj, ld, ind, bl, bu, lo, hi, dx, w, jw, 0)
		switch {
		case st != statusOK:
			t.Fatal("TestBOCLS: No Solution")
		case !almostEqual([]float64{1, 1}, dx, 1e-12):
			t.Fatal("TestBOCLS: Step Unexpected")
		case !almostEqual(math.Sqrt(13), norm, 1e-12):
			t.Fatal("TestBOCLS: Model Norm Error")
		}
	}

	{ // a pinned constraint row becomes an equality of the subproblem
		const ne, nv, nc = 2, 2, 1
		const ld = nc + ne

		fj := []float64{
			1, 1, 0,
			1, 0, 1,
			0, -1, 0,
		}
		ind := []int{tagNone, tagNone, tagBoth}
		bl := []float64{-inf, -inf, 1}
		bu := []float64{inf, inf, 1}
		lo := []float64{-10, -10}
		hi := []float64{10, 10}

		dx := make([]float64, nv)
		w := make([]float64, (1+2+4)*(nv+1)+2*1+2+(2+4)*(nv-1)+nv*(4+2)+2*4)
		jw := make([]int, 2*(nv+nc))

		norm, st := BOCLS(ne, nv, nc, fj, ld, ind, bl, bu, lo, hi, dx, w, jw, 0)
		switch {
		case st != statusOK:
			t.Fatal("TestBOCLS: No Solution")
		case !almostEqual([]float64{1, 0}, dx, 1e-12):
			t.Fatal("TestBOCLS: Step Unexpected")
		// the model norm folds in the equality offset distance
		case !almostEqual(1/math.Sqrt2, norm, 1e-12):
			t.Fatal("TestBOCLS: Model Norm Error")
		}
	}

	{ // a ranged constraint row contributes one inequality per side
		const ne, nv, nc = 2, 2, 1
		const ld = nc + ne

		fj := []float64{
			1, 1, 0,
			1, 0, 1,
			0, -3, -4,
		}
		ind := []int{tagNone, tagNone, tagBoth}
		bl := []float64{-inf, -inf, -1}
		bu := []float64{inf, inf, 1}
		lo := []float64{-10, -10}
		hi := []float64{10, 10}

		dx := make([]float64, nv)
		w := make([]float64, (1+2+6)*(nv+1)+2+(2+6)*nv+(nv+1)*(6+2)+2*6)
		jw := make([]int, 2*(nv+nc))

		norm, st := BOCLS(ne, nv, nc, fj, ld, ind, bl, bu, lo, hi, dx, w, jw, 0)
		switch {
		case st != statusOK:
			t.Fatal("TestBOCLS: No Solution")
		case !almostEqual([]float64{0, 1}, dx, 1e-12):
			t.Fatal("TestBOCLS: Step Unexpected")
		case !almostEqual(math.Sqrt(18), norm, 1e-12):
			t.Fatal("TestBOCLS: Model Norm Error")
		}
	}

	{ // without residual rows the subproblem turns into a feasibility step
		const ne, nv, nc = 0, 2, 1
		const ld = nc + ne

		fj := []float64{
			1,
			1,
			0,
		}
		ind := []int{tagNone, tagNone, tagBoth}
		bl := []float64{-inf, -inf, 2}
		bu := []float64{inf, inf, 2}
		lo := []float64{-10, -10}
		hi := []float64{10, 10}

		dx := make([]float64, nv)
		w := make([]float64, (1+2+4)*(nv+1)+2*1+2+(2+4)*(nv-1)+nv*(4+2)+2*4)
		jw := make([]int, 2*(nv+nc))

		norm, st := BOCLS(ne, nv, nc, fj, ld, ind, bl, bu, lo, hi, dx, w, jw, 0)
		switch {
		case st != statusOK:
			t.Fatal("TestBOCLS: No Solution")
		case !almostEqual([]float64{1, 1}, dx, 1e-12):
			t.Fatal("TestBOCLS: Step Unexpected")
		case !almostEqual(2.0, norm, 1e-12):
			t.Fatal("TestBOCLS: Model Norm Error")
		}
	}
}
