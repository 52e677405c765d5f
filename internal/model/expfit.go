// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"math"

	"github.com/curioloop/dqed/dqed"
)

// NewExpFit builds the two-exponential decay fit
//
//	y(t) = a⋅exp(b⋅t) + c⋅exp(d⋅t)
//
// against five measured samples, subject to the rate gap b − d ≥ 0.05
// expressed as a linear constraint row. The gap keeps the two decay terms
// from swapping roles mid-iteration. The amplitudes are kept nonnegative
// and the rates inside [−25, 0].
//
// Case Sources : https://github.com/ReactionMechanismGenerator/PyDQED (test2)
func NewExpFit() *Model {
	tdata := []float64{0.05, 0.1, 0.4, 0.5, 1.0}
	fdata := []float64{2.206, 1.994, 1.350, 1.216, 0.7358}

	data := make([]Point, len(tdata))
	for i := range tdata {
		data[i] = Point{T: tdata[i], Y: fdata[i]}
	}

	nan := math.NaN()
	return &Model{
		Name:        "expfit",
		About:       "two-exponential decay fit with a rate gap constraint",
		Equations:   5,
		Variables:   4,
		Constraints: 1,
		Start:       []float64{1, -2, 1, -8},
		Bounds: []dqed.Bound{
			{Lower: 0, Upper: nan},
			{Lower: -25, Upper: 0},
			{Lower: 0, Upper: nan},
			{Lower: -25, Upper: 0},
			{Lower: 0.05, Upper: nan},
		},
		Solution: []float64{1.999475, -0.999801, 0.500057, -9.953988},
		Data:     data,
		Curve: func(x []float64) func(t float64) float64 {
			a, b, c, d := x[0], x[1], x[2], x[3]
			return func(t float64) float64 {
				return a*math.Exp(b*t) + c*math.Exp(d*t)
			}
		},
		Residual: dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
			a, b, c, d := x[0], x[1], x[2], x[3]
			f[0] = b - d
			fj[0+ldfj*0] = 0
			fj[0+ldfj*1] = 1
			fj[0+ldfj*2] = 0
			fj[0+ldfj*3] = -1
			for i, ti := range tdata {
				eb, ed := math.Exp(b*ti), math.Exp(d*ti)
				f[1+i] = a*eb + c*ed - fdata[i]
				fj[1+i+ldfj*0] = eb
				fj[1+i+ldfj*1] = a * ti * eb
				fj[1+i+ldfj*2] = ed
				fj[1+i+ldfj*3] = c * ti * ed
			}
			return nil
		}),
	}
}
