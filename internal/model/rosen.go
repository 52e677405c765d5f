// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/curioloop/dqed/dqed"

// NewRosen builds the Rosenbrock valley in residual form,
//
//	f₁ = 10⋅(x₂ − x₁²)    f₂ = 1 − x₁
//
// started from the classic (−1.2, 1). The residual vanishes at (1, 1), so
// a successful fit stops on the residual norm.
func NewRosen() *Model {
	return &Model{
		Name:      "rosen",
		About:     "Rosenbrock valley in residual form",
		Equations: 2,
		Variables: 2,
		Start:     []float64{-1.2, 1},
		Solution:  []float64{1, 1},
		Residual: dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
			f[0] = 10 * (x[1] - x[0]*x[0])
			f[1] = 1 - x[0]
			fj[0+ldfj*0] = -20 * x[0]
			fj[1+ldfj*0] = -1
			fj[0+ldfj*1] = 10
			fj[1+ldfj*1] = 0
			return nil
		}),
	}
}
