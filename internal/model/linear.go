// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/curioloop/dqed/dqed"

// NewLinear builds the smallest possible problem, a single linear residual
// x − 3. The solver reaches the root in one accepted step, which makes the
// model handy for smoke checks of the command plumbing.
func NewLinear() *Model {
	return &Model{
		Name:      "linear",
		About:     "single linear residual x - 3",
		Equations: 1,
		Variables: 1,
		Start:     []float64{0},
		Solution:  []float64{3},
		Residual: dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
			f[0] = x[0] - 3
			fj[0] = 1
			return nil
		}),
	}
}
