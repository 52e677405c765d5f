// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import "github.com/curioloop/dqed/dqed"

func quartic() dqed.Evaluation {
	return dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
		d := x[0] - 100
		f[0] = d * d * d * d
		fj[0] = 4 * d * d * d
		return nil
	})
}

// NewQuartic builds the steep quartic bowl (x−100)⁴. The residual is flat
// near the minimizer, so the iteration stops on the projected gradient a
// little away from 100 rather than on the residual norm.
//
// Case Sources : https://github.com/ReactionMechanismGenerator/PyDQED (test1a)
func NewQuartic() *Model {
	return &Model{
		Name:      "quartic",
		About:     "steep quartic bowl (x - 100)^4",
		Equations: 1,
		Variables: 1,
		Start:     []float64{1},
		Solution:  []float64{100},
		Residual:  quartic(),
	}
}

// NewQuarticBox is the same bowl boxed into [−50, 50]. The minimizer sits
// outside the box and the iteration pins the variable at the upper bound.
//
// Case Sources : https://github.com/ReactionMechanismGenerator/PyDQED (test1b, test1c)
func NewQuarticBox() *Model {
	return &Model{
		Name:      "quartic-box",
		About:     "quartic bowl pinned at the box bound",
		Equations: 1,
		Variables: 1,
		Start:     []float64{1},
		Bounds:    []dqed.Bound{{Lower: -50, Upper: 50}},
		Solution:  []float64{50},
		Residual:  quartic(),
	}
}
