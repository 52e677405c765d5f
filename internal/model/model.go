// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model collects named least-squares problems with a documented
// shape: dimensions, a feasible default start, bounds and, where known,
// the reference solution. The command layer resolves problems by name and
// hands them to the solver, so one battery backs solving, derivative
// checks, benchmarks and plots.
package model

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/curioloop/dqed/dqed"
)

// Model is a named problem description ready to feed the solver.
type Model struct {
	Name  string
	About string

	Equations   int
	Variables   int
	Constraints int

	// Start is the default initial guess, feasible for the model bounds.
	Start []float64
	// Bounds covers the variables and, when Constraints > 0, the linear
	// constraint values behind them. Nil means fully unbounded.
	Bounds []dqed.Bound
	// Residual evaluates the stacked constraint and residual block.
	Residual dqed.Evaluation

	// Solution is the documented reference solution, nil when none is known.
	Solution []float64

	// Data and Curve describe the observations and the fitted curve for
	// models that fit a scalar function of one variable, nil otherwise.
	Data  []Point
	Curve func(x []float64) func(t float64) float64
}

// Point is a single observation of a curve model.
type Point struct {
	T, Y float64
}

// Problem assembles the solver problem for the model.
func (m *Model) Problem(stop dqed.Termination) *dqed.Problem {
	return &dqed.Problem{
		Equations:   m.Equations,
		Variables:   m.Variables,
		Constraints: m.Constraints,
		Stop:        stop,
		Residual:    m.Residual,
		Bounds:      m.Bounds,
	}
}

// Record wraps the model evaluation so that fn observes every completed
// evaluation: the running call count, the residual norm and a copy of the
// probed point. The solver evaluates trial points as well as accepted
// ones, so consecutive norms are not monotone.
func (m *Model) Record(fn func(eval int, fnorm float64, x []float64)) dqed.Evaluation {
	inner, nc := m.Residual, m.Constraints
	eval := 0
	return dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
		if err := inner.Evaluate(x, f, fj, ldfj); err != nil {
			return err
		}
		var sum float64
		for _, v := range f[nc:] {
			sum += v * v
		}
		eval++
		fn(eval, math.Sqrt(sum), slices.Clone(x))
		return nil
	})
}

// Get resolves a built-in model by name.
func Get(name string) (*Model, error) {
	switch name {
	case "linear":
		return NewLinear(), nil
	case "quartic":
		return NewQuartic(), nil
	case "quartic-box":
		return NewQuarticBox(), nil
	case "expfit":
		return NewExpFit(), nil
	case "rosen":
		return NewRosen(), nil
	}
	return nil, fmt.Errorf("unknown model %q (choose one of %s)", name, strings.Join(Names(), ", "))
}

// Names lists the built-in models in lexical order.
func Names() []string {
	return []string{"expfit", "linear", "quartic", "quartic-box", "rosen"}
}
