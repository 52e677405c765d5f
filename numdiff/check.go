package numdiff

import (
	"errors"
	"math"
	"slices"

	"github.com/curioloop/dqed/dqed"
)

// CheckSpec verifies the analytic derivative block of an evaluation
// capability against a finite-difference estimate. The dimension fields
// mirror dqed.Problem, so a check can be filled straight from the problem
// under solve.
type CheckSpec struct {
	Equations   int // The number of residual equations
	Variables   int // The number of variables
	Constraints int // The number of linear constraints
	// Residual supplies the values and the analytic derivatives to verify.
	Residual dqed.Evaluation
	// Optional bounds for the variables: probe points stay inside them.
	// Entries beyond Variables bound constraint values and are ignored here.
	Bounds []dqed.Bound
	// Finite difference method to use.
	Method Method
	// Step sizes forwarded to the difference scheme.
	RelStep, AbsStep float64
}

// Report summarizes the mismatch between the analytic and the estimated
// derivative blocks. Rows follow the stacked layout of the block: the
// constraint rows first, the residual rows below.
type Report struct {
	// Cols holds the worst relative error of each variable column.
	Cols []float64
	// Err is the largest relative error over the whole block,
	// found at row Row and column Col.
	Err      float64
	Row, Col int
}

// Check evaluates the analytic derivative block at x0, estimates the same
// block by finite differences, and reports the worst mismatch per column.
// Each entry is measured as |fd-an| / max(1, |fd|), so entries around unit
// scale compare absolutely and large entries compare relatively. A non-finite
// entry on either side scores an infinite error.
func (cs *CheckSpec) Check(x0 []float64) (*Report, error) {

	ne, nv, nc := cs.Equations, cs.Variables, cs.Constraints
	switch {
	case nv <= 0 || ne < 0 || nc < 0:
		return nil, errors.New("negative dimensions")
	case ne == 0 && nc == 0:
		return nil, errors.New("empty system")
	case cs.Residual == nil:
		return nil, errors.New("evaluation capability is required")
	case len(x0) != nv:
		return nil, errors.New("invalid x0 dimensions")
	}
	if n := len(cs.Bounds); n != 0 && n != nv && n != nv+nc {
		return nil, errors.New("invalid bound dimension")
	}

	var bounds []Bound
	if len(cs.Bounds) > 0 {
		bounds = make([]Bound, nv)
		for i, b := range cs.Bounds[:nv] {
			l, u := b.Lower, b.Upper
			if math.IsNaN(l) {
				l = math.Inf(-1)
			}
			if math.IsNaN(u) {
				u = math.Inf(1)
			}
			bounds[i] = Bound{l, u}
		}
	}

	ld := nc + ne
	an := make([]float64, ld*nv)
	fd := make([]float64, ld*nv)
	jw := make([]float64, ld*nv)
	fc := make([]float64, ld)

	x := slices.Repeat(x0, 1)
	if err := cs.Residual.Evaluate(x, fc, an, ld); err != nil {
		return nil, err
	}

	spec := &ApproxSpec{
		N: nv, M: ld,
		Method:  cs.Method,
		Bounds:  bounds,
		RelStep: cs.RelStep,
		AbsStep: cs.AbsStep,
		Object: func(x, y []float64) error {
			return cs.Residual.Evaluate(x, y, jw, ld)
		},
	}
	if err := spec.Diff(x, fd); err != nil {
		return nil, err
	}

	rep := &Report{Cols: make([]float64, nv)}
	for i := 0; i < nv; i++ {
		worst := 0.0
		for j := 0; j < ld; j++ {
			a, d := an[j+i*ld], fd[j+i*ld]
			e := math.Abs(d-a) / math.Max(1, math.Abs(d))
			if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(d) || math.IsInf(d, 0) {
				e = math.Inf(1)
			}
			if e > worst {
				worst = e
			}
			if e > rep.Err {
				rep.Err, rep.Row, rep.Col = e, j, i
			}
		}
		rep.Cols[i] = worst
	}
	return rep, nil
}
