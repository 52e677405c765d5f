// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0
	four = 4.0
	ten  = 10.0
	hun  = 100.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

// nt is the length of the history ring kept by the trust-region bookkeeping.
// The stall and noise detectors look back over the last nt accepted steps,
// and the workspace sizing in Init accounts for the ring storage.
const nt = 5

// Status classifies why an iteration stopped.
//
// Codes 2..7 deliver a solution with the stated confidence, 8 reports the
// progress made before the iteration cap, and 9..18 mean no reliable
// solution was produced.
type Status int

const (
	// Converged residual norm dropped below the f tolerance.
	Converged Status = iota + 2
	// StalledAtBound successive steps kept hitting the trust-region boundary.
	StalledAtBound
	// LocalMinimum projected gradient satisfies the optimality condition.
	LocalMinimum
	// NoiseDetected residual reduction sank into evaluation noise.
	NoiseDetected
	// SmallAbsoluteStep step norm dropped below the d tolerance.
	SmallAbsoluteStep
	// SmallRelativeStep step norm relative to the iterate dropped below the x tolerance.
	SmallRelativeStep
	// MaxIterationsReached iteration count reached the cap.
	MaxIterationsReached
	// BadWorkspace scratch buffers failed the length self-validation.
	BadWorkspace
	// BadResidual evaluation produced a non-finite residual or constraint value.
	BadResidual
	// BadJacobian evaluation produced a non-finite derivative entry.
	BadJacobian
	// SingularConstraint equality constraints of the subproblem are rank deficient.
	SingularConstraint
	// InfeasibleBound inequality system of the subproblem is incompatible.
	InfeasibleBound
	// ExceedDualIter more than max iterations for solving the NNLS dual.
	ExceedDualIter
	// BadTriangle triangular factor became singular during elimination.
	BadTriangle
	// CollapsedRegion trust radius underflowed without an accepted step.
	CollapsedRegion
	// HaltEvaluation evaluation failed or panicked after iteration started.
	HaltEvaluation
	// Interrupted solve stopped by cancellation or the time limit.
	Interrupted
)

// statusOK is the zero value returned by the internal kernels on success,
// before the driver assigns a terminal code.
const statusOK Status = 0

// OK reports whether the status carries a solution with stated confidence.
func (s Status) OK() bool { return s >= Converged && s <= SmallRelativeStep }

// Failed reports whether the status means no reliable solution.
func (s Status) Failed() bool { return s >= BadWorkspace }

// String maps the status code to a one-line description.
func (s Status) String() string {
	switch s {
	case Converged:
		return "residual norm is small enough"
	case StalledAtBound:
		return "progress limited by the trust-region bound"
	case LocalMinimum:
		return "local minimum of the residual norm"
	case NoiseDetected:
		return "residual changes are dominated by noise"
	case SmallAbsoluteStep:
		return "absolute step size is small enough"
	case SmallRelativeStep:
		return "relative step size is small enough"
	case MaxIterationsReached:
		return "maximum number of iterations reached"
	case BadWorkspace:
		return "workspace does not pass the length check"
	case BadResidual:
		return "residual or constraint value is not finite"
	case BadJacobian:
		return "derivative entry is not finite"
	case SingularConstraint:
		return "equality constraints are rank deficient"
	case InfeasibleBound:
		return "bounds and constraints are incompatible"
	case ExceedDualIter:
		return "too many iterations in the dual subproblem"
	case BadTriangle:
		return "triangular factor is singular"
	case CollapsedRegion:
		return "trust region collapsed without progress"
	case HaltEvaluation:
		return "evaluation halted the iteration"
	case Interrupted:
		return "iteration interrupted before completion"
	}
	return "unknown status"
}

type gnSpec struct {
	// the number of residual equations
	ne int
	// the number of variables
	nv int
	// the number of linear constraints
	nc int
	// computation quota in nanoseconds.
	quota int64
	// iteration logger.
	logger Logger
	Problem
}

type gnLoc struct {
	// the current iterate, copied from the initial guess at each fit.
	x []float64 // nv
}

type gnCtx struct {
	// trust radius.
	delta float64
	// residual norm at the current iterate.
	fnorm float64
	// iteration counter.
	iter int
	// evaluation counter.
	eval int
	// consecutive boundary-limited accepted steps.
	hits int
	// accepted steps recorded in the history ring.
	kept int
	// consecutive noise-level residual reductions.
	calm int
	// bound tags for variables then constraints.
	ind []int // nv + nc
	// encoded bound values for variables then constraints.
	bl, bu []float64 // nv + nc
	// step window of the current iteration.
	lo, hi []float64 // nv
	// the trial iterate.
	xt []float64 // nv
	// the step proposed by the subproblem.
	dx []float64 // nv
	// the gradient 𝐉ᵀ𝒇 of the residual sum of squares.
	grad []float64 // nv
	// residual norms of recent accepted iterates.
	ring []float64 // nt
	// stacked value/derivative block at the current iterate:
	// nc constraint rows above ne residual rows, one value column behind.
	fj []float64 // (nc+ne) × (nv+1)
	// stacked value/derivative block at the trial point.
	fjt []float64 // (nc+ne) × (nv+1)
	// value columns of fj and fjt.
	fc, ft []float64 // nc + ne
	// subproblem assembly and kernel scratch.
	w []float64
	// kernel index scratch.
	jw []int
}
