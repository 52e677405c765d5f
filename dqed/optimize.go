// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dqed solves bounded, linearly-constrained nonlinear least-squares
// problems with a trust-region Gauss-Newton iteration:
//
//	𝚖𝚒𝚗 ‖ 𝒇(𝐱) ‖₂  𝚜.𝚝  𝒃𝒍 ≤ 𝐱 ≤ 𝒃𝒖  𝚊𝚗𝚍  𝒄𝒍 ≤ 𝒈(𝐱) ≤ 𝒄𝒖
//
// where 𝒇(𝐱) : ℝⁿ → ℝᵐᵉ are the residual equations and 𝒈(𝐱) : ℝⁿ → ℝᵐᶜ are
// linear constraints supplied through their derivative rows. Each iteration
// linearizes the problem at the current iterate and solves a bounded,
// linearly-constrained linear least-squares subproblem restricted to a
// trust region, accepting or rejecting the proposed step by the ratio of
// actual to predicted residual reduction.
package dqed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"
)

const (
	defTol     = 1e-5
	defMaxIter = 100
)

// ErrBadConfig reports a malformed configuration or solve call,
// rejected before any iteration takes place.
var ErrBadConfig = errors.New("bad problem configuration")

// ErrBadEvaluation reports an evaluation capability that failed its very
// first invocation, either by returning an error or by panicking.
var ErrBadEvaluation = errors.New("bad evaluation capability")

// ErrNotImplemented is returned by the Unimplemented evaluation stub.
var ErrNotImplemented = errors.New("evaluation not implemented")

// Evaluation supplies residuals, constraints and their derivatives at x.
//
// Evaluate fills f with the nc constraint values followed by the ne residual
// values at x, and fills fj with the column-major derivative block of leading
// dimension ldfj: constraint rows on top, residual rows below. The engine may
// probe several trial points per iteration, so the implementation must behave
// as a pure function of x.
type Evaluation interface {
	Evaluate(x, f, fj []float64, ldfj int) error
}

// EvaluationFunc adapts a plain function to the Evaluation interface.
type EvaluationFunc func(x, f, fj []float64, ldfj int) error

// Evaluate implements the Evaluation interface.
func (fn EvaluationFunc) Evaluate(x, f, fj []float64, ldfj int) error {
	return fn(x, f, fj, ldfj)
}

// Unimplemented is the default evaluation capability. Embedding it lets a
// problem type satisfy the Evaluation interface before the real computation
// exists; any solve against it fails fast instead of iterating on nonsense.
type Unimplemented struct{}

// Evaluate always returns ErrNotImplemented.
func (Unimplemented) Evaluate(x, f, fj []float64, ldfj int) error {
	return ErrNotImplemented
}

// Termination specifies the stopping criteria for the iteration.
type Termination struct {
	// The iteration will stop when ‖𝒇ₖ‖ ≤ 𝚝𝚘𝚕𝚏
	FTolerance float64
	// The iteration will stop when ‖𝐝𝐱ₖ‖ ≤ 𝚝𝚘𝚕𝚍
	DTolerance float64
	// The iteration will stop when ‖𝐝𝐱ₖ‖ ≤ 𝚝𝚘𝚕𝚡·‖𝐱ₖ‖
	XTolerance float64
	// The iteration will stop when the residual reduction of recent
	// accepted steps stays below 𝚝𝚘𝚕𝚜𝚗𝚛 relative to the residual size.
	SNTolerance float64
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int
	// The maximum number of iterations in the NNLS dual subproblem.
	DualIterations int
	// The max computation time in seconds, no limit when 0.
	MaxComputations int
}

// Problem specifies a bounded, linearly-constrained nonlinear least-squares problem.
type Problem struct {
	Equations   int         // The number of residual equations
	Variables   int         // The number of variables
	Constraints int         // The number of linear constraints
	Stop        Termination // Stop condition
	Residual    Evaluation  // Residual and constraint evaluation capability
	// Optional bounds for variables and constraint rows.
	// The length must be 0, Variables, or Variables+Constraints:
	// entries beyond Variables bound the linear constraint values.
	Bounds []Bound
}

// New creates a new solver for given problem.
func (p *Problem) New(logger *Logger) (solver *Solver, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}
	if logger.Out == nil {
		logger.Out = os.Stderr
	}

	ne, nv, nc := p.Equations, p.Variables, p.Constraints
	res, stop, bnd := p.Residual, p.Stop, p.Bounds

	if res == nil {
		res = Unimplemented{}
	}

	if stop.FTolerance == zero {
		stop.FTolerance = defTol
	}
	if stop.DTolerance == zero {
		stop.DTolerance = defTol
	}
	if stop.XTolerance == zero {
		stop.XTolerance = defTol
	}
	if stop.SNTolerance == zero {
		stop.SNTolerance = defTol
	}
	if stop.MaxIterations == 0 {
		stop.MaxIterations = defMaxIter
	}

	quota := int64(stop.MaxComputations) * time.Second.Nanoseconds()
	if quota <= 0 {
		quota = math.MaxInt64
	}

	switch {
	case nv <= 0:
		err = errors.New("variable number must greater than 0")
	case ne < 0:
		err = errors.New("equation number must not less than 0")
	case nc < 0:
		err = errors.New("constraint number must not less than 0")
	case ne == 0 && nc == 0:
		err = errors.New("problem must have equations or constraints")
	case stop.MaxIterations < 0:
		err = errors.New("max iteration must not less than 0")
	case stop.DualIterations < 0:
		err = errors.New("dual iteration must not less than 0")
	case stop.MaxComputations < 0:
		err = errors.New("computation quota must not less than 0")
	case math.IsNaN(stop.FTolerance) || stop.FTolerance < zero:
		err = errors.New("residual tolerance must not less than 0")
	case math.IsNaN(stop.DTolerance) || stop.DTolerance < zero:
		err = errors.New("step tolerance must not less than 0")
	case math.IsNaN(stop.XTolerance) || stop.XTolerance < zero:
		err = errors.New("relative step tolerance must not less than 0")
	case math.IsNaN(stop.SNTolerance) || stop.SNTolerance < zero:
		err = errors.New("noise tolerance must not less than 0")
	case len(bnd) != 0 && len(bnd) != nv && len(bnd) != nv+nc:
		err = errors.New("bound number must match variables or variables plus constraints")
	}

	if err == nil {
		bnd = slices.Repeat(bnd, 1)
		for k := range bnd {
			b := bnd[k].normalize()
			l, u := !math.IsNaN(b.Lower), !math.IsNaN(b.Upper)
			if l && u && b.Lower > b.Upper {
				err = errors.New(fmt.Sprintf("bound error at %d", k))
				break
			}
			bnd[k] = b
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	solver = &Solver{
		gnSpec{
			ne: ne, nv: nv, nc: nc,
			quota:  quota,
			logger: *logger,
			Problem: Problem{
				Equations:   ne,
				Variables:   nv,
				Constraints: nc,
				Stop:        stop,
				Residual:    res,
				Bounds:      bnd,
			},
		},
	}
	return
}

// Solver implements the trust-region Gauss-Newton iteration.
type Solver struct {
	gnSpec
}

// Workspace contains the state and scratch buffers of the iteration.
// Given equations ne, variables nv and constraints nc, total work space is
// approximately float64[2×(ne+nc)×(nv+1) + 2×𝚖𝚊𝚡(ne,nv)×nv + 8×(nv+nc)×nv].
// The first two slots of the integer buffer record the computed lengths of
// both buffers, which the solver re-checks before every fit.
type Workspace struct {
	ne, nv, nc int
	rw         []float64
	iw         []int
	gnCtx
}

// Result contains the final result of the iteration.
type Result struct {
	OK      bool      // Whether a solution with stated confidence was reached.
	F       float64   // Final residual norm ‖𝒇‖₂.
	X       []float64 // Final iterate.
	G       []float64 // Final constraint values.
	Summary           // Iteration summary.
}

// Summary contains a summary of the iteration.
type Summary struct {
	Status  Status // Final status after iteration.
	NumIter int    // Number of iterations performed.
	NumEval int    // Number of evaluations performed.
}

// worksize computes the exact scratch lengths for given problem dimensions.
// Every formula sizing the flat buffers lives here and nowhere else: Init
// carves the arena views from these totals and the driver re-checks them
// before iterating, so a mismatch fails fast instead of corrupting memory.
// Each total never decreases when any dimension grows.
func worksize(ne, nv, nc int) (totwk, totjw int) {
	ld, n1 := nc+ne, nv+1
	mc := max(1, nc)    // equality rows of the subproblem
	me := max(ne, nv)   // residual rows of the subproblem
	mg := 2 * (nv + nc) // inequality rows of the subproblem

	totwk = /*STACK*/ 2*ld*n1 +
		/*STEP*/ 5*nv + 2*(nv+nc) + nt +
		/*BOCLS*/ (mc+me+mg)*n1 +
		/*LSEI*/ 2*nc + me + (me+mg)*nv + n1*(mg+2) + 2*mg
	totjw = /*HEAD*/ 2 + /*TAGS*/ (nv + nc) + /*NNLS*/ mg
	return
}

// Init allocate the workspace for the solver.
// To avoid race conditions, separate workspaces need to be created for each
// goroutine. But multiple workspaces could share one solver.
func (s *Solver) Init() *Workspace {
	w := new(Workspace)
	w.ne, w.nv, w.nc = s.ne, s.nv, s.nc

	ne, nv, nc := s.ne, s.nv, s.nc
	ld, n1 := nc+ne, nv+1

	totwk, totjw := worksize(ne, nv, nc)
	rw := make([]float64, totwk)
	iw := make([]int, totjw)

	// The algorithm fails fast when handed shorter buffers than these.
	iw[0], iw[1] = totwk, totjw

	i0 := 0
	fj := rw[i0 : i0+ld*n1]
	i0 += ld * n1
	fjt := rw[i0 : i0+ld*n1]
	i0 += ld * n1
	xt := rw[i0 : i0+nv]
	i0 += nv
	dx := rw[i0 : i0+nv]
	i0 += nv
	grad := rw[i0 : i0+nv]
	i0 += nv
	lo := rw[i0 : i0+nv]
	i0 += nv
	hi := rw[i0 : i0+nv]
	i0 += nv
	bl := rw[i0 : i0+nv+nc]
	i0 += nv + nc
	bu := rw[i0 : i0+nv+nc]
	i0 += nv + nc
	ring := rw[i0 : i0+nt]
	i0 += nt

	w.rw, w.iw = rw, iw
	w.gnCtx = gnCtx{
		ind:  iw[2 : 2+nv+nc],
		jw:   iw[2+nv+nc:],
		bl:   bl,
		bu:   bu,
		lo:   lo,
		hi:   hi,
		xt:   xt,
		dx:   dx,
		grad: grad,
		ring: ring,
		fj:   fj,
		fjt:  fjt,
		fc:   fj[ld*nv:],
		ft:   fjt[ld*nv:],
		w:    rw[i0:],
	}

	encodeBounds(s.Bounds, w.ind, w.bl, w.bu)
	return w
}

// Fit runs the iteration from the initial guess x using workspace w.
// A nil workspace allocates a fresh one.
//
// The returned error reports a malformed call (wrapping ErrBadConfig) or an
// evaluation capability failing its first invocation (wrapping
// ErrBadEvaluation); in both cases no result is produced. Numeric failures
// during the iteration are reported through Result.Status instead.
func (s *Solver) Fit(x []float64, w *Workspace) (*Result, error) {
	return s.FitContext(context.Background(), x, w)
}

// FitContext is Fit with cooperative cancellation: the context is checked
// between iterations and a cancelled solve stops with status Interrupted.
func (s *Solver) FitContext(ctx context.Context, x []float64, w *Workspace) (*Result, error) {

	if len(x) != s.nv {
		return nil, fmt.Errorf("%w: initial x dimension not match problem", ErrBadConfig)
	}

	if w == nil {
		w = s.Init()
	}

	if w.ne != s.ne || w.nv != s.nv || w.nc != s.nc {
		panic("workspace dimension not match problem")
	}

	loc := gnLoc{
		x: slices.Repeat(x, 1),
	}

	solver := gnSolver{
		engine:    s,
		workspace: w,
		location:  &loc,
		halt:      ctx,
	}

	st, err := solver.mainLoop()
	if err != nil {
		return nil, err
	}

	return &Result{
		OK: st.OK(),
		F:  w.fnorm,
		X:  loc.x,
		G:  slices.Repeat(w.fc[:s.nc], 1),
		Summary: Summary{
			Status:  st,
			NumIter: w.iter,
			NumEval: w.eval,
		},
	}, nil
}
