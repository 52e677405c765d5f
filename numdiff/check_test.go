package numdiff

import (
	"errors"
	"math"
	"testing"

	"github.com/curioloop/dqed/dqed"
)

// sys2 is a one-constraint, two-equation system in two variables.
// The sign factor scales the analytic entry at row 2, column 1,
// so a wrong sign plants a detectable derivative bug there.
func sys2(sign float64) dqed.EvaluationFunc {
	return func(x, f, fj []float64, ldfj int) error {
		f[0] = x[0] + 2*x[1]
		f[1] = math.Exp(x[0]) * x[1]
		f[2] = x[0]*x[0] - math.Sin(x[1])
		fj[0], fj[ldfj] = 1, 2
		fj[1], fj[1+ldfj] = math.Exp(x[0])*x[1], math.Exp(x[0])
		fj[2], fj[2+ldfj] = 2*x[0], sign*math.Cos(x[1])
		return nil
	}
}

func TestCheckBlock(t *testing.T) {

	x0 := []float64{0.5, 1.2}

	cs := &CheckSpec{Equations: 2, Variables: 2, Constraints: 1, Residual: sys2(-1)}
	rep, err := cs.Check(x0)
	if err != nil {
		t.Fatal("check failed", err)
	}
	if len(rep.Cols) != 2 || rep.Err > 1e-5 {
		t.Fatal("unexpected check mismatch")
	}

	cs.Method = Central
	rep, err = cs.Check(x0)
	if err != nil {
		t.Fatal("check failed", err)
	}
	if rep.Err > 1e-7 {
		t.Fatal("unexpected check mismatch")
	}

	// flip the sign of one analytic entry
	cs = &CheckSpec{Equations: 2, Variables: 2, Constraints: 1, Residual: sys2(1), Method: Central}
	rep, err = cs.Check(x0)
	if err != nil {
		t.Fatal("check failed", err)
	}
	switch {
	case rep.Err < 0.5:
		t.Fatal("planted bug not detected")
	case rep.Row != 2 || rep.Col != 1:
		t.Fatal("planted bug not located")
	case rep.Cols[0] > 1e-7 || rep.Cols[1] < 0.5:
		t.Fatal("unexpected column errors")
	}

}

func TestCheckBounded(t *testing.T) {

	ev := dqed.EvaluationFunc(func(x, f, fj []float64, ldfj int) error {
		if x[0] < 1 {
			return errors.New("left the model domain")
		}
		f[0] = x[0] * math.Log(x[0])
		fj[0] = math.Log(x[0]) + 1
		return nil
	})

	cs := &CheckSpec{Equations: 1, Variables: 1, Residual: ev, Method: Central}
	x0 := []float64{1}

	// an unbounded central probe crosses below x = 1
	if rep, err := cs.Check(x0); rep != nil || err == nil {
		t.Fatal("domain error not propagated")
	}
	if x0[0] != 1 {
		t.Fatal("x0 not restored")
	}

	cs.Bounds = []dqed.Bound{{Lower: 1, Upper: math.NaN()}}
	rep, err := cs.Check(x0)
	if err != nil {
		t.Fatal("bounded check failed", err)
	}
	if rep.Err > 1e-7 {
		t.Fatal("unexpected bounded check mismatch")
	}

}

func TestCheckArgs(t *testing.T) {

	stub := dqed.Unimplemented{}
	specs := []struct {
		cs CheckSpec
		x0 []float64
	}{
		{CheckSpec{Equations: 1, Residual: stub}, nil},
		{CheckSpec{Equations: -1, Variables: 1, Residual: stub}, []float64{0}},
		{CheckSpec{Variables: 1, Residual: stub}, []float64{0}},
		{CheckSpec{Equations: 1, Variables: 1}, []float64{0}},
		{CheckSpec{Equations: 1, Variables: 2, Residual: stub}, []float64{0}},
		{CheckSpec{Equations: 1, Variables: 1, Residual: stub, Bounds: make([]dqed.Bound, 3)}, []float64{0}},
	}
	for i, s := range specs {
		if rep, err := s.cs.Check(s.x0); rep != nil || err == nil {
			t.Fatal("config not rejected", i)
		}
	}

	cs := CheckSpec{Equations: 1, Variables: 1, Residual: stub}
	if _, err := cs.Check([]float64{0}); !errors.Is(err, dqed.ErrNotImplemented) {
		t.Fatal("stub error not propagated")
	}

}
