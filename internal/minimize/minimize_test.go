// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package minimize

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A convex quadratic with minimum 1 at c_i = i-2, and mildly different curvatures
func quadratic(n int) (Func, []float64) {
	c := make([]float64, n)
	for i := range c {
		c[i] = float64(i) - 2
	}
	f := func(x []float64) float64 {
		sum := 1.0
		for i := range x {
			d := x[i] - c[i]
			sum += (1 + 0.25*float64(i%3)) * d * d
		}
		return sum
	}
	return f, c
}

func ones(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = 1
	}
	return res
}

func TestQuadraticConvergence(t *testing.T) {
	settings := Settings{Tolerance: 1e-10, MaxIterations: 20000, MaxEvaluations: 200000}
	for _, kind := range []Kind{Simplex, Powell} {
		for _, n := range []int{1, 2, 3, 6, 7, 9, 12} {
			t.Run(fmt.Sprintf("%v/%d", kind, n), func(t *testing.T) {
				f, c := quadratic(n)
				res := New(kind).Minimize(context.Background(), f, make([]float64, n), ones(n), settings)
				require.True(t, res.Converged)
				assert.False(t, res.Aborted)
				assert.InDelta(t, 1.0, res.F, 1e-6)
				for i := range c {
					assert.InDelta(t, c[i], res.X[i], 1e-2, "x[%d]", i)
				}
			})
		}
	}
}

func TestGonumSimplexConvergence(t *testing.T) {
	f, c := quadratic(6)
	settings := Settings{Tolerance: 1e-10, MaxIterations: 20000, MaxEvaluations: 200000}
	res := New(GonumSimplex).Minimize(context.Background(), f, make([]float64, 6), ones(6), settings)
	require.True(t, res.Converged)
	assert.False(t, res.Aborted)
	assert.InDelta(t, 1.0, res.F, 1e-4)
	for i := range c {
		assert.InDelta(t, c[i], res.X[i], 5e-2, "x[%d]", i)
	}
}

func TestGonumSimplexDimensions(t *testing.T) {
	for _, n := range []int{2, 4, 6} {
		f, c := quadratic(n)
		settings := Settings{Tolerance: 1e-10, MaxIterations: 20000, MaxEvaluations: 200000}
		res := New(GonumSimplex).Minimize(context.Background(), f, make([]float64, n), ones(n), settings)
		require.True(t, res.Converged, "n=%d", n)
		assert.InDelta(t, 1.0, res.F, 1e-4, "n=%d", n)
		for i := range c {
			assert.InDelta(t, c[i], res.X[i], 5e-2, "n=%d x[%d]", n, i)
		}
	}
}

func TestScalesAreRespected(t *testing.T) {
	// parameters on very different scales, as with millimetres and radians
	f := func(x []float64) float64 {
		a, b := (x[0]-40)/10, (x[1]-0.02)/0.01
		return 1 + a*a + b*b
	}
	for _, kind := range []Kind{Simplex, Powell} {
		res := New(kind).Minimize(context.Background(), f, []float64{0, 0}, []float64{10, 0.01},
			Settings{Tolerance: 1e-12, MaxEvaluations: 100000, MaxIterations: 10000})
		assert.InDelta(t, 40, res.X[0], 1e-2, "%v", kind)
		assert.InDelta(t, 0.02, res.X[1], 1e-4, "%v", kind)
	}
}

func TestEvaluationCounting(t *testing.T) {
	for _, kind := range []Kind{Simplex, Powell, GonumSimplex} {
		f, _ := quadratic(4)
		calls := 0
		counted := func(x []float64) float64 {
			calls++
			return f(x)
		}
		res := New(kind).Minimize(context.Background(), counted, make([]float64, 4), ones(4), Settings{Tolerance: 1e-8})
		assert.Equal(t, calls, res.Evaluations, "%v", kind)
	}
}

func TestEvaluationCap(t *testing.T) {
	for _, kind := range []Kind{Simplex, Powell, GonumSimplex} {
		for _, limit := range []int{1, 5, 17, 40} {
			f, _ := quadratic(5)
			calls := 0
			best := math.Inf(1)
			counted := func(x []float64) float64 {
				calls++
				y := f(x)
				if y < best {
					best = y
				}
				return y
			}
			res := New(kind).Minimize(context.Background(), counted, make([]float64, 5), ones(5),
				Settings{Tolerance: 1e-12, MaxEvaluations: limit})
			assert.LessOrEqual(t, calls, limit, "%v limit %d", kind, limit)
			assert.Equal(t, calls, res.Evaluations)
			if kind != GonumSimplex {
				assert.False(t, res.Converged)
			}
			assert.Equal(t, best, res.F, "best point must be kept")
			assert.Equal(t, best, f(res.X))
		}
	}
}

func TestAbortFreezesEvaluations(t *testing.T) {
	for _, kind := range []Kind{Simplex, Powell, GonumSimplex} {
		ctx, cancel := context.WithCancel(context.Background())
		f, _ := quadratic(6)
		calls, frozen := 0, -1
		best := math.Inf(1)
		counted := func(x []float64) float64 {
			calls++
			y := f(x)
			if y < best {
				best = y
			}
			if calls == 30 {
				cancel()
				frozen = calls
			}
			return y
		}
		res := New(kind).Minimize(ctx, counted, make([]float64, 6), ones(6), Settings{Tolerance: 1e-12})
		assert.True(t, res.Aborted, "%v", kind)
		assert.False(t, res.Converged)
		assert.Equal(t, frozen, calls, "%v evaluated after abort", kind)
		assert.Equal(t, calls, res.Evaluations)
		assert.LessOrEqual(t, res.F, best)
	}
}

func TestAbortBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, _ := quadratic(3)
	res := New(Powell).Minimize(ctx, f, []float64{5, 5, 5}, ones(3), Settings{})
	assert.True(t, res.Aborted)
	assert.Equal(t, 0, res.Evaluations)
	assert.Equal(t, []float64{5, 5, 5}, res.X)
}

func TestBrentStaysInBracket(t *testing.T) {
	funcs := []func(u float64) float64{
		func(u float64) float64 { return (u - 0.3) * (u - 0.3) },
		func(u float64) float64 { return math.Abs(u - 1.7) },
		func(u float64) float64 { return -math.Cos(u) },
		func(u float64) float64 { return u * u * u * u },
	}
	for i, g := range funcs {
		calls := 0
		f := func(x []float64) float64 { calls++; return g(x[0]) }
		tr := newTracker(context.Background(), f, []float64{0}, 0)
		ls := newLineSearch(context.Background(), tr, 1, 100)
		p0, vec := []float64{0}, []float64{1}
		y0 := tr.eval(p0)
		br, fb := ls.bracket(p0, y0, vec)
		a, b := math.Min(br[0], br[2]), math.Max(br[0], br[2])
		require.True(t, br[1] >= a && br[1] <= b, "func %d: bracket %v", i, br)

		x, fx := ls.brent(p0, fb, vec, br, 1e-6)
		assert.True(t, x >= a && x <= b, "func %d: %g outside [%g,%g]", i, x, a, b)
		assert.LessOrEqual(t, fx, fb)
		assert.Equal(t, calls, tr.evals)
	}
}

func TestBrentFindsMinimum(t *testing.T) {
	f := func(x []float64) float64 { return (x[0]-2.5)*(x[0]-2.5) + 3 }
	tr := newTracker(context.Background(), f, []float64{0}, 0)
	ls := newLineSearch(context.Background(), tr, 1, 100)
	p := []float64{0}
	step, fmin := ls.minimize(p, tr.eval(p), []float64{1}, 1e-8)
	assert.InDelta(t, 2.5, step, 1e-6)
	assert.InDelta(t, 2.5, p[0], 1e-6)
	assert.InDelta(t, 3.0, fmin, 1e-10)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Powell")
	require.NoError(t, err)
	assert.Equal(t, Powell, k)
	_, err = ParseKind("lbfgs")
	assert.Error(t, err)
	assert.Panics(t, func() { New(Kind(9)) })
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{Tolerance: 1e-3}.WithDefaults()
	assert.Equal(t, 1e-3, s.ParameterTolerance)
	assert.Equal(t, DefaultSettings().MaxEvaluations, s.MaxEvaluations)
}
