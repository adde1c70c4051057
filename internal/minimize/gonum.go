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

	"gonum.org/v1/gonum/optimize"
)

// Runs the gonum Nelder-Mead implementation in coordinates normalized by
// the step scales, so the unit simplex matches SimplexMinimizer's start.
type GonumMinimizer struct{}

// Iterations per parameter without improvement before the gonum run counts
// as converged. Shorter windows stop Nelder-Mead on its plateaus.
const convergeWindow = 50

func (gm *GonumMinimizer) Minimize(ctx context.Context, f Func, x0, scales []float64, s Settings) *Result {
	checkArgs(x0, scales)
	s = s.WithDefaults()
	n := len(x0)
	t := newTracker(ctx, f, x0, s.MaxEvaluations)

	x := make([]float64, n)
	toParams := func(y []float64) []float64 {
		for i := range x {
			x[i] = x0[i] + y[i]*scales[i]
		}
		return x
	}
	problem := optimize.Problem{
		Func: func(y []float64) float64 { return t.eval(toParams(y)) },
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if t.exhausted() {
				return optimize.FunctionEvaluationLimit, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		FuncEvaluations: s.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Relative:   s.Tolerance,
			Absolute:   s.Tolerance * 1e-3,
			Iterations: convergeWindow * n,
		},
	}
	res, err := optimize.Minimize(problem, make([]float64, n), settings, &optimize.NelderMead{SimplexSize: 1})

	converged, iterations := false, 0
	if res != nil {
		converged = err == nil && res.Status == optimize.FunctionConvergence
		iterations = res.Stats.MajorIterations
	}
	return t.result(iterations, converged, aborted(ctx))
}
