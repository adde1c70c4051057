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

// Package minimize provides derivative-free minimizers for small parameter
// vectors with expensive cost functions. Evaluation is strictly sequential.
package minimize

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// A cost function. Implementations must not retain x after returning,
// as optimizers reuse the backing array between probes.
type Func func(x []float64) float64

// Termination settings
type Settings struct {
	Tolerance          float64 `json:"tolerance" yaml:"tolerance"`                   // relative cost tolerance
	ParameterTolerance float64 `json:"parameterTolerance" yaml:"parameterTolerance"` // line search tolerance, in units of the step scales
	MaxIterations      int     `json:"maxIterations" yaml:"maxIterations"`
	MaxEvaluations     int     `json:"maxEvaluations" yaml:"maxEvaluations"`
}

// Default settings
func DefaultSettings() Settings {
	return Settings{
		Tolerance:          1e-4,
		ParameterTolerance: 1e-4,
		MaxIterations:      500,
		MaxEvaluations:     5000,
	}
}

// Fills in zero fields with defaults
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.ParameterTolerance <= 0 {
		s.ParameterTolerance = s.Tolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = d.MaxEvaluations
	}
	return s
}

// The outcome of a minimization. X and F are the best point ever evaluated,
// also when the run was aborted or ran out of budget.
type Result struct {
	X           []float64
	F           float64
	Evaluations int
	Iterations  int
	Converged   bool
	Aborted     bool
}

// A derivative-free minimizer. Starting from x0, scales gives the initial
// step size per parameter. The context is polled for cancellation at least
// once per outer iteration. Cancellation and budget exhaustion are not errors.
type Optimizer interface {
	Minimize(ctx context.Context, f Func, x0, scales []float64, s Settings) *Result
}

// Optimizer variants
type Kind int

const (
	Simplex Kind = iota
	Powell
	GonumSimplex
)

var kindNames = []string{"simplex", "powell", "gonum"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown optimizer '%s'", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseKind(string(b))
	return err
}

// Creates an optimizer of the given kind
func New(k Kind) Optimizer {
	switch k {
	case Simplex:
		return &SimplexMinimizer{}
	case Powell:
		return &PowellMinimizer{}
	case GonumSimplex:
		return &GonumMinimizer{}
	}
	panic(fmt.Sprintf("unknown optimizer kind %d", int(k)))
}

// Wraps a cost function with the evaluation counter and best point bookkeeping.
// Probes beyond the evaluation budget or after cancellation are not evaluated
// and cost +Inf.
type tracker struct {
	ctx      context.Context
	f        Func
	maxEvals int
	evals    int
	bestX    []float64
	bestF    float64
}

func newTracker(ctx context.Context, f Func, x0 []float64, maxEvals int) *tracker {
	return &tracker{ctx: ctx, f: f, maxEvals: maxEvals, bestX: append([]float64(nil), x0...), bestF: math.Inf(1)}
}

func (t *tracker) eval(x []float64) float64 {
	if t.exhausted() || aborted(t.ctx) {
		return math.Inf(1)
	}
	y := t.f(x)
	t.evals++
	if y < t.bestF || t.evals == 1 {
		t.bestF = y
		copy(t.bestX, x)
	}
	return y
}

func (t *tracker) exhausted() bool {
	return t.maxEvals > 0 && t.evals >= t.maxEvals
}

func (t *tracker) result(iterations int, converged, aborted bool) *Result {
	return &Result{
		X:           append([]float64(nil), t.bestX...),
		F:           t.bestF,
		Evaluations: t.evals,
		Iterations:  iterations,
		Converged:   converged,
		Aborted:     aborted,
	}
}

func aborted(ctx context.Context) bool {
	return ctx.Err() != nil
}

func checkArgs(x0, scales []float64) {
	if len(x0) == 0 {
		panic("minimize: empty starting point")
	}
	if len(scales) != len(x0) {
		panic(fmt.Sprintf("minimize: %d scales for %d parameters", len(scales), len(x0)))
	}
}
