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
	"math"
)

// Nelder-Mead downhill simplex. The initial simplex is x0 plus one vertex
// per axis, offset by the respective scale.
type SimplexMinimizer struct{}

func (sm *SimplexMinimizer) Minimize(ctx context.Context, f Func, x0, scales []float64, s Settings) *Result {
	checkArgs(x0, scales)
	s = s.WithDefaults()
	n := len(x0)
	t := newTracker(ctx, f, x0, s.MaxEvaluations)

	p := make([][]float64, n+1)
	y := make([]float64, n+1)
	for i := range p {
		p[i] = append([]float64(nil), x0...)
		if i > 0 {
			p[i][i-1] += scales[i-1]
		}
		y[i] = t.eval(p[i])
	}

	a := amoeba{p: p, y: y, t: t, psum: make([]float64, n), ptry: make([]float64, n)}
	a.sumColumns()

	iter, converged, abort := 0, false, false
	for {
		if aborted(ctx) {
			abort = true
			break
		}
		ilo, ihi, inhi := a.rank()

		fhi, flo := math.Abs(y[ihi]), math.Abs(y[ilo])
		var rtol float64
		if fhi+flo < s.Tolerance {
			rtol = 2 * math.Abs(y[ihi]-y[ilo])
		} else {
			rtol = 2 * math.Abs(y[ihi]-y[ilo]) / (fhi + flo)
		}
		if rtol < s.Tolerance {
			p[0], p[ilo] = p[ilo], p[0]
			y[0], y[ilo] = y[ilo], y[0]
			converged = true
			break
		}
		if t.exhausted() || iter >= s.MaxIterations {
			break
		}
		iter++

		ytry := a.try(ihi, -1)
		if ytry <= y[ilo] {
			a.try(ihi, 2)
		} else if ytry >= y[inhi] {
			ysave := y[ihi]
			ytry = a.try(ihi, 0.5)
			if ytry >= ysave {
				a.shrink(ilo)
			}
		}
	}
	return t.result(iter, converged, abort)
}

type amoeba struct {
	p    [][]float64
	y    []float64
	t    *tracker
	psum []float64
	ptry []float64
}

func (a *amoeba) sumColumns() {
	for j := range a.psum {
		sum := 0.0
		for i := range a.p {
			sum += a.p[i][j]
		}
		a.psum[j] = sum
	}
}

// Returns the indices of the lowest, highest and next-highest vertex
func (a *amoeba) rank() (ilo, ihi, inhi int) {
	y := a.y
	if y[0] > y[1] {
		ihi, inhi = 0, 1
	} else {
		ihi, inhi = 1, 0
	}
	for i := range y {
		if y[i] <= y[ilo] {
			ilo = i
		}
		if y[i] > y[ihi] {
			inhi = ihi
			ihi = i
		} else if y[i] > y[inhi] && i != ihi {
			inhi = i
		}
	}
	return ilo, ihi, inhi
}

// Extrapolates the worst vertex through the centroid of the others by factor fac,
// and replaces it if the new point is better.
func (a *amoeba) try(ihi int, fac float64) float64 {
	n := len(a.psum)
	fac1 := (1 - fac) / float64(n)
	fac2 := fac1 - fac
	for j := range a.ptry {
		a.ptry[j] = a.psum[j]*fac1 - a.p[ihi][j]*fac2
	}
	ytry := a.t.eval(a.ptry)
	if ytry < a.y[ihi] {
		a.y[ihi] = ytry
		for j := range a.ptry {
			a.psum[j] += a.ptry[j] - a.p[ihi][j]
			a.p[ihi][j] = a.ptry[j]
		}
	}
	return ytry
}

// Moves every vertex halfway towards the lowest one
func (a *amoeba) shrink(ilo int) {
	for i := range a.p {
		if i == ilo {
			continue
		}
		for j := range a.p[i] {
			a.p[i][j] = 0.5 * (a.p[i][j] + a.p[ilo][j])
		}
		a.y[i] = a.t.eval(a.p[i])
	}
	a.sumColumns()
}
