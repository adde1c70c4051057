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

// Powell's direction set method with bracketing and Brent line searches.
// Directions start as the coordinate axes, scaled per parameter.
type PowellMinimizer struct{}

func (pm *PowellMinimizer) Minimize(ctx context.Context, f Func, x0, scales []float64, s Settings) *Result {
	checkArgs(x0, scales)
	s = s.WithDefaults()
	n := len(x0)
	t := newTracker(ctx, f, x0, s.MaxEvaluations)
	ls := newLineSearch(ctx, t, n, s.MaxIterations)

	xi := make([][]float64, n)
	for i := range xi {
		xi[i] = make([]float64, n)
		xi[i][i] = scales[i]
	}
	p := append([]float64(nil), x0...)
	pt := append([]float64(nil), x0...)
	ptt := make([]float64, n)
	xit := make([]float64, n)
	fret := t.eval(p)

	iter, converged, abort := 0, false, false
	for {
		if aborted(ctx) {
			abort = true
			break
		}
		fp := fret
		ibig, del := 0, 0.0
		for i := 0; i < n && !ls.stopped(); i++ {
			fptt := fret
			_, fret = ls.minimize(p, fret, xi[i], s.ParameterTolerance)
			if fptt-fret > del {
				del = fptt - fret
				ibig = i
			}
		}
		iter++
		if aborted(ctx) {
			abort = true
			break
		}
		if t.exhausted() {
			break
		}
		if 2*(fp-fret) <= s.Tolerance*(math.Abs(fp)+math.Abs(fret))+tinyVal {
			converged = true
			break
		}
		if iter >= s.MaxIterations {
			break
		}

		// extrapolate along the net displacement of this pass
		for j := range p {
			ptt[j] = 2*p[j] - pt[j]
			xit[j] = p[j] - pt[j]
			pt[j] = p[j]
		}
		fptt := t.eval(ptt)
		if fptt < fp {
			tt := 2*(fp-2*fret+fptt)*sqr(fp-fret-del) - del*sqr(fp-fptt)
			if tt < 0 {
				var step float64
				step, fret = ls.minimize(p, fret, xit, s.ParameterTolerance)
				if step != 0 {
					for j := range xit {
						xit[j] *= step
					}
				}
				xi[ibig], xi[n-1] = xi[n-1], append([]float64(nil), xit...)
			}
		}
	}
	return t.result(iter, converged, abort)
}

func sqr(x float64) float64 { return x * x }
