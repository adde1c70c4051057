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

const (
	golden  = 0.6180339887498949
	growLim = 110.0
	tinyVal = 1e-21
)

// One-dimensional minimization along p0 + u*vec. Every probe polls the context.
type lineSearch struct {
	ctx     context.Context
	t       *tracker
	maxIter int
	point   []float64
}

func newLineSearch(ctx context.Context, t *tracker, n, maxIter int) *lineSearch {
	return &lineSearch{ctx: ctx, t: t, maxIter: maxIter, point: make([]float64, n)}
}

func (ls *lineSearch) stopped() bool {
	return aborted(ls.ctx) || ls.t.exhausted()
}

func (ls *lineSearch) at(p0, vec []float64, u float64) float64 {
	for i := range ls.point {
		ls.point[i] = p0[i] + u*vec[i]
	}
	return ls.t.eval(ls.point)
}

// Brackets a minimum along vec, starting from the unit step. y0 is the cost at p0.
// Returns the bracket (a, b, c) with b the lowest of the three, and the cost at b.
func (ls *lineSearch) bracket(p0 []float64, y0 float64, vec []float64) (br [3]float64, fb float64) {
	xa, fa := 0.0, y0
	xb := 1.0
	fb = ls.at(p0, vec, xb)
	if fa < fb {
		xa, xb = xb, 0.0
		fa, fb = fb, y0
	}
	xc := xb + golden*(xb-xa)
	if ls.stopped() {
		return [3]float64{xa, xb, xc}, fb
	}
	fc := ls.at(p0, vec, xc)

	for ii := 0; fc < fb; {
		tmp1 := (xb - xa) * (fb - fc)
		tmp2 := (xb - xc) * (fb - fa)
		val := tmp2 - tmp1
		if val < tinyVal {
			val = tinyVal
		}
		w := xb - ((xb-xc)*tmp2-(xb-xa)*tmp1)/(2*val)
		wlim := xb + growLim*(xc-xb)
		if ii > ls.maxIter || ls.stopped() {
			break
		}
		ii++

		var fw float64
		if (w-xc)*(xb-w) > 0 {
			// parabolic point between b and c
			fw = ls.at(p0, vec, w)
			if fw < fc {
				xa, xb = xb, w
				fa, fb = fb, fw
				break
			} else if fw > fb {
				xc, fc = w, fw
				break
			}
			w = xc + golden*(xc-xb)
			fw = ls.at(p0, vec, w)
		} else if (w-wlim)*(wlim-xc) >= 0 {
			// parabolic point beyond the growth limit
			w = wlim
			fw = ls.at(p0, vec, w)
		} else if (w-wlim)*(xc-w) >= 0 {
			// parabolic point between c and the limit
			fw = ls.at(p0, vec, w)
			if fw < fc {
				xb, xc = xc, w
				w = xc + golden*(xc-xb)
				fb, fc = fc, fw
				fw = ls.at(p0, vec, w)
			}
		} else {
			w = xc + golden*(xc-xb)
			fw = ls.at(p0, vec, w)
		}
		xa, xb, xc = xb, xc, w
		fa, fb, fc = fb, fc, fw
	}
	return [3]float64{xa, xb, xc}, fb
}

// Refines a bracketed minimum with Brent's method. y0 is the cost at the
// middle point of the bracket. Returns the step u of the minimum and its cost.
// The returned step always lies within the bracket.
func (ls *lineSearch) brent(p0 []float64, y0 float64, vec []float64, br [3]float64, tol float64) (x, fx float64) {
	const cg = 1 - golden
	a, b := br[0], br[2]
	if a > b {
		a, b = b, a
	}
	x = br[1]
	w, v := x, x
	fx = y0
	fw, fv := y0, y0
	e, d := 0.0, 1.0

	for ii := 0; ii < ls.maxIter && !ls.stopped(); ii++ {
		tol1 := tol + math.Abs(x)*1e-8
		xc := 0.5 * (a + b)
		if math.Abs(x-xc) < 2*tol1-0.5*(b-a) {
			break
		}
		if math.Abs(e) <= tol1 {
			if x < xc {
				e = b - x
			} else {
				e = a - x
			}
			d = cg * e
		} else {
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q + (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etmp := e
			e = d
			if p > q*(a-x) && p < q*(b-x) && math.Abs(p) < math.Abs(0.5*q*etmp) {
				d = p / q
				u := x + d
				if (u-a) < 2*tol1 || (b-u) < 2*tol1 {
					if xc-x < 0 {
						d = -tol1
					} else {
						d = tol1
					}
				}
			} else {
				if x < xc {
					e = b - x
				} else {
					e = a - x
				}
				d = cg * e
			}
		}

		u := x + d
		if math.Abs(d) < tol1 {
			if d < 0 {
				u = x - tol1
			} else {
				u = x + tol1
			}
		}
		fu := ls.at(p0, vec, u)

		if fu > fx {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, w = w, u
				fv, fw = fw, fu
			} else if fu <= fv || v == x || v == w {
				v, fv = u, fu
			}
		} else {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
		}
	}
	return x, fx
}

// Minimizes along vec from p, moving p to the minimum in place.
// fp is the cost at p. Returns the step taken and the new cost.
func (ls *lineSearch) minimize(p []float64, fp float64, vec []float64, tol float64) (step, fmin float64) {
	p0 := append([]float64(nil), p...)
	br, fb := ls.bracket(p0, fp, vec)
	step, fmin = br[1], fb
	if !ls.stopped() {
		step, fmin = ls.brent(p0, fb, vec, br, tol)
	}
	if fmin > fp {
		// the probes found nothing better, stay put
		return 0, fp
	}
	for i := range p {
		p[i] = p0[i] + step*vec[i]
	}
	return step, fmin
}
