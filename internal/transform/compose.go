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

package transform

import (
	"fmt"
	"math"
)

// Returns the rotation for the given rotation vector via the exponential map.
// The angle in radians is the vector length, the axis its direction.
// A zero vector yields the identity.
func Rotation(r [3]float64) Matrix4 {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta == 0 {
		return Identity()
	}
	x, y, z := r[0]/theta, r[1]/theta, r[2]/theta
	s, c := math.Sincos(theta)
	t := 1 - c
	return Matrix4{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y, 0},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x, 0},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c, 0},
		{0, 0, 0, 1},
	}
}

// Builds the matrix for a parameter vector. Elementary steps are applied
// to a working identity in this order, each one after the previous:
//
//	translate(-center)
//	rotate(primary), initial, rotate(-finish), scale, rotate(+finish)
//	translate(+center)
//	translate(params)
//
// For ScaleSourceAxes the middle line becomes
// rotate(-finish), scale, rotate(+finish), initial, rotate(primary),
// so scaling happens along the axes of the source image.
//
// Panics if the parameter vector length does not match class and dimensionality.
func Compose(params []float64, class Class, dim int, center [3]float64, initial Matrix4) Matrix4 {
	l := layoutOf(class, dim)
	if len(params) != l.total() {
		panic(fmt.Sprintf("%d parameters given for %v in %dD, want %d", len(params), class, dim, l.total()))
	}

	p := params
	var t [3]float64
	copy(t[:], p[:l.Trans])
	p = p[l.Trans:]
	rot := rotationFromParams(p[:l.Rot], dim)
	p = p[l.Rot:]
	scale := scaleFromParams(p[:l.Iso], p[l.Iso:l.Iso+l.Aniso], dim)
	p = p[l.Iso+l.Aniso:]
	finish := rotationFromParams(p[:l.Finish], dim)
	finishInv := rotationFromParams(negated(p[:l.Finish]), dim)

	m := Translate([3]float64{-center[0], -center[1], -center[2]})
	post := func(step Matrix4) { m = step.Mul(m) }
	if class == ScaleSourceAxes {
		post(finishInv)
		post(Scale(scale))
		post(finish)
		post(initial)
		post(rot)
	} else {
		post(rot)
		post(initial)
		post(finishInv)
		post(Scale(scale))
		post(finish)
	}
	post(Translate(center))
	post(Translate(t))
	return m
}

// Splits a caller-supplied matrix into a translation-free initial matrix and
// the translation parameters which reproduce the matrix when all other
// parameters are zero. In 2D the z translation stays in the initial matrix.
func FactorInitial(m Matrix4, center [3]float64, dim int) (initial Matrix4, t [3]float64) {
	lin := m.Linear()
	lc := lin.Apply(center)
	o := m.Translation()
	for i := 0; i < 3; i++ {
		t[i] = o[i] + lc[i] - center[i]
	}
	initial = lin
	if dim == 2 {
		initial[2][3] = t[2]
		t[2] = 0
	}
	return initial, t
}

func rotationFromParams(r []float64, dim int) Matrix4 {
	switch len(r) {
	case 0:
		return Identity()
	case 1:
		return Rotation([3]float64{0, 0, r[0]})
	default:
		return Rotation([3]float64{r[0], r[1], r[2]})
	}
}

// Scale factors from the isotropic log-scale and the per-axis log deltas.
// The deltas keep the product of the factors equal to exp(dim*iso).
func scaleFromParams(iso, aniso []float64, dim int) [3]float64 {
	s := 0.0
	if len(iso) > 0 {
		s = iso[0]
	}
	var d0, d1 float64
	if len(aniso) > 0 {
		d0 = aniso[0]
	}
	if len(aniso) > 1 {
		d1 = aniso[1]
	}
	if dim == 2 {
		return [3]float64{math.Exp(s + d0), math.Exp(s - d0), 1}
	}
	return [3]float64{math.Exp(s + d0), math.Exp(s + d1), math.Exp(s - d0 - d1)}
}

func negated(a []float64) []float64 {
	res := make([]float64, len(a))
	for i, v := range a {
		res[i] = -v
	}
	return res
}
