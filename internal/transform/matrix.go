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
	"strings"

	"gonum.org/v1/gonum/mat"
)

// A homogeneous 4x4 matrix in row-major order. Points are column vectors,
// so the translation lives in the last column.
type Matrix4 [4][4]float64

// Returns the identity matrix
func Identity() Matrix4 {
	return Matrix4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Returns a pure translation
func Translate(t [3]float64) Matrix4 {
	m := Identity()
	m[0][3], m[1][3], m[2][3] = t[0], t[1], t[2]
	return m
}

// Returns a pure axis scaling
func Scale(s [3]float64) Matrix4 {
	m := Identity()
	m[0][0], m[1][1], m[2][2] = s[0], s[1], s[2]
	return m
}

// Creates a matrix from a gonum 4x4 matrix
func FromDense(d mat.Matrix) Matrix4 {
	var m Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Returns a gonum copy of the matrix
func (m Matrix4) Dense() *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		d.SetRow(i, m[i][:])
	}
	return d
}

// Returns the product m*b, i.e. b applied first
func (m Matrix4) Mul(b Matrix4) Matrix4 {
	var d mat.Dense
	d.Mul(m.Dense(), b.Dense())
	return FromDense(&d)
}

// Returns the inverse, or an error if the matrix is singular
func (m Matrix4) Inverse() (Matrix4, error) {
	var d mat.Dense
	if err := d.Inverse(m.Dense()); err != nil {
		return Matrix4{}, fmt.Errorf("inverting matrix: %w", err)
	}
	return FromDense(&d), nil
}

// Applies the matrix to a point
func (m Matrix4) Apply(p [3]float64) (q [3]float64) {
	for i := 0; i < 3; i++ {
		q[i] = m[i][0]*p[0] + m[i][1]*p[1] + m[i][2]*p[2] + m[i][3]
	}
	return q
}

// Returns the translation column
func (m Matrix4) Translation() [3]float64 {
	return [3]float64{m[0][3], m[1][3], m[2][3]}
}

// Returns a copy with the translation column zeroed
func (m Matrix4) Linear() Matrix4 {
	m[0][3], m[1][3], m[2][3] = 0, 0, 0
	return m
}

// Checks whether the last row is (0,0,0,1)
func (m Matrix4) IsAffine() bool {
	return m[3][0] == 0 && m[3][1] == 0 && m[3][2] == 0 && m[3][3] == 1
}

func (m Matrix4) String() string {
	var sb strings.Builder
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&sb, "%12.6f %12.6f %12.6f %12.6f\n", m[i][0], m[i][1], m[i][2], m[i][3])
	}
	return sb.String()
}
