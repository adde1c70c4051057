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

package volume

import "fmt"

// A voxel membership mask over an image grid. A nil stencil contains every voxel.
type Stencil struct {
	Dims [3]int
	Mask []bool
}

// Creates a stencil with no voxels inside
func NewStencil(dims [3]int) *Stencil {
	return &Stencil{Dims: dims, Mask: make([]bool, dims[0]*dims[1]*dims[2])}
}

// Creates a stencil of the voxels strictly above the threshold
func NewStencilAbove(img *Image, threshold float32) *Stencil {
	s := NewStencil(img.Dims)
	for i, v := range img.Data {
		s.Mask[i] = v > threshold
	}
	return s
}

// Checks whether voxel i is inside
func (s *Stencil) Inside(i int) bool {
	return s == nil || s.Mask[i]
}

// Number of voxels inside
func (s *Stencil) Count() int {
	n := 0
	for _, m := range s.Mask {
		if m {
			n++
		}
	}
	return n
}

// Checks the stencil matches the given image grid
func (s *Stencil) Validate(img *Image) error {
	if s == nil {
		return nil
	}
	if s.Dims != img.Dims || len(s.Mask) != img.Len() {
		return fmt.Errorf("stencil dimensions %v do not match image %v", s.Dims, img.Dims)
	}
	return nil
}

// Writes the intersection of a and b into dst, which must have the same
// dimensions. Either of a and b may be nil. Returns dst.
func Intersect(dst, a, b *Stencil) *Stencil {
	for i := range dst.Mask {
		dst.Mask[i] = a.Inside(i) && b.Inside(i)
	}
	return dst
}
