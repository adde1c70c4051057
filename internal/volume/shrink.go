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

import "github.com/mlnoga/volreg/internal/ops"

// Downsamples by an integer factor per axis, averaging each block of voxels.
// Blocks at the upper edges may be partial. The world extent is preserved:
// output voxels sit at the centers of their blocks.
func (img *Image) Shrink(factor [3]int, workers int) *Image {
	for i := range factor {
		if factor[i] < 1 {
			factor[i] = 1
		}
	}
	if factor == [3]int{1, 1, 1} {
		return img.Clone()
	}
	var dims [3]int
	var spacing, origin [3]float64
	for i := range dims {
		dims[i] = (img.Dims[i] + factor[i] - 1) / factor[i]
		spacing[i] = img.Spacing[i] * float64(factor[i])
		origin[i] = img.Origin[i] + 0.5*float64(factor[i]-1)*img.Spacing[i]
	}
	res := New(dims, spacing, origin)

	ops.ParallelFor(dims[2], workers, func(_ int, e ops.Extent) {
		for oz := e.Lo; oz < e.Hi; oz++ {
			for oy := 0; oy < dims[1]; oy++ {
				for ox := 0; ox < dims[0]; ox++ {
					sum, n := float64(0), 0
					for z := oz * factor[2]; z < (oz+1)*factor[2] && z < img.Dims[2]; z++ {
						for y := oy * factor[1]; y < (oy+1)*factor[1] && y < img.Dims[1]; y++ {
							for x := ox * factor[0]; x < (ox+1)*factor[0] && x < img.Dims[0]; x++ {
								sum += float64(img.At(x, y, z))
								n++
							}
						}
					}
					res.Set(ox, oy, oz, float32(sum/float64(n)))
				}
			}
		}
	})
	return res
}

// Shrinks a stencil the same way. An output voxel is inside if any voxel of its block is.
func (s *Stencil) Shrink(factor [3]int) *Stencil {
	if s == nil {
		return nil
	}
	for i := range factor {
		if factor[i] < 1 {
			factor[i] = 1
		}
	}
	var dims [3]int
	for i := range dims {
		dims[i] = (s.Dims[i] + factor[i] - 1) / factor[i]
	}
	res := NewStencil(dims)
	for z := 0; z < s.Dims[2]; z++ {
		for y := 0; y < s.Dims[1]; y++ {
			for x := 0; x < s.Dims[0]; x++ {
				if s.Mask[x+s.Dims[0]*(y+s.Dims[1]*z)] {
					ox, oy, oz := x/factor[0], y/factor[1], z/factor[2]
					res.Mask[ox+dims[0]*(oy+dims[1]*oz)] = true
				}
			}
		}
	}
	return res
}
