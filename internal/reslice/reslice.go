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

// Package reslice resamples a volume onto another voxel grid through a
// linear transform.
package reslice

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

// Interpolation modes
type Mode int

const (
	Nearest Mode = iota
	Linear
)

var modeNames = []string{"nearest", "linear"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(n, s) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown interpolation mode '%s'", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) (err error) {
	*m, err = ParseMode(string(b))
	return err
}

// Positions this close outside the outermost voxel centers, in voxels,
// still count as inside
const edgeTolerance = 1e-4

// Resamples with a fixed number of workers. Samples falling outside the
// source take the Background value and are marked outside in the returned stencil.
type Reslicer struct {
	Workers    int
	Background float32
}

// Samples src at every voxel of grid, mapping grid world positions into src
// world positions with m. out and inside are reused if they match the grid,
// else allocated. Returns the resampled image and its in-bounds stencil.
func (r *Reslicer) Resample(src, grid *volume.Image, m transform.Matrix4, mode Mode, out *volume.Image, inside *volume.Stencil) (*volume.Image, *volume.Stencil) {
	if out == nil || out.Dims != grid.Dims {
		out = volume.NewLike(grid)
	} else {
		out.Spacing, out.Origin = grid.Spacing, grid.Origin
	}
	if inside == nil || inside.Dims != grid.Dims {
		inside = volume.NewStencil(grid.Dims)
	}

	// voxel index mapping: u = a*(x,y,z) + b in source voxel coordinates
	var a [3][3]float64
	var b [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a[i][j] = m[i][j] * grid.Spacing[j] / src.Spacing[i]
		}
		q := m.Apply(grid.Origin)
		b[i] = (q[i] - src.Origin[i]) / src.Spacing[i]
	}

	dims := grid.Dims
	ops.ParallelFor(dims[2], r.Workers, func(_ int, e ops.Extent) {
		for z := e.Lo; z < e.Hi; z++ {
			for y := 0; y < dims[1]; y++ {
				var u [3]float64
				for i := 0; i < 3; i++ {
					u[i] = a[i][1]*float64(y) + a[i][2]*float64(z) + b[i]
				}
				idx := grid.Index(0, y, z)
				for x := 0; x < dims[0]; x, idx = x+1, idx+1 {
					var v float32
					var ok bool
					if mode == Nearest {
						v, ok = nearest(src, u)
					} else {
						v, ok = linear(src, u)
					}
					if !ok {
						v = r.Background
					}
					out.Data[idx] = v
					inside.Mask[idx] = ok
					u[0] += a[0][0]
					u[1] += a[1][0]
					u[2] += a[2][0]
				}
			}
		}
	})
	return out, inside
}

func nearest(src *volume.Image, u [3]float64) (float32, bool) {
	var p [3]int
	for i := 0; i < 3; i++ {
		f := math.Floor(u[i] + 0.5)
		if f < 0 || f > float64(src.Dims[i]-1) {
			return 0, false
		}
		p[i] = int(f)
	}
	return src.Data[src.Index(p[0], p[1], p[2])], true
}

func linear(src *volume.Image, u [3]float64) (float32, bool) {
	var i0 [3]int
	var f [3]float64
	for i := 0; i < 3; i++ {
		hi := float64(src.Dims[i] - 1)
		if u[i] < -edgeTolerance || u[i] > hi+edgeTolerance {
			return 0, false
		}
		c := math.Min(math.Max(u[i], 0), hi)
		fl := math.Floor(c)
		if fl >= hi {
			fl = math.Max(hi-1, 0)
		}
		i0[i] = int(fl)
		f[i] = c - fl
	}

	// neighbor offsets, zero along axes of size one
	dx, dy, dz := 1, src.Dims[0], src.SliceLen()
	if src.Dims[0] == 1 {
		dx = 0
	}
	if src.Dims[1] == 1 {
		dy = 0
	}
	if src.Dims[2] == 1 {
		dz = 0
	}
	base := src.Index(i0[0], i0[1], i0[2])
	d := src.Data
	fx, fy, fz := float32(f[0]), float32(f[1]), float32(f[2])
	c00 := d[base]*(1-fx) + d[base+dx]*fx
	c10 := d[base+dy]*(1-fx) + d[base+dy+dx]*fx
	c01 := d[base+dz]*(1-fx) + d[base+dz+dx]*fx
	c11 := d[base+dz+dy]*(1-fx) + d[base+dz+dy+dx]*fx
	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz, true
}
