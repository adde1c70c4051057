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

package metric

import (
	"math"

	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/volume"
)

// Mean of the normalized cross-correlation over a box window around every
// masked voxel. Window sums come from summed-volume tables, so the cost per
// center does not depend on the radius. The table is kept between calls and
// rebuilt in place, so a metric must not be evaluated concurrently.
type neighborhoodCorrelation struct {
	opts  Options
	table *summedVolume
}

// Channels of the summed-volume table
const (
	chN = iota
	chS
	chT
	chSS
	chTT
	chST
	numCh
)

// Local variances at or below this fraction of the local second moment are treated as flat
const flatVariance = 1e-12

// Inclusive prefix sums over the masked voxels, with one zero border plane per axis
type summedVolume struct {
	dims [3]int // table dims, one larger than the image per axis
	data []float64
}

func (sv *summedVolume) index(x, y, z int) int {
	return ((z*sv.dims[1]+y)*sv.dims[0] + x) * numCh
}

// Sums the channels over the voxel box [lo, hi)
func (sv *summedVolume) box(lo, hi [3]int) (res [numCh]float64) {
	d := sv.data
	i111, i011 := sv.index(hi[0], hi[1], hi[2]), sv.index(lo[0], hi[1], hi[2])
	i101, i001 := sv.index(hi[0], lo[1], hi[2]), sv.index(lo[0], lo[1], hi[2])
	i110, i010 := sv.index(hi[0], hi[1], lo[2]), sv.index(lo[0], hi[1], lo[2])
	i100, i000 := sv.index(hi[0], lo[1], lo[2]), sv.index(lo[0], lo[1], lo[2])
	for c := 0; c < numCh; c++ {
		res[c] = d[i111+c] - d[i011+c] - d[i101+c] + d[i001+c] -
			d[i110+c] + d[i010+c] + d[i100+c] - d[i000+c]
	}
	return res
}

// Size in bytes of the table for an image of the given dims
func summedVolumeBytes(dims [3]int) int64 {
	return int64(dims[0]+1) * int64(dims[1]+1) * int64(dims[2]+1) * numCh * 8
}

func newSummedVolume(dims [3]int) *summedVolume {
	sv := &summedVolume{dims: [3]int{dims[0] + 1, dims[1] + 1, dims[2] + 1}}
	sv.data = make([]float64, sv.dims[0]*sv.dims[1]*sv.dims[2]*numCh)
	return sv
}

// Fills the table from mean-centered intensities. Slices are integrated in
// parallel, then columns along z in parallel. Every interior entry is
// overwritten and the zero border planes are never written, so a table
// can be refilled without clearing.
func (sv *summedVolume) fill(source, target *volume.Image, mask *volume.Stencil, meanS, meanT float64, workers int) {
	dims := source.Dims

	ops.ParallelFor(dims[2], workers, func(_ int, e ops.Extent) {
		for z := e.Lo; z < e.Hi; z++ {
			for y := 0; y < dims[1]; y++ {
				src := source.Index(0, y, z)
				for x := 0; x < dims[0]; x, src = x+1, src+1 {
					var v [numCh]float64
					if mask.Inside(src) {
						s, t := float64(source.Data[src])-meanS, float64(target.Data[src])-meanT
						v = [numCh]float64{1, s, t, s * s, t * t, s * t}
					}
					dst := sv.index(x+1, y+1, z+1)
					up, left, diag := sv.index(x+1, y, z+1), sv.index(x, y+1, z+1), sv.index(x, y, z+1)
					for c := 0; c < numCh; c++ {
						sv.data[dst+c] = v[c] + sv.data[up+c] + sv.data[left+c] - sv.data[diag+c]
					}
				}
			}
		}
	})

	ops.ParallelFor(dims[1], workers, func(_ int, e ops.Extent) {
		for y := e.Lo + 1; y <= e.Hi; y++ {
			for z := 2; z <= dims[2]; z++ {
				for x := 1; x <= dims[0]; x++ {
					dst, prev := sv.index(x, y, z), sv.index(x, y, z-1)
					for c := 0; c < numCh; c++ {
						sv.data[dst+c] += sv.data[prev+c]
					}
				}
			}
		}
	})
}

// Returns the table for the given dims, reusing the previous one if it
// matches. Returns nil if a new table does not fit the buffer budget.
func (m *neighborhoodCorrelation) summedVolume(dims [3]int) *summedVolume {
	want := [3]int{dims[0] + 1, dims[1] + 1, dims[2] + 1}
	if m.table != nil && m.table.dims == want {
		return m.table
	}
	m.table = nil
	if m.opts.Fits != nil && !m.opts.Fits(summedVolumeBytes(dims)) {
		return nil
	}
	m.table = newSummedVolume(dims)
	return m.table
}

// Sums the channels over the voxel box [lo, hi) directly, without a table
func boxDirect(source, target *volume.Image, mask *volume.Stencil, meanS, meanT float64, lo, hi [3]int) (res [numCh]float64) {
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			i := source.Index(lo[0], y, z)
			for x := lo[0]; x < hi[0]; x, i = x+1, i+1 {
				if !mask.Inside(i) {
					continue
				}
				s, t := float64(source.Data[i])-meanS, float64(target.Data[i])-meanT
				res[chN]++
				res[chS] += s
				res[chT] += t
				res[chSS] += s * s
				res[chTT] += t * t
				res[chST] += s * t
			}
		}
	}
	return res
}

type ncAcc struct {
	sum float64
	n   int
}

func (m *neighborhoodCorrelation) Evaluate(source, target *volume.Image, mask *volume.Stencil) Result {
	checkGrids(source, target)
	workers := m.opts.Workers

	// global means keep the table entries small
	mom := ops.Reduce(target.Dims[2], workers,
		func() *moments { return &moments{} },
		func(a *moments, e ops.Extent) {
			forMasked(target, mask, e, func(i int) {
				a.add(float64(source.Data[i]), float64(target.Data[i]))
			})
		},
		(*moments).merge,
	)
	if mom.n == 0 {
		return Result{}
	}
	meanS, meanT := mom.s/float64(mom.n), mom.t/float64(mom.n)
	box := func(lo, hi [3]int) [numCh]float64 {
		return boxDirect(source, target, mask, meanS, meanT, lo, hi)
	}
	if sv := m.summedVolume(target.Dims); sv != nil {
		sv.fill(source, target, mask, meanS, meanT, workers)
		box = sv.box
	}

	dims, r := target.Dims, m.opts.Radius
	acc := ops.Reduce(dims[2], workers,
		func() *ncAcc { return &ncAcc{} },
		func(a *ncAcc, e ops.Extent) {
			for z := e.Lo; z < e.Hi; z++ {
				for y := 0; y < dims[1]; y++ {
					i := target.Index(0, y, z)
					for x := 0; x < dims[0]; x, i = x+1, i+1 {
						if !mask.Inside(i) {
							continue
						}
						lo := [3]int{max(x-r[0], 0), max(y-r[1], 0), max(z-r[2], 0)}
						hi := [3]int{min(x+r[0]+1, dims[0]), min(y+r[1]+1, dims[1]), min(z+r[2]+1, dims[2])}
						if ncc, ok := localCorrelation(box(lo, hi)); ok {
							a.sum += ncc
							a.n++
						}
					}
				}
			}
		},
		func(into, from *ncAcc) {
			into.sum += from.sum
			into.n += from.n
		},
	)
	if acc.n == 0 {
		return Result{}
	}
	v := acc.sum / float64(acc.n)
	return Result{Value: v, Cost: -v, Count: acc.n}
}

// Correlation of one window, false if the window is too small or flat
func localCorrelation(b [numCh]float64) (float64, bool) {
	n := b[chN]
	if n < 2 {
		return 0, false
	}
	vs := b[chSS] - b[chS]*b[chS]/n
	vt := b[chTT] - b[chT]*b[chT]/n
	if vs <= flatVariance*b[chSS] || vt <= flatVariance*b[chTT] || vs <= 0 || vt <= 0 {
		return 0, false
	}
	r := (b[chST] - b[chS]*b[chT]/n) / math.Sqrt(vs*vt)
	return math.Max(-1, math.Min(1, r)), true
}
