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

package stats

import (
	"math"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/volreg/internal/qsort"
	"github.com/mlnoga/volreg/internal/volume"
)

// Estimates the intensity range of an image for histogram-based metrics.
// Large images are subsampled with a seeded RNG, so results are repeatable.
type PercentileRange struct {
	MaxSamples int    // 0 means all voxels
	Seed       uint32 // RNG seed for subsampling
}

// Returns the given percentiles of the voxels inside the stencil. trimPercent
// is removed from each end of the distribution; zero gives the full range.
// Returns [0,1] if no voxel is inside. The result is widened to [min, min+1]
// if degenerate.
func (pr PercentileRange) Range(img *volume.Image, stencil *volume.Stencil, trimPercent float64) (min, max float64) {
	samples := pr.sample(img, stencil)
	if len(samples) == 0 {
		return 0, 1
	}
	if trimPercent <= 0 {
		lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
		for _, v := range samples {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		min, max = float64(lo), float64(hi)
	} else {
		if trimPercent > 50 {
			trimPercent = 50
		}
		min = float64(qsort.QSelectPercentileFloat32(samples, trimPercent))
		max = float64(qsort.QSelectPercentileFloat32(samples, 100-trimPercent))
	}
	if !(max > min) {
		max = min + 1
	}
	return min, max
}

// Collects finite voxel values inside the stencil, subsampled if needed
func (pr PercentileRange) sample(img *volume.Image, stencil *volume.Stencil) []float32 {
	n := len(img.Data)
	if pr.MaxSamples <= 0 || pr.MaxSamples >= n {
		res := make([]float32, 0, n)
		for i, v := range img.Data {
			if stencil.Inside(i) && !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				res = append(res, v)
			}
		}
		return res
	}

	rng := fastrand.RNG{}
	rng.Seed(pr.Seed)
	res := make([]float32, 0, pr.MaxSamples)
	for tries := 0; len(res) < pr.MaxSamples && tries < 4*pr.MaxSamples; tries++ {
		i := int(rng.Uint32n(uint32(n)))
		v := img.Data[i]
		if stencil.Inside(i) && !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			res = append(res, v)
		}
	}
	return res
}
