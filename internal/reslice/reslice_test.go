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

package reslice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

func ramp(dims [3]int, spacing [3]float64) *volume.Image {
	img := volume.New(dims, spacing, [3]float64{})
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				img.Set(x, y, z, float32(x+10*y+100*z))
			}
		}
	}
	return img
}

func TestIdentity(t *testing.T) {
	src := ramp([3]int{6, 5, 4}, [3]float64{1, 2, 3})
	for _, mode := range []Mode{Nearest, Linear} {
		r := &Reslicer{Workers: 3}
		out, inside := r.Resample(src, src, transform.Identity(), mode, nil, nil)
		assert.Equal(t, src.Data, out.Data, "%v", mode)
		assert.Equal(t, src.Len(), inside.Count())
	}
}

func TestTranslationShifts(t *testing.T) {
	src := ramp([3]int{6, 5, 4}, [3]float64{2, 2, 2})
	m := transform.Translate([3]float64{2, 0, 0}) // one voxel along x
	r := &Reslicer{Workers: 2, Background: -1}
	for _, mode := range []Mode{Nearest, Linear} {
		out, inside := r.Resample(src, src, m, mode, nil, nil)
		for z := 0; z < 4; z++ {
			for y := 0; y < 5; y++ {
				for x := 0; x < 5; x++ {
					assert.Equal(t, src.At(x+1, y, z), out.At(x, y, z))
					assert.True(t, inside.Inside(out.Index(x, y, z)))
				}
				assert.Equal(t, float32(-1), out.At(5, y, z))
				assert.False(t, inside.Inside(out.Index(5, y, z)))
			}
		}
	}
}

func TestLinearInterpolates(t *testing.T) {
	src := ramp([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	m := transform.Translate([3]float64{0.5, 0.25, 0.5})
	r := &Reslicer{Workers: 1}
	out, inside := r.Resample(src, src, m, Linear, nil, nil)
	// the ramp is linear, so interpolation is exact
	assert.InDelta(t, 1.5+22.5+150, out.At(1, 2, 1), 1e-4)
	assert.True(t, inside.Inside(out.Index(1, 2, 1)))
	assert.False(t, inside.Inside(out.Index(3, 0, 0)))

	near, _ := r.Resample(src, src, transform.Translate([3]float64{0.4, 0, 0}), Nearest, nil, nil)
	assert.Equal(t, src.At(1, 1, 1), near.At(1, 1, 1))
}

func TestWorkersAgree(t *testing.T) {
	src := ramp([3]int{9, 7, 5}, [3]float64{1, 1, 1.5})
	m := transform.Compose([]float64{0.3, -0.7, 0.2, 0.05, -0.02, 0.1}, transform.Rigid, 3, src.Center(), transform.Identity())
	ref, refIn := (&Reslicer{Workers: 1}).Resample(src, src, m, Linear, nil, nil)
	for _, w := range []int{2, 8} {
		out, in := (&Reslicer{Workers: w}).Resample(src, src, m, Linear, nil, nil)
		assert.Equal(t, ref.Data, out.Data)
		assert.Equal(t, refIn.Mask, in.Mask)
	}
}

func TestBuffersAreReused(t *testing.T) {
	src := ramp([3]int{3, 3, 3}, [3]float64{1, 1, 1})
	r := &Reslicer{Workers: 1}
	out, in := r.Resample(src, src, transform.Identity(), Nearest, nil, nil)
	out2, in2 := r.Resample(src, src, transform.Identity(), Nearest, out, in)
	assert.Same(t, out, out2)
	assert.Same(t, in, in2)
}

func TestSingleSlice(t *testing.T) {
	src := ramp([3]int{5, 5, 1}, [3]float64{1, 1, 1})
	m := transform.Translate([3]float64{0.5, 0, 0})
	out, inside := (&Reslicer{Workers: 2}).Resample(src, src, m, Linear, nil, nil)
	assert.InDelta(t, 2.5+10, out.At(2, 1, 0), 1e-5)
	assert.Equal(t, 4*5, inside.Count())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("LINEAR")
	require.NoError(t, err)
	assert.Equal(t, Linear, m)
	_, err = ParseMode("sinc")
	assert.Error(t, err)
}
