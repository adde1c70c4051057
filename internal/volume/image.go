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

// Package volume holds scalar 3-D images on a regular grid, voxel masks,
// and reading and writing them as stacks of 2-D slices.
package volume

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNilImage   = errors.New("image is nil")
	ErrEmptyImage = errors.New("image has zero size")
)

// A scalar 3-D image. Voxel (x,y,z) is stored at Data[x+Dims[0]*(y+Dims[1]*z)]
// and sits at world position Origin+Spacing*(x,y,z), in millimetres.
type Image struct {
	Dims    [3]int
	Spacing [3]float64
	Origin  [3]float64
	Data    []float32
}

// Creates a zero image with the given geometry. Zero spacings become 1
func New(dims [3]int, spacing, origin [3]float64) *Image {
	for i := range spacing {
		if spacing[i] == 0 {
			spacing[i] = 1
		}
	}
	n := dims[0] * dims[1] * dims[2]
	if n < 0 {
		n = 0
	}
	return &Image{Dims: dims, Spacing: spacing, Origin: origin, Data: make([]float32, n)}
}

// Creates a zero image with the same geometry
func NewLike(img *Image) *Image {
	return New(img.Dims, img.Spacing, img.Origin)
}

// Checks the image is usable for registration
func (img *Image) Validate() error {
	if img == nil {
		return ErrNilImage
	}
	if img.Dims[0] <= 0 || img.Dims[1] <= 0 || img.Dims[2] <= 0 {
		return fmt.Errorf("%w: dimensions %v", ErrEmptyImage, img.Dims)
	}
	if len(img.Data) != img.Len() {
		return fmt.Errorf("image has %d voxels, dimensions %v need %d", len(img.Data), img.Dims, img.Len())
	}
	for i, s := range img.Spacing {
		if !(s > 0) {
			return fmt.Errorf("invalid spacing %g along axis %d", s, i)
		}
	}
	return nil
}

func (img *Image) Len() int { return img.Dims[0] * img.Dims[1] * img.Dims[2] }

// Number of voxels per z slice
func (img *Image) SliceLen() int { return img.Dims[0] * img.Dims[1] }

func (img *Image) Index(x, y, z int) int {
	return x + img.Dims[0]*(y+img.Dims[1]*z)
}

func (img *Image) At(x, y, z int) float32 { return img.Data[img.Index(x, y, z)] }

func (img *Image) Set(x, y, z int, v float32) { img.Data[img.Index(x, y, z)] = v }

// Returns the world position of a voxel
func (img *Image) Position(x, y, z int) [3]float64 {
	return [3]float64{
		img.Origin[0] + img.Spacing[0]*float64(x),
		img.Origin[1] + img.Spacing[1]*float64(y),
		img.Origin[2] + img.Spacing[2]*float64(z),
	}
}

// Returns the world positions of the first and last voxel centers
func (img *Image) Bounds() (lo, hi [3]float64) {
	lo = img.Origin
	hi = img.Position(img.Dims[0]-1, img.Dims[1]-1, img.Dims[2]-1)
	return lo, hi
}

// Returns the center of the image bounds
func (img *Image) Center() [3]float64 {
	lo, hi := img.Bounds()
	return [3]float64{0.5 * (lo[0] + hi[0]), 0.5 * (lo[1] + hi[1]), 0.5 * (lo[2] + hi[2])}
}

// Returns half the diagonal of the image bounds
func (img *Image) Radius() float64 {
	lo, hi := img.Bounds()
	sum := 0.0
	for i := range lo {
		d := hi[i] - lo[i]
		sum += d * d
	}
	return 0.5 * math.Sqrt(sum)
}

func (img *Image) MinSpacing() float64 {
	return math.Min(img.Spacing[0], math.Min(img.Spacing[1], img.Spacing[2]))
}

// Returns the minimum and maximum voxel value, ignoring NaNs
func (img *Image) MinMax() (min, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range img.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func (img *Image) Clone() *Image {
	res := *img
	res.Data = append([]float32(nil), img.Data...)
	return &res
}

func (img *Image) String() string {
	return fmt.Sprintf("%dx%dx%d voxels of %.3gx%.3gx%.3g mm", img.Dims[0], img.Dims[1], img.Dims[2],
		img.Spacing[0], img.Spacing[1], img.Spacing[2])
}
