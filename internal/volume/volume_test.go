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

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(dims [3]int) *Image {
	img := New(dims, [3]float64{1, 1, 2}, [3]float64{-5, 0, 10})
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				img.Set(x, y, z, float32(x+10*y+100*z))
			}
		}
	}
	return img
}

func TestGeometry(t *testing.T) {
	img := ramp([3]int{11, 5, 3})
	require.NoError(t, img.Validate())
	assert.Equal(t, [3]float64{0, 2, 12}, img.Center())
	lo, hi := img.Bounds()
	assert.Equal(t, [3]float64{-5, 0, 10}, lo)
	assert.Equal(t, [3]float64{5, 4, 14}, hi)
	assert.InDelta(t, 0.5*math.Sqrt(132), img.Radius(), 1e-12)
	assert.Equal(t, float32(3+10*2+100*1), img.At(3, 2, 1))
	assert.Equal(t, 1.0, img.MinSpacing())
	min, max := img.MinMax()
	assert.Equal(t, float32(0), min)
	assert.Equal(t, float32(10+40+200), max)
}

func TestValidate(t *testing.T) {
	var nilImg *Image
	assert.True(t, errors.Is(nilImg.Validate(), ErrNilImage))
	empty := New([3]int{0, 4, 4}, [3]float64{1, 1, 1}, [3]float64{})
	assert.True(t, errors.Is(empty.Validate(), ErrEmptyImage))
	bad := New([3]int{2, 2, 2}, [3]float64{1, -1, 1}, [3]float64{})
	assert.Error(t, bad.Validate())
}

func TestStencil(t *testing.T) {
	img := ramp([3]int{4, 4, 2})
	a := NewStencilAbove(img, 100)
	assert.Equal(t, 16-1, a.Count())
	require.NoError(t, a.Validate(img))

	var all *Stencil
	assert.True(t, all.Inside(3))
	b := NewStencil(img.Dims)
	for i := 0; i < len(b.Mask); i += 2 {
		b.Mask[i] = true
	}
	dst := Intersect(NewStencil(img.Dims), a, b)
	for i := range dst.Mask {
		assert.Equal(t, a.Mask[i] && b.Mask[i], dst.Mask[i])
	}
	assert.Equal(t, a.Mask, Intersect(NewStencil(img.Dims), a, nil).Mask)
	assert.Error(t, NewStencil([3]int{1, 1, 1}).Validate(img))
}

func TestShrink(t *testing.T) {
	img := ramp([3]int{5, 4, 4})
	for _, workers := range []int{1, 3} {
		s := img.Shrink([3]int{2, 2, 2}, workers)
		assert.Equal(t, [3]int{3, 2, 2}, s.Dims)
		assert.Equal(t, [3]float64{2, 2, 4}, s.Spacing)
		assert.Equal(t, [3]float64{-4.5, 0.5, 11}, s.Origin)
		// block mean of x in {0,1}, y in {0,1}, z in {0,1}
		assert.InDelta(t, 0.5+5+50, s.At(0, 0, 0), 1e-5)
		// partial block x=4 only
		assert.InDelta(t, 4+25+250, s.At(2, 1, 1), 1e-5)
	}
	st := NewStencil(img.Dims)
	st.Mask[img.Index(4, 3, 3)] = true
	ss := st.Shrink([3]int{2, 2, 2})
	assert.Equal(t, 1, ss.Count())
	assert.True(t, ss.Mask[2+3*(1+2*1)])
}

func TestTIFF16Slices(t *testing.T) {
	dir := t.TempDir()
	img := ramp([3]int{6, 3, 4})
	min, max := img.MinMax()
	require.NoError(t, img.WriteTIFF16Slices(filepath.Join(dir, "slice%03d.tif"), min, max))

	read, err := ReadSlices([]string{filepath.Join(dir, "slice*.tif")}, img.Spacing, img.Origin, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, img.Dims, read.Dims)
	scale := float32(65535) / (max - min)
	for i := range img.Data {
		assert.InDelta(t, (img.Data[i]-min)*scale, read.Data[i], 1)
	}
}

func TestReadPNGSlices(t *testing.T) {
	dir := t.TempDir()
	for z := 0; z < 3; z++ {
		g := image.NewGray(image.Rect(0, 0, 4, 2))
		for i := range g.Pix {
			g.Pix[i] = uint8(10*z + i)
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, g))
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("s%d.png", z)), buf.Bytes(), 0644))
	}
	var log bytes.Buffer
	img, err := ReadSlices([]string{filepath.Join(dir, "*.png")}, [3]float64{1, 1, 1}, [3]float64{}, 4, &log)
	require.NoError(t, err)
	assert.Equal(t, [3]int{4, 2, 3}, img.Dims)
	assert.Equal(t, float32(20+5), img.At(1, 1, 2))
	assert.Contains(t, log.String(), "from 3 slices")

	_, err = ReadSlices([]string{filepath.Join(dir, "*.none")}, [3]float64{1, 1, 1}, [3]float64{}, 1, nil)
	assert.Error(t, err)
}

func TestOverlayJPG(t *testing.T) {
	tgt := ramp([3]int{8, 8, 2})
	var buf bytes.Buffer
	require.NoError(t, WriteOverlayJPG(&buf, tgt, tgt, 1, 0, 300, 0, 300, 90))
	dec, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), dec.Bounds())

	// identical images overlay as gray
	r, g, b, _ := color.RGBAModel.Convert(dec.At(7, 7)).RGBA()
	assert.InDelta(t, float64(r), float64(g), 4*257)
	assert.InDelta(t, float64(g), float64(b), 4*257)

	assert.Error(t, WriteOverlayJPG(&buf, tgt, ramp([3]int{4, 4, 2}), 0, 0, 1, 0, 1, 90))
}

func TestFileWritersReportShortWrites(t *testing.T) {
	img := ramp([3]int{8, 8, 2})
	fileName := filepath.Join(t.TempDir(), "overlay.jpg")
	require.NoError(t, WriteOverlayJPGToFile(fileName, img, img, 0, 0, 300, 0, 300, 90))
	file, err := os.Open(fileName)
	require.NoError(t, err)
	defer file.Close()
	_, err = jpeg.Decode(file)
	require.NoError(t, err)

	// every write to /dev/full fails with ENOSPC
	full, err := os.OpenFile("/dev/full", os.O_WRONLY, 0)
	if err != nil {
		t.Skip("no /dev/full on this system")
	}
	full.Close()
	assert.Error(t, img.WriteTIFF16SliceToFile("/dev/full", 0, 0, 300))
	assert.Error(t, WriteOverlayJPGToFile("/dev/full", img, img, 0, 0, 300, 0, 300, 90))
}
