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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// Writes every z slice to a 16-bit grayscale TIFF. The pattern must contain
// one integer verb for the slice index, e.g. "out/slice%03d.tif".
// Values are mapped linearly from [min, max] to [0, 65535].
func (img *Image) WriteTIFF16Slices(pattern string, min, max float32) error {
	for z := 0; z < img.Dims[2]; z++ {
		fileName := fmt.Sprintf(pattern, z)
		if err := img.WriteTIFF16SliceToFile(fileName, z, min, max); err != nil {
			return errors.Wrapf(err, "writing slice %d", z)
		}
	}
	return nil
}

// Writes the given z slice to a 16-bit grayscale TIFF file.
func (img *Image) WriteTIFF16SliceToFile(fileName string, z int, min, max float32) error {
	return writeFile(fileName, func(w io.Writer) error {
		return img.WriteTIFF16Slice(w, z, min, max)
	})
}

// Creates the file and writes it through a buffer. Flush and close errors
// are returned, so short writes are not lost.
func writeFile(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	if err := write(writer); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return errors.Wrapf(err, "writing %s", fileName)
	}
	return errors.Wrapf(file.Close(), "closing %s", fileName)
}

// Writes the given z slice as 16-bit grayscale TIFF.
func (img *Image) WriteTIFF16Slice(writer io.Writer, z int, min, max float32) error {
	width, height := img.Dims[0], img.Dims[1]
	out := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	offset := z * img.SliceLen()
	for y := 0; y < height; y++ {
		yoffset := offset + y*width
		for x := 0; x < width; x++ {
			gray := clamp01((img.Data[yoffset+x] - min) * scale)
			out.SetGray16(x, y, color.Gray16{uint16(gray*65535 + 0.5)})
		}
	}
	return tiff.Encode(writer, out, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Writes a false colour overlay of slice z of two images on the same grid to JPG.
// The target shows in magenta, the source in green, so aligned structures
// turn gray. Values are mapped linearly from [min, max] to [0, 1] per image.
func WriteOverlayJPGToFile(fileName string, target, source *Image, z int, targetMin, targetMax, sourceMin, sourceMax float32, quality int) error {
	return writeFile(fileName, func(w io.Writer) error {
		return WriteOverlayJPG(w, target, source, z, targetMin, targetMax, sourceMin, sourceMax, quality)
	})
}

// Writes a false colour overlay of slice z of two images on the same grid to JPG.
func WriteOverlayJPG(writer io.Writer, target, source *Image, z int, targetMin, targetMax, sourceMin, sourceMax float32, quality int) error {
	if target.Dims != source.Dims {
		return fmt.Errorf("overlay of %v and %v", target.Dims, source.Dims)
	}
	width, height := target.Dims[0], target.Dims[1]
	out := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	tScale, sScale := 1/(targetMax-targetMin), 1/(sourceMax-sourceMin)
	offset := z * target.SliceLen()
	for y := 0; y < height; y++ {
		yoffset := offset + y*width
		for x := 0; x < width; x++ {
			t := float64(clamp01((target.Data[yoffset+x] - targetMin) * tScale))
			s := float64(clamp01((source.Data[yoffset+x] - sourceMin) * sScale))
			c := colorful.LinearRgb(t, s, t).Clamped()
			r, g, b := c.RGB255()
			out.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}

// Clamps to [0,1], replacing NaNs with zero
func clamp01(v float32) float32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
