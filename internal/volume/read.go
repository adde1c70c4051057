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
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"

	"github.com/mlnoga/volreg/internal/ops"
)

// Expands file name patterns with wildcards into a sorted list of unique file names
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var res []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				res = append(res, m)
			}
		}
	}
	sort.Strings(res)
	return res, nil
}

// Reads a stack of 2-D grayscale slices into a volume, one slice per file,
// in sorted file name order. Slices are decoded concurrently.
func ReadSlices(patterns []string, spacing, origin [3]float64, maxThreads int, logWriter io.Writer) (*Image, error) {
	fileNames, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no slices match %s", strings.Join(patterns, ", "))
	}

	type slice struct {
		w, h int
		data []float32
	}
	promises := make([]ops.Promise[slice], len(fileNames))
	for i, fileName := range fileNames {
		fileName := fileName
		promises[i] = func() (slice, error) {
			w, h, data, err := ReadSlice(fileName)
			return slice{w, h, data}, err
		}
	}
	slices, err := ops.MaterializeAll(promises, maxThreads)
	if err != nil {
		return nil, err
	}

	w, h := slices[0].w, slices[0].h
	img := New([3]int{w, h, len(slices)}, spacing, origin)
	for z, s := range slices {
		if s.w != w || s.h != h {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", fileNames[z], s.w, s.h, w, h)
		}
		copy(img.Data[z*w*h:], s.data)
	}
	if logWriter != nil {
		min, max := img.MinMax()
		fmt.Fprintf(logWriter, "Loaded %v from %d slices, range [%g, %g]\n", img, len(slices), min, max)
	}
	return img, nil
}

// Reads a single 2-D grayscale slice from a TIFF, PNG or JPEG file.
// Colour images are converted to 16-bit luminance.
func ReadSlice(fileName string) (w, h int, data []float32, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return 0, 0, nil, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	var img image.Image
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(reader)
	case ".png":
		img, err = png.Decode(reader)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(reader)
	default:
		return 0, 0, nil, fmt.Errorf("unsupported slice format %s", fileName)
	}
	if err != nil {
		return 0, 0, nil, errors.Wrapf(err, "decoding %s", fileName)
	}

	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	data = make([]float32, w*h)
	switch g := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float32(g.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float32(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				data[y*w+x] = float32(c.Y)
			}
		}
	}
	return w, h, data, nil
}
