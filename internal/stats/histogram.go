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

	"gonum.org/v1/gonum/stat"
)

// Maps intensities to bin indices. Values are clamped to [Min, Max] and
// rounded to the nearest of Bins equidistant bin centers, so Min falls
// into bin 0 and Max into bin Bins-1.
type Binner struct {
	Min, Max float64
	Bins     int
	scale    float64
}

// Creates a binner. A degenerate range max<=min is widened to [min, min+1]
func NewBinner(min, max float64, bins int) Binner {
	if bins < 1 {
		bins = 1
	}
	if !(max > min) {
		max = min + 1
	}
	scale := 0.0
	if bins > 1 {
		scale = float64(bins-1) / (max - min)
	}
	return Binner{Min: min, Max: max, Bins: bins, scale: scale}
}

// Returns the bin index of v. NaN maps to bin 0
func (b Binner) Bin(v float32) int {
	x := float64(v)
	if !(x > b.Min) {
		return 0
	}
	if x >= b.Max {
		return b.Bins - 1
	}
	return int(math.Floor((x-b.Min)*b.scale + 0.5))
}

// Calculate histogram of data between min and max into given bins.
// Values outside are clamped into the first and last bin
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	b := NewBinner(float64(min), float64(max), len(bins))
	for _, d := range data {
		bins[b.Bin(d)]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x float32, y int32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	x = min
	if len(bins) > 1 {
		x = min + float32(maxIndex)*(max-min)/float32(len(bins)-1)
	}
	return x, maxValue
}

// Returns the Shannon entropy in bits of a histogram of counts. Empty bins
// contribute nothing; an empty histogram has zero entropy
func Entropy(counts []float64) float64 {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return 0
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = c / total
	}
	return stat.Entropy(p) / math.Ln2
}

// Entropy of an int32 histogram, in bits
func EntropyInt32(counts []int32) float64 {
	f := make([]float64, len(counts))
	for i, c := range counts {
		f[i] = float64(c)
	}
	return Entropy(f)
}
