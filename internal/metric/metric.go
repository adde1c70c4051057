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

// Package metric computes similarity measures between two images sampled on
// the same voxel grid. Accumulation runs in parallel over z slabs, with one
// private partial result per worker, reduced in worker order.
package metric

import (
	"fmt"
	"strings"

	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/volume"
)

// Similarity metric variants
type Kind int

const (
	SquaredDifference Kind = iota
	CrossCorrelation
	CorrelationRatio
	NeighborhoodCorrelation
	MutualInformation
	NormalizedMutualInformation
)

var kindNames = []string{"ssd", "cc", "cr", "nc", "mi", "nmi"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metric '%s'", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseKind(string(b))
	return err
}

// Whether the metric bins intensities and thus needs known ranges
func (k Kind) NeedsRange() bool {
	return k == CorrelationRatio || k == MutualInformation || k == NormalizedMutualInformation
}

// Whether the metric bins target intensities too
func (k Kind) BinsTarget() bool {
	return k == MutualInformation || k == NormalizedMutualInformation
}

const (
	DefaultBins   = 64
	DefaultRadius = 7
)

// Metric configuration. Ranges are only used by binning metrics.
type Options struct {
	Workers     int
	SourceRange [2]float64 // intensity range of the source, for binning
	TargetRange [2]float64 // intensity range of the target, for binning
	SourceBins  int        // defaults to DefaultBins
	TargetBins  int        // defaults to DefaultBins
	Radius      [3]int     // neighborhood radius in voxels, defaults to DefaultRadius, at least 1

	// Checks whether a scratch buffer of the given size may be allocated.
	// Nil allows any size.
	Fits func(bytes int64) bool
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.SourceBins < 1 {
		o.SourceBins = DefaultBins
	}
	if o.TargetBins < 1 {
		o.TargetBins = DefaultBins
	}
	for i := range o.Radius {
		if o.Radius[i] == 0 {
			o.Radius[i] = DefaultRadius
		}
		if o.Radius[i] < 1 {
			o.Radius[i] = 1
		}
	}
	return o
}

// The outcome of one evaluation. Value is in the natural unit of the metric,
// Cost is the quantity to minimize. Count is the number of voxels sampled.
type Result struct {
	Value float64
	Cost  float64
	Count int
}

// A similarity metric between a source image resampled onto the target grid
// and the target image. Only voxels inside the mask count; a nil mask
// includes all voxels. Both images must have the same dimensions.
type Metric interface {
	Evaluate(source, target *volume.Image, mask *volume.Stencil) Result
}

// Creates a metric of the given kind
func New(k Kind, o Options) Metric {
	o = o.withDefaults()
	switch k {
	case SquaredDifference:
		return &ssd{o}
	case CrossCorrelation:
		return &crossCorrelation{o}
	case CorrelationRatio:
		return &correlationRatio{o}
	case NeighborhoodCorrelation:
		return &neighborhoodCorrelation{opts: o}
	case MutualInformation:
		return &mutualInformation{opts: o, normalized: false}
	case NormalizedMutualInformation:
		return &mutualInformation{opts: o, normalized: true}
	}
	panic(fmt.Sprintf("unknown metric kind %d", int(k)))
}

func checkGrids(source, target *volume.Image) {
	if source.Dims != target.Dims {
		panic(fmt.Sprintf("metric: source %v and target %v differ in size", source.Dims, target.Dims))
	}
}

// Calls fn for every masked voxel index in the z slab e
func forMasked(img *volume.Image, mask *volume.Stencil, e ops.Extent, fn func(i int)) {
	n := img.SliceLen()
	for i := e.Lo * n; i < e.Hi*n; i++ {
		if mask.Inside(i) {
			fn(i)
		}
	}
}
