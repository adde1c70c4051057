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
	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/stats"
	"github.com/mlnoga/volreg/internal/volume"
)

// Co-occurrence counts of quantized source and target intensities.
// Counts are integral, so the histogram does not depend on voxel order.
type JointHistogram struct {
	SourceBins, TargetBins int
	Counts                 []float64 // row major, source bin selects the row
	Total                  int
}

func NewJointHistogram(sourceBins, targetBins int) *JointHistogram {
	return &JointHistogram{
		SourceBins: sourceBins,
		TargetBins: targetBins,
		Counts:     make([]float64, sourceBins*targetBins),
	}
}

func (h *JointHistogram) Add(a, b int) {
	h.Counts[a*h.TargetBins+b]++
	h.Total++
}

// Adds the counts of o into h
func (h *JointHistogram) Merge(o *JointHistogram) {
	floats.Add(h.Counts, o.Counts)
	h.Total += o.Total
}

// Marginal counts of source and target bins
func (h *JointHistogram) Marginals() (source, target []float64) {
	source, target = make([]float64, h.SourceBins), make([]float64, h.TargetBins)
	for a := 0; a < h.SourceBins; a++ {
		row := h.Counts[a*h.TargetBins : (a+1)*h.TargetBins]
		source[a] = floats.Sum(row)
		floats.Add(target, row)
	}
	return source, target
}

// Marginal and joint Shannon entropies in bits
func (h *JointHistogram) Entropies() (hs, ht, hst float64) {
	ms, mt := h.Marginals()
	return stats.Entropy(ms), stats.Entropy(mt), stats.Entropy(h.Counts)
}

// Mutual information in bits, zero for an empty histogram
func (h *JointHistogram) MutualInformation() float64 {
	if h.Total == 0 {
		return 0
	}
	hs, ht, hst := h.Entropies()
	mi := hs + ht - hst
	if mi < 0 {
		mi = 0 // rounding
	}
	return mi
}

// (H(s)+H(t))/H(s,t), one if the joint entropy is zero, zero for an empty histogram
func (h *JointHistogram) NormalizedMutualInformation() float64 {
	if h.Total == 0 {
		return 0
	}
	hs, ht, hst := h.Entropies()
	if hst <= 0 {
		return 1
	}
	return (hs + ht) / hst
}

// Mutual information or normalized mutual information of binned intensities
type mutualInformation struct {
	opts       Options
	normalized bool
}

// Accumulates the joint histogram of the masked voxels in parallel, with one
// private histogram per worker
func (m *mutualInformation) Histogram(source, target *volume.Image, mask *volume.Stencil) *JointHistogram {
	checkGrids(source, target)
	sb := stats.NewBinner(m.opts.SourceRange[0], m.opts.SourceRange[1], m.opts.SourceBins)
	tb := stats.NewBinner(m.opts.TargetRange[0], m.opts.TargetRange[1], m.opts.TargetBins)
	return ops.Reduce(target.Dims[2], m.opts.Workers,
		func() *JointHistogram { return NewJointHistogram(sb.Bins, tb.Bins) },
		func(h *JointHistogram, e ops.Extent) {
			forMasked(target, mask, e, func(i int) {
				h.Add(sb.Bin(source.Data[i]), tb.Bin(target.Data[i]))
			})
		},
		(*JointHistogram).Merge,
	)
}

func (m *mutualInformation) Evaluate(source, target *volume.Image, mask *volume.Stencil) Result {
	h := m.Histogram(source, target, mask)
	v := 0.0
	if m.normalized {
		v = h.NormalizedMutualInformation()
	} else {
		v = h.MutualInformation()
	}
	return Result{Value: v, Cost: -v, Count: h.Total}
}
