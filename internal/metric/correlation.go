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
	"github.com/mlnoga/volreg/internal/stats"
	"github.com/mlnoga/volreg/internal/volume"
)

// Running first and second moments of an image pair
type moments struct {
	n                int
	s, t, ss, tt, st float64
}

func (m *moments) add(s, t float64) {
	m.n++
	m.s += s
	m.t += t
	m.ss += s * s
	m.tt += t * t
	m.st += s * t
}

func (m *moments) merge(o *moments) {
	m.n += o.n
	m.s += o.s
	m.t += o.t
	m.ss += o.ss
	m.tt += o.tt
	m.st += o.st
}

// Pearson correlation coefficient, zero if either variance vanishes
func (m *moments) correlation() float64 {
	if m.n == 0 {
		return 0
	}
	n := float64(m.n)
	vs := m.ss - m.s*m.s/n
	vt := m.tt - m.t*m.t/n
	if vs <= 0 || vt <= 0 {
		return 0
	}
	r := (m.st - m.s*m.t/n) / math.Sqrt(vs*vt)
	return math.Max(-1, math.Min(1, r))
}

// Normalized cross-correlation over all masked voxels
type crossCorrelation struct {
	opts Options
}

func (m *crossCorrelation) Evaluate(source, target *volume.Image, mask *volume.Stencil) Result {
	checkGrids(source, target)
	acc := ops.Reduce(target.Dims[2], m.opts.Workers,
		func() *moments { return &moments{} },
		func(a *moments, e ops.Extent) {
			forMasked(target, mask, e, func(i int) {
				a.add(float64(source.Data[i]), float64(target.Data[i]))
			})
		},
		(*moments).merge,
	)
	v := acc.correlation()
	return Result{Value: v, Cost: -v, Count: acc.n}
}

// Correlation ratio: the share of target variance explained by the binned
// source intensity
type correlationRatio struct {
	opts Options
}

// Per source bin target moments
type binMoments struct {
	n     []int
	t, tt []float64
}

func newBinMoments(bins int) *binMoments {
	return &binMoments{n: make([]int, bins), t: make([]float64, bins), tt: make([]float64, bins)}
}

func (b *binMoments) merge(o *binMoments) {
	for i := range b.n {
		b.n[i] += o.n[i]
		b.t[i] += o.t[i]
		b.tt[i] += o.tt[i]
	}
}

func (m *correlationRatio) Evaluate(source, target *volume.Image, mask *volume.Stencil) Result {
	checkGrids(source, target)
	binner := stats.NewBinner(m.opts.SourceRange[0], m.opts.SourceRange[1], m.opts.SourceBins)
	acc := ops.Reduce(target.Dims[2], m.opts.Workers,
		func() *binMoments { return newBinMoments(binner.Bins) },
		func(a *binMoments, e ops.Extent) {
			forMasked(target, mask, e, func(i int) {
				b := binner.Bin(source.Data[i])
				t := float64(target.Data[i])
				a.n[b]++
				a.t[b] += t
				a.tt[b] += t * t
			})
		},
		(*binMoments).merge,
	)

	n, t, tt, within := 0, 0.0, 0.0, 0.0
	for b, nb := range acc.n {
		if nb == 0 {
			continue
		}
		n += nb
		t += acc.t[b]
		tt += acc.tt[b]
		within += acc.tt[b] - acc.t[b]*acc.t[b]/float64(nb)
	}
	if n == 0 {
		return Result{}
	}
	total := tt - t*t/float64(n)
	if total <= 0 {
		return Result{Count: n}
	}
	v := math.Max(0, math.Min(1, 1-within/total))
	return Result{Value: v, Cost: -v, Count: n}
}
