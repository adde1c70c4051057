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
	"github.com/mlnoga/volreg/internal/volume"
)

// Mean of squared intensity differences. Lower is better, so the cost equals the value
type ssd struct {
	opts Options
}

type sumAcc struct {
	sum   float64
	count int
}

func (m *ssd) Evaluate(source, target *volume.Image, mask *volume.Stencil) Result {
	checkGrids(source, target)
	acc := ops.Reduce(target.Dims[2], m.opts.Workers,
		func() *sumAcc { return &sumAcc{} },
		func(a *sumAcc, e ops.Extent) {
			forMasked(target, mask, e, func(i int) {
				d := float64(source.Data[i]) - float64(target.Data[i])
				a.sum += d * d
				a.count++
			})
		},
		func(into, from *sumAcc) {
			into.sum += from.sum
			into.count += from.count
		},
	)
	if acc.count == 0 {
		return Result{Value: math.MaxFloat32, Cost: math.MaxFloat32}
	}
	v := acc.sum / float64(acc.count)
	return Result{Value: v, Cost: v, Count: acc.count}
}
