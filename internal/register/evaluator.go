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

package register

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

// One cost function invocation. Seq starts at 1 and follows invocation order.
type EvaluationRecord struct {
	Seq    int       `json:"seq"`
	Params []float64 `json:"params"`
	Value  float64   `json:"value"`
	Cost   float64   `json:"cost"`
}

// Turns a parameter vector into a cost: compose the transform, resample the
// source onto the target grid, evaluate the metric over the voxels inside
// both the stencil and the source.
type costEvaluator struct {
	class   transform.Class
	dim     int
	center  [3]float64
	initial transform.Matrix4

	source, target *volume.Image
	stencil        *volume.Stencil
	resampler      Resampler
	mode           reslice.Mode
	metric         metric.Metric

	// buffers reused across evaluations
	resampled *volume.Image
	inside    *volume.Stencil
	mask      *volume.Stencil

	count   int
	logging bool
	log     []EvaluationRecord

	bestCost, bestValue float64
}

func (e *costEvaluator) evaluate(x []float64) float64 {
	m := transform.Compose(x, e.class, e.dim, e.center, e.initial)
	e.resampled, e.inside = e.resampler.Resample(e.source, e.target, m, e.mode, e.resampled, e.inside)
	mask := e.inside
	if e.stencil != nil {
		if e.mask == nil {
			e.mask = volume.NewStencil(e.target.Dims)
		}
		mask = volume.Intersect(e.mask, e.inside, e.stencil)
	}
	r := e.metric.Evaluate(e.resampled, e.target, mask)

	e.count++
	if e.logging {
		e.log = append(e.log, EvaluationRecord{
			Seq:    e.count,
			Params: append([]float64(nil), x...),
			Value:  r.Value,
			Cost:   r.Cost,
		})
	}
	if e.count == 1 || r.Cost < e.bestCost {
		e.bestCost, e.bestValue = r.Cost, r.Value
	}
	return r.Cost
}

// Writes an evaluation log as CSV, with one column per parameter
func WriteLogCSV(w io.Writer, names []string, log []EvaluationRecord) error {
	cw := csv.NewWriter(w)
	header := append([]string{"seq"}, names...)
	header = append(header, "value", "cost")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing log header")
	}
	row := make([]string, 0, len(header))
	for _, r := range log {
		if len(r.Params) != len(names) {
			return errors.Errorf("record %d has %d parameters, want %d", r.Seq, len(r.Params), len(names))
		}
		row = append(row[:0], strconv.Itoa(r.Seq))
		for _, p := range r.Params {
			row = append(row, formatFloat(p))
		}
		row = append(row, formatFloat(r.Value), formatFloat(r.Cost))
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing log record %d", r.Seq)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing log")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
