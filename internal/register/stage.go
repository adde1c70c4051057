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
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/stats"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

const (
	maxQuantizedBins = 256
	rangeSamples     = 1 << 20
	rangeSeed        = 1
	minRadius        = 1e-3 // mm, lower bound for the rotation lever arm
)

// Runs one registration stage. Cancelling ctx stops the optimizer within one
// outer iteration; the best transform found so far is returned with
// Aborted set, and no error. Invalid jobs fail before any evaluation.
func RunStage(ctx context.Context, c *ops.Context, job *Job) (*Result, error) {
	if job == nil {
		return nil, errors.Wrap(ErrInvalidJob, "nil job")
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = ops.NewContext(nil)
	}
	start := time.Now()
	workers := c.MaxThreads
	if workers < 1 {
		workers = 1
	}
	opts := job.MetricOptions
	if opts.Workers < 1 {
		opts.Workers = workers
	}
	if opts.Fits == nil {
		opts.Fits = c.Fits
	}

	// intensity ranges for binning metrics
	if job.Metric.NeedsRange() {
		ranges := job.Ranges
		if ranges == nil {
			ranges = stats.PercentileRange{MaxSamples: rangeSamples, Seed: rangeSeed}
		}
		if !(opts.SourceRange[1] > opts.SourceRange[0]) {
			opts.SourceRange[0], opts.SourceRange[1] = ranges.Range(job.Source, nil, job.TrimPercent)
			c.Logf("Source range [%.6g, %.6g] with %.3g%% trimmed\n", opts.SourceRange[0], opts.SourceRange[1], job.TrimPercent)
		}
		if job.Metric.BinsTarget() && !(opts.TargetRange[1] > opts.TargetRange[0]) {
			opts.TargetRange[0], opts.TargetRange[1] = ranges.Range(job.Target, job.Stencil, job.TrimPercent)
			c.Logf("Target range [%.6g, %.6g] with %.3g%% trimmed\n", opts.TargetRange[0], opts.TargetRange[1], job.TrimPercent)
		}
	}
	srcRange, tgtRange := opts.SourceRange, opts.TargetRange

	source, target := job.Source, job.Target
	if job.Interpolation == reslice.Nearest && job.Metric.NeedsRange() {
		source, target, opts = prequantize(c, job.Metric, source, target, opts)
	}

	// fixed pivot and translation-free starting matrix
	center := job.Source.Center()
	if job.Center != nil {
		center = *job.Center
	}
	m := transform.Identity()
	if job.Initial != nil {
		m = *job.Initial
	}
	initial, t := transform.FactorInitial(m, center, job.Dim)
	n := transform.ParamCount(job.Class, job.Dim)
	x0 := make([]float64, n)
	copy(x0, t[:job.Dim])
	if job.Params != nil {
		copy(x0, job.Params)
	}

	step := job.Target.MinSpacing()
	radius := math.Max(job.Source.Radius(), minRadius)
	scales := transform.StepScales(job.Class, job.Dim, step, step/radius)

	resampler := job.Resampler
	if resampler == nil {
		resampler = &reslice.Reslicer{Workers: workers}
	}
	eval := &costEvaluator{
		class:     job.Class,
		dim:       job.Dim,
		center:    center,
		initial:   initial,
		source:    source,
		target:    target,
		stencil:   job.Stencil,
		resampler: resampler,
		mode:      job.Interpolation,
		metric:    metric.New(job.Metric, opts),
		logging:   job.LogEvaluations,
	}

	settings := job.Settings.WithDefaults()
	c.Logf("Registering %v in %dD with %v metric, %v optimizer, %v interpolation, %d workers\n",
		job.Class, job.Dim, job.Metric, job.Optimizer, job.Interpolation, opts.Workers)
	res := minimize.New(job.Optimizer).Minimize(ctx, eval.evaluate, x0, scales, settings)

	result := &Result{
		Matrix:      transform.Compose(res.X, job.Class, job.Dim, center, initial),
		Params:      res.X,
		Center:      center,
		Initial:     initial,
		Value:       eval.bestValue,
		Cost:        eval.bestCost,
		Evaluations: eval.count,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		Aborted:     res.Aborted,
		SourceRange: srcRange,
		TargetRange: tgtRange,
		Log:         eval.log,
	}
	if eval.count == 0 {
		result.Cost = math.MaxFloat32
	}
	c.Logf("%d evaluations, %d iterations, value %.6g, cost %.6g, converged %v, aborted %v in %v\n",
		result.Evaluations, result.Iterations, result.Value, result.Cost, result.Converged, result.Aborted,
		time.Since(start).Round(time.Millisecond))
	return result, nil
}

func binsOrDefault(n int) int {
	if n < 1 {
		return metric.DefaultBins
	}
	return n
}

// Replaces intensities by their bin indices once, so that nearest neighbor
// resampling picks up bins directly. The metric then bins [0, B-1] into B
// bins, which maps every index onto itself. Skipped if there are too many
// bins or the copies do not fit into the buffer budget.
func prequantize(c *ops.Context, k metric.Kind, source, target *volume.Image, opts metric.Options) (*volume.Image, *volume.Image, metric.Options) {
	sb, tb := binsOrDefault(opts.SourceBins), binsOrDefault(opts.TargetBins)
	binsTarget := k.BinsTarget()
	if sb > maxQuantizedBins || (binsTarget && tb > maxQuantizedBins) {
		return source, target, opts
	}
	bytes := int64(source.Len()) * 4
	if binsTarget {
		bytes += int64(target.Len()) * 4
	}
	if !c.Fits(bytes) {
		c.Logf("Skipping pre-quantization, %d MB exceed the buffer budget of %d MB\n", bytes>>20, c.BufferMB)
		return source, target, opts
	}

	source = quantize(source, stats.NewBinner(opts.SourceRange[0], opts.SourceRange[1], sb), opts.Workers)
	opts.SourceRange, opts.SourceBins = [2]float64{0, float64(sb - 1)}, sb
	if binsTarget {
		target = quantize(target, stats.NewBinner(opts.TargetRange[0], opts.TargetRange[1], tb), opts.Workers)
		opts.TargetRange, opts.TargetBins = [2]float64{0, float64(tb - 1)}, tb
	}
	c.Logf("Pre-quantized intensities to %dx%d bins\n", sb, tb)
	return source, target, opts
}

func quantize(img *volume.Image, b stats.Binner, workers int) *volume.Image {
	res := volume.NewLike(img)
	n := img.SliceLen()
	ops.ParallelFor(img.Dims[2], workers, func(_ int, e ops.Extent) {
		for i := e.Lo * n; i < e.Hi*n; i++ {
			res.Data[i] = float32(b.Bin(img.Data[i]))
		}
	})
	return res
}
