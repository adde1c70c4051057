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

// Package pipeline runs a multi-stage registration plan. Every stage
// registers shrunken copies of the images and hands its transform on to the
// next stage as the starting point.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/register"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

// Called after every completed stage
type Observer func(stage int, s *config.Stage, res *register.Result, elapsed time.Duration)

type Pipeline struct {
	Plan     *config.Plan
	Observer Observer // optional
}

type Result struct {
	Matrix  transform.Matrix4 // maps target world positions into source world positions
	Stages  []*register.Result
	Aborted bool
}

// Runs all stages of the plan, or stops after the first aborted stage.
// initial may be nil for the identity. The stencil lives on the target grid
// and may be nil; if the plan has a threshold, it is derived from the target.
func (p *Pipeline) Run(ctx context.Context, c *ops.Context, source, target *volume.Image, stencil *volume.Stencil, initial *transform.Matrix4) (*Result, error) {
	if err := p.Plan.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = ops.NewContext(nil)
	}
	if err := source.Validate(); err != nil {
		return nil, errors.Wrap(err, "source")
	}
	if err := target.Validate(); err != nil {
		return nil, errors.Wrap(err, "target")
	}
	if stencil == nil && p.Plan.Threshold != 0 {
		stencil = volume.NewStencilAbove(target, p.Plan.Threshold)
		c.Logf("Stencil above %g has %d of %d target voxels\n", p.Plan.Threshold, stencil.Count(), target.Len())
	}

	m := transform.Identity()
	if initial != nil {
		m = *initial
	}
	center := source.Center()
	res := &Result{Matrix: m}
	for i := range p.Plan.Stages {
		s := &p.Plan.Stages[i]
		start := time.Now()
		src, tgt, st := source, target, stencil
		if f := s.ShrinkFactors(p.Plan.Dim, source.Dims, target.Dims); f != [3]int{1, 1, 1} {
			src, tgt, st = source.Shrink(f, c.MaxThreads), target.Shrink(f, c.MaxThreads), stencil.Shrink(f)
		}
		c.Logf("Stage %d/%d %s: %v vs %v\n", i+1, len(p.Plan.Stages), s.Name, src, tgt)

		startMatrix := res.Matrix
		job := &register.Job{
			Source:  src,
			Target:  tgt,
			Stencil: st,
			Class:   s.Class,
			Dim:     p.Plan.Dim,
			Metric:  s.Metric,
			MetricOptions: metric.Options{
				Workers:    c.MaxThreads,
				SourceBins: s.Bins,
				TargetBins: s.Bins,
				Radius:     [3]int{s.Radius, s.Radius, s.Radius},
			},
			TrimPercent:    s.TrimPercent,
			Optimizer:      s.Optimizer,
			Settings:       s.Settings,
			Interpolation:  s.Interpolation,
			Center:         &center,
			Initial:        &startMatrix,
			LogEvaluations: p.Plan.LogEvaluations,
		}
		sr, err := register.RunStage(ctx, c, job)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", i+1)
		}
		res.Stages = append(res.Stages, sr)
		res.Matrix = sr.Matrix
		if p.Observer != nil {
			p.Observer(i, s, sr, time.Since(start))
		}
		if sr.Aborted {
			res.Aborted = true
			c.Logf("Aborted after stage %d\n", i+1)
			break
		}
	}
	return res, nil
}
