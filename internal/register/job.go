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

// Package register runs one stage of an intensity-based image registration:
// it searches the parameters of a linear transform which maximize the
// similarity of a resampled source image with a fixed target image.
package register

import (
	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

var (
	ErrInvalidJob = errors.New("invalid registration job")
	ErrParamCount = errors.New("parameter vector length does not match transform class")
)

// Resamples src onto the voxel grid of grid through m, which maps grid world
// positions into src world positions. out and inside may be reused.
type Resampler interface {
	Resample(src, grid *volume.Image, m transform.Matrix4, mode reslice.Mode, out *volume.Image, inside *volume.Stencil) (*volume.Image, *volume.Stencil)
}

// Estimates the intensity range of the voxels inside a stencil, optionally
// trimming the given percentage from both ends
type RangeEstimator interface {
	Range(img *volume.Image, stencil *volume.Stencil, trimPercent float64) (min, max float64)
}

// Everything needed to run one registration stage
type Job struct {
	Source  *volume.Image   // moving image
	Target  *volume.Image   // fixed image, defines the sampling grid
	Stencil *volume.Stencil // optional mask on the target grid

	Class transform.Class
	Dim   int // 2 or 3

	Metric        metric.Kind
	MetricOptions metric.Options // zero ranges are estimated, zero workers use all threads
	TrimPercent   float64        // trimmed from both ends when estimating ranges

	Optimizer     minimize.Kind
	Settings      minimize.Settings
	Interpolation reslice.Mode

	Center  *[3]float64        // rotation and scaling pivot, defaults to the source center
	Initial *transform.Matrix4 // starting transform, defaults to identity
	Params  []float64          // starting parameters, default from the factored initial transform

	LogEvaluations bool

	Resampler Resampler      // defaults to a reslice.Reslicer
	Ranges    RangeEstimator // defaults to a sampled stats.PercentileRange
}

// The outcome of a stage. Matrix maps target world positions into source world positions.
type Result struct {
	Matrix      transform.Matrix4
	Params      []float64
	Center      [3]float64
	Initial     transform.Matrix4 // translation-free part of the starting transform
	Value       float64           // metric value at the best point
	Cost        float64
	Evaluations int
	Iterations  int
	Converged   bool
	Aborted     bool
	SourceRange [2]float64
	TargetRange [2]float64
	Log         []EvaluationRecord
}

// Checks caller preconditions before any evaluation
func (j *Job) validate() error {
	if err := j.Source.Validate(); err != nil {
		return errors.Wrap(err, "source")
	}
	if err := j.Target.Validate(); err != nil {
		return errors.Wrap(err, "target")
	}
	if j.Stencil != nil {
		if err := j.Stencil.Validate(j.Target); err != nil {
			return errors.Wrapf(ErrInvalidJob, "stencil: %v", err)
		}
	}
	if j.Dim != 2 && j.Dim != 3 {
		return errors.Wrapf(ErrInvalidJob, "dimensionality %d", j.Dim)
	}
	if j.Class < transform.Translation || j.Class > transform.Affine {
		return errors.Wrapf(ErrInvalidJob, "transform class %v", j.Class)
	}
	if j.Metric < metric.SquaredDifference || j.Metric > metric.NormalizedMutualInformation {
		return errors.Wrapf(ErrInvalidJob, "metric %v", j.Metric)
	}
	if j.Optimizer < minimize.Simplex || j.Optimizer > minimize.GonumSimplex {
		return errors.Wrapf(ErrInvalidJob, "optimizer %v", j.Optimizer)
	}
	if j.Interpolation != reslice.Nearest && j.Interpolation != reslice.Linear {
		return errors.Wrapf(ErrInvalidJob, "interpolation %v", j.Interpolation)
	}
	if j.Initial != nil && !j.Initial.IsAffine() {
		return errors.Wrapf(ErrInvalidJob, "initial matrix is not affine:\n%v", j.Initial)
	}
	if n := transform.ParamCount(j.Class, j.Dim); j.Params != nil && len(j.Params) != n {
		return errors.Wrapf(ErrParamCount, "got %d, want %d for %v in %dD", len(j.Params), n, j.Class, j.Dim)
	}
	return nil
}
