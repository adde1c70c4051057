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

// Package config holds registration plans: a sequence of stages, each with
// its own resolution, transform class, metric and optimizer settings.
// Plans are stored as YAML.
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
)

// One registration stage
type Stage struct {
	Name          string          `yaml:"name,omitempty" json:"name,omitempty"`
	Shrink        []int           `yaml:"shrink,flow,omitempty" json:"shrink,omitempty"` // block size per axis, one value for all axes
	Class         transform.Class `yaml:"class" json:"class"`
	Metric        metric.Kind     `yaml:"metric" json:"metric"`
	Optimizer     minimize.Kind   `yaml:"optimizer" json:"optimizer"`
	Interpolation reslice.Mode    `yaml:"interpolation" json:"interpolation"`
	Bins          int             `yaml:"bins,omitempty" json:"bins,omitempty"`
	Radius        int             `yaml:"radius,omitempty" json:"radius,omitempty"` // neighborhood correlation window, in voxels
	TrimPercent   float64         `yaml:"trimPercent,omitempty" json:"trimPercent,omitempty"`

	minimize.Settings `yaml:",inline"`
}

// A registration plan
type Plan struct {
	Dim            int     `yaml:"dim" json:"dim"`
	Threshold      float32 `yaml:"threshold,omitempty" json:"threshold,omitempty"` // target voxels above it form the stencil, if nonzero
	LogEvaluations bool    `yaml:"logEvaluations,omitempty" json:"logEvaluations,omitempty"`
	Stages         []Stage `yaml:"stages" json:"stages"`
}

// Returns the default coarse-to-fine rigid plan
func DefaultPlan() *Plan {
	s := minimize.DefaultSettings()
	coarse, fine := s, s
	coarse.Tolerance, coarse.ParameterTolerance = 1e-3, 1e-3
	return &Plan{
		Dim: 3,
		Stages: []Stage{
			{Name: "coarse", Shrink: []int{4}, Class: transform.Rigid, Metric: metric.MutualInformation,
				Optimizer: minimize.Powell, Interpolation: reslice.Linear, Bins: 32, Settings: coarse},
			{Name: "medium", Shrink: []int{2}, Class: transform.Rigid, Metric: metric.MutualInformation,
				Optimizer: minimize.Powell, Interpolation: reslice.Linear, Bins: 64, Settings: fine},
			{Name: "fine", Shrink: []int{1}, Class: transform.Rigid, Metric: metric.NormalizedMutualInformation,
				Optimizer: minimize.Powell, Interpolation: reslice.Linear, Bins: 64, Settings: fine},
		},
	}
}

// Returns the shrink factors per axis for images of the given dimensionality
// and sizes. The z axis of 2-D registrations and any axis of size one in
// one of the images are never shrunk.
func (s *Stage) ShrinkFactors(dim int, sizes ...[3]int) [3]int {
	res := [3]int{1, 1, 1}
	switch len(s.Shrink) {
	case 1:
		res = [3]int{s.Shrink[0], s.Shrink[0], s.Shrink[0]}
	case 3:
		copy(res[:], s.Shrink)
	}
	if dim == 2 {
		res[2] = 1
	}
	for i := range res {
		if res[i] < 1 {
			res[i] = 1
		}
		for _, size := range sizes {
			if size[i] <= 1 {
				res[i] = 1
			}
		}
	}
	return res
}

func (p *Plan) Validate() error {
	if p.Dim != 2 && p.Dim != 3 {
		return errors.Errorf("invalid dimensionality %d", p.Dim)
	}
	if len(p.Stages) == 0 {
		return errors.New("plan has no stages")
	}
	for i, s := range p.Stages {
		if len(s.Shrink) != 0 && len(s.Shrink) != 1 && len(s.Shrink) != 3 {
			return errors.Errorf("stage %d: shrink needs one or three factors, got %d", i, len(s.Shrink))
		}
		for _, f := range s.Shrink {
			if f < 1 {
				return errors.Errorf("stage %d: invalid shrink factor %d", i, f)
			}
		}
		if s.Bins < 0 || s.Radius < 0 || s.TrimPercent < 0 || s.TrimPercent >= 50 {
			return errors.Errorf("stage %d: invalid bins %d, radius %d or trim %g%%", i, s.Bins, s.Radius, s.TrimPercent)
		}
	}
	return nil
}

// Decodes and validates a plan
func Read(r io.Reader) (*Plan, error) {
	p := &Plan{Dim: 3}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, errors.Wrap(err, "decoding plan")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func Load(fileName string) (*Plan, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "opening plan %s", fileName)
	}
	defer f.Close()
	p, err := Read(f)
	return p, errors.Wrapf(err, "reading plan %s", fileName)
}

func (p *Plan) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return errors.Wrap(err, "encoding plan")
	}
	return errors.Wrap(enc.Close(), "encoding plan")
}

func (p *Plan) Save(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "creating plan %s", fileName)
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing plan %s", fileName)
}
