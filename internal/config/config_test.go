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

package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
)

func TestRoundTrip(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	assert.Contains(t, buf.String(), "class: rigid")
	assert.Contains(t, buf.String(), "metric: nmi")
	assert.Contains(t, buf.String(), "shrink: [4]")

	q, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, p, q)

	fileName := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, p.Save(fileName))
	q, err = Load(fileName)
	require.NoError(t, err)
	assert.Equal(t, p, q)
}

func TestRead(t *testing.T) {
	src := `
dim: 2
threshold: 12.5
stages:
  - shrink: [2, 2, 1]
    class: Similarity
    metric: cc
    optimizer: simplex
    interpolation: nearest
    tolerance: 0.01
    maxEvaluations: 300
  - class: affine
    metric: nc
    optimizer: gonum
    interpolation: linear
    radius: 3
`
	p, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Dim)
	assert.Equal(t, float32(12.5), p.Threshold)
	require.Len(t, p.Stages, 2)

	s := p.Stages[0]
	assert.Equal(t, [3]int{2, 2, 1}, s.ShrinkFactors(3))
	assert.Equal(t, transform.Similarity, s.Class)
	assert.Equal(t, metric.CrossCorrelation, s.Metric)
	assert.Equal(t, minimize.Simplex, s.Optimizer)
	assert.Equal(t, reslice.Nearest, s.Interpolation)
	assert.Equal(t, 0.01, s.Tolerance)
	assert.Equal(t, 300, s.MaxEvaluations)

	s = p.Stages[1]
	assert.Equal(t, [3]int{1, 1, 1}, s.ShrinkFactors(2))
	assert.Equal(t, metric.NeighborhoodCorrelation, s.Metric)
	assert.Equal(t, minimize.GonumSimplex, s.Optimizer)
	assert.Equal(t, 3, s.Radius)
}

func TestShrinkFactors(t *testing.T) {
	tests := []struct {
		shrink []int
		dim    int
		sizes  [][3]int
		want   [3]int
	}{
		{[]int{4}, 3, nil, [3]int{4, 4, 4}},
		{[]int{4}, 2, nil, [3]int{4, 4, 1}},
		{[]int{4}, 2, [][3]int{{64, 64, 1}, {64, 48, 1}}, [3]int{4, 4, 1}},
		{[]int{4}, 3, [][3]int{{64, 64, 1}}, [3]int{4, 4, 1}},
		{[]int{2, 3, 4}, 3, [][3]int{{64, 1, 40}, {64, 64, 40}}, [3]int{2, 1, 4}},
		{[]int{0, 2, 2}, 3, nil, [3]int{1, 2, 2}},
		{nil, 3, [][3]int{{8, 8, 8}}, [3]int{1, 1, 1}},
	}
	for _, tt := range tests {
		s := Stage{Shrink: tt.shrink}
		if got := s.ShrinkFactors(tt.dim, tt.sizes...); got != tt.want {
			t.Errorf("ShrinkFactors(%v, %d, %v)=%v; want %v", tt.shrink, tt.dim, tt.sizes, got, tt.want)
		}
	}
}

func TestReadRejects(t *testing.T) {
	for _, src := range []string{
		"dim: 4\nstages: [{class: rigid, metric: mi, optimizer: powell, interpolation: linear}]",
		"dim: 3\nstages: []",
		"stages: [{class: bendy, metric: mi, optimizer: powell, interpolation: linear}]",
		"stages: [{class: rigid, metric: mi, optimizer: powell, interpolation: cubic}]",
		"stages: [{shrink: [2, 2], class: rigid, metric: mi, optimizer: powell, interpolation: linear}]",
		"stages: [{shrink: [0], class: rigid, metric: mi, optimizer: powell, interpolation: linear}]",
		"stages: [{class: rigid, metric: mi, optimizer: powell, interpolation: linear, trimPercent: 60}]",
		"stages: [{class: rigid, metric: mi, optimizer: powell, interpolation: linear, colour: red}]",
	} {
		_, err := Read(strings.NewReader(src))
		assert.Error(t, err, src)
	}
}
