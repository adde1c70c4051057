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

package pipeline

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/register"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

func blob(dims [3]int, shift [3]float64) *volume.Image {
	img := volume.New(dims, [3]float64{1, 1, 1}, [3]float64{})
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				d2 := 0.0
				for k, c := range [3]float64{13, 11, 9} {
					d := img.Position(x, y, z)[k] - c - shift[k]
					d2 += d * d
				}
				img.Set(x, y, z, float32(800*math.Exp(-d2/50)+20))
			}
		}
	}
	return img
}

func plan() *config.Plan {
	s := minimize.Settings{Tolerance: 1e-6, MaxEvaluations: 1000}
	return &config.Plan{
		Dim:       3,
		Threshold: 10,
		Stages: []config.Stage{
			{Name: "coarse", Shrink: []int{2}, Class: transform.Translation, Metric: metric.SquaredDifference,
				Optimizer: minimize.Powell, Interpolation: reslice.Linear, Settings: s},
			{Name: "fine", Class: transform.Translation, Metric: metric.CrossCorrelation,
				Optimizer: minimize.Powell, Interpolation: reslice.Linear, Settings: s},
		},
	}
}

func TestRunFeedsStages(t *testing.T) {
	dims := [3]int{26, 22, 18}
	shift := [3]float64{2.2, -1.4, 0.8}
	source, target := blob(dims, shift), blob(dims, [3]float64{})

	var seen []int
	p := &Pipeline{
		Plan: plan(),
		Observer: func(stage int, s *config.Stage, res *register.Result, elapsed time.Duration) {
			seen = append(seen, stage)
			assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		},
	}
	c := &ops.Context{Log: io.Discard, MaxThreads: 2}
	res, err := p.Run(context.Background(), c, source, target, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, seen)
	require.Len(t, res.Stages, 2)
	assert.False(t, res.Aborted)
	tr := res.Matrix.Translation()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, shift[i], tr[i], 0.2, "axis %d", i)
	}

	// the second stage starts where the first stopped
	assert.Equal(t, res.Stages[1].Matrix, res.Matrix)
	first := res.Stages[0].Matrix.Translation()
	assert.InDelta(t, shift[0], first[0], 0.5)
}

func TestRunStopsWhenAborted(t *testing.T) {
	dims := [3]int{16, 16, 8}
	source, target := blob(dims, [3]float64{1, 0, 0}), blob(dims, [3]float64{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	startMatrix := transform.Translate([3]float64{0.5, 0, 0})
	res, err := (&Pipeline{Plan: plan()}).Run(ctx, &ops.Context{MaxThreads: 1}, source, target, nil, &startMatrix)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	require.Len(t, res.Stages, 1)
	assert.InDelta(t, 0.5, res.Matrix.Translation()[0], 1e-12)
}

func TestRunRejectsInvalidPlans(t *testing.T) {
	img := blob([3]int{4, 4, 4}, [3]float64{})
	p := plan()
	p.Dim = 1
	_, err := (&Pipeline{Plan: p}).Run(context.Background(), nil, img, img, nil, nil)
	assert.Error(t, err)

	_, err = (&Pipeline{Plan: plan()}).Run(context.Background(), nil, nil, img, nil, nil)
	assert.ErrorIs(t, err, volume.ErrNilImage)
}
