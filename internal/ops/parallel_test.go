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

package ops

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCoversRange(t *testing.T) {
	for _, n := range []int{1, 2, 7, 64, 1000} {
		for _, w := range []int{0, 1, 2, 3, 8, 2000} {
			extents := Split(n, w)
			next := 0
			for _, e := range extents {
				if e.Lo != next || e.Hi <= e.Lo {
					t.Errorf("n=%d w=%d: bad extent %v after %d", n, w, e, next)
				}
				next = e.Hi
			}
			if next != n {
				t.Errorf("n=%d w=%d: covered up to %d; want %d", n, w, next, n)
			}
		}
	}
	assert.Empty(t, Split(0, 4))
}

type sumAcc struct{ sum, count float64 }

func TestReduceIsIndependentOfWorkers(t *testing.T) {
	data := make([]float64, 10007)
	for i := range data {
		data[i] = float64(i%97) * 0.125
	}
	var results []sumAcc
	for _, w := range []int{1, 2, 8} {
		acc := Reduce(len(data), w,
			func() *sumAcc { return &sumAcc{} },
			func(a *sumAcc, e Extent) {
				for i := e.Lo; i < e.Hi; i++ {
					a.sum += data[i]
					a.count++
				}
			},
			func(into, from *sumAcc) {
				into.sum += from.sum
				into.count += from.count
			})
		results = append(results, *acc)
	}
	for _, r := range results[1:] {
		assert.InDelta(t, results[0].sum, r.sum, 1e-9)
		assert.Equal(t, results[0].count, r.count)
	}
	assert.Equal(t, float64(len(data)), results[0].count)
}

func TestMaterializeAll(t *testing.T) {
	ins := make([]Promise[int], 20)
	for i := range ins {
		i := i
		ins[i] = func() (int, error) { return i * i, nil }
	}
	outs, err := MaterializeAll(ins, 3)
	require.NoError(t, err)
	for i, o := range outs {
		assert.Equal(t, i*i, o)
	}

	ins[4] = func() (int, error) { return 0, errors.New("four") }
	ins[9] = func() (int, error) { return 0, errors.New("nine") }
	_, err = MaterializeAll(ins, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "four")
	assert.Contains(t, err.Error(), "nine")
}

func TestIsPathAllowed(t *testing.T) {
	assert.True(t, IsPathAllowed("data/t1/slice001.tif"))
	assert.False(t, IsPathAllowed("/etc/passwd"))
	assert.False(t, IsPathAllowed("data/../../secret"))
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	c := NewContext(&buf)
	assert.GreaterOrEqual(t, c.MaxThreads, 1)
	c.Logf("%d: %s\n", 1, "hello")
	assert.Equal(t, "1: hello\n", buf.String())

	c.BufferMB = 1
	assert.True(t, c.Fits(1024))
	assert.False(t, c.Fits(2*1024*1024))

	quiet := c.WithLog(nil)
	quiet.Logf("dropped")
	assert.Equal(t, "1: hello\n", buf.String())
}
