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

import "sync"

// A half-open range [Lo, Hi) of an outer index, usually z slices
type Extent struct {
	Lo, Hi int
}

// Splits [0,n) into at most workers disjoint extents of near equal size.
// Never returns empty extents.
func Split(n, workers int) []Extent {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	res := make([]Extent, 0, workers)
	for w := 0; w < workers; w++ {
		lo, hi := n*w/workers, n*(w+1)/workers
		if hi > lo {
			res = append(res, Extent{lo, hi})
		}
	}
	return res
}

// Runs fn once per extent of [0,n), each on its own goroutine, and waits for all.
// fn receives the worker index, which stays below the number of extents.
func ParallelFor(n, workers int, fn func(worker int, e Extent)) {
	extents := Split(n, workers)
	if len(extents) == 1 {
		fn(0, extents[0])
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(extents))
	for w, e := range extents {
		go func(w int, e Extent) {
			defer wg.Done()
			fn(w, e)
		}(w, e)
	}
	wg.Wait()
}

// Accumulates over [0,n) with one private partial result per worker, then
// folds the partials in worker order after the barrier. newAcc creates an
// empty partial, merge adds its second argument into the first.
func Reduce[A any](n, workers int, newAcc func() A, accumulate func(acc A, e Extent), merge func(into, from A)) A {
	extents := Split(n, workers)
	partials := make([]A, len(extents))
	for i := range partials {
		partials[i] = newAcc()
	}
	if len(extents) == 0 {
		return newAcc()
	}
	ParallelFor(n, len(extents), func(w int, e Extent) {
		accumulate(partials[w], e)
	})
	for i := 1; i < len(partials); i++ {
		merge(partials[0], partials[i])
	}
	return partials[0]
}
