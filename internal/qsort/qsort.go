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

package qsort

// Partitions an array of float32 around its middle element with Hoare's scheme,
// and returns the split index: no element of a[:index+1] is greater than any
// element of a[index+1:]. Arrays of length two or more are split into two
// non-empty parts.
// Array must not contain IEEE NaN
func QPartitionFloat32(a []float32) int {
	left, right := 0, len(a)-1
	mid := (left + right) >> 1
	pivot := a[mid]
	l := left - 1
	r := right + 1
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Select median of an array of float32. For even lengths, returns the mean
// of the two middle elements. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n&1 != 0 {
		return QSelectFloat32(a, n/2+1)
	}
	lo := QSelectFloat32(a, n/2)
	// after selection, everything right of index n/2-1 is at least lo
	hi := a[n/2]
	for _, v := range a[n/2+1:] {
		if v < hi {
			hi = v
		}
	}
	return 0.5 * (lo + hi)
}

// Select the value at the given percentile in [0,100], with the nearest
// rank method. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectPercentileFloat32(a []float32, percent float64) float32 {
	if percent <= 0 {
		return minFloat32(a)
	}
	if percent >= 100 {
		return maxFloat32(a)
	}
	k := int(percent/100*float64(len(a)) + 0.5)
	if k < 1 {
		k = 1
	}
	if k > len(a) {
		k = len(a)
	}
	return QSelectFloat32(a, k)
}

// Select kth lowest element from an array of float32, counting from one.
// Partially reorders the array, leaving the element at index k-1 and
// no smaller elements to its right.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		index := left + QPartitionFloat32(a[left:right+1])

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}

func minFloat32(a []float32) float32 {
	m := a[0]
	for _, v := range a[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat32(a []float32) float32 {
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
