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

package transform

import (
	"fmt"
	"strings"
)

// A class of linear transforms, ordered by increasing degrees of freedom.
// Each class carries all parameters of the classes before it.
type Class int

const (
	Translation Class = iota
	Rigid
	Similarity
	ScaleSourceAxes
	ScaleTargetAxes
	Affine
)

var classNames = []string{"translation", "rigid", "similarity", "scaleSourceAxes", "scaleTargetAxes", "affine"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// Parses a transform class name, case-insensitive
func ParseClass(s string) (Class, error) {
	for i, n := range classNames {
		if strings.EqualFold(n, s) {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transform class '%s'", s)
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Class) UnmarshalText(b []byte) (err error) {
	*c, err = ParseClass(string(b))
	return err
}

// Numbers of parameters per block, in parameter vector order
type layout struct {
	Trans, Rot, Iso, Aniso, Finish int
}

func (l layout) total() int { return l.Trans + l.Rot + l.Iso + l.Aniso + l.Finish }

func layoutOf(c Class, dim int) layout {
	if dim != 2 && dim != 3 {
		panic(fmt.Sprintf("invalid dimensionality %d", dim))
	}
	if dim == 2 {
		switch c {
		case Translation:
			return layout{2, 0, 0, 0, 0}
		case Rigid:
			return layout{2, 1, 0, 0, 0}
		case Similarity:
			return layout{2, 1, 1, 0, 0}
		case ScaleSourceAxes, ScaleTargetAxes:
			return layout{2, 1, 1, 1, 0}
		case Affine:
			return layout{2, 1, 1, 1, 1}
		}
	} else {
		switch c {
		case Translation:
			return layout{3, 0, 0, 0, 0}
		case Rigid:
			return layout{3, 3, 0, 0, 0}
		case Similarity:
			return layout{3, 3, 1, 0, 0}
		case ScaleSourceAxes, ScaleTargetAxes:
			return layout{3, 3, 1, 2, 0}
		case Affine:
			return layout{3, 3, 1, 2, 3}
		}
	}
	panic(fmt.Sprintf("invalid transform class %d", int(c)))
}

// Returns the number of optimizable parameters for the given class and dimensionality.
// Panics on an unknown class or a dimensionality other than 2 or 3
func ParamCount(c Class, dim int) int {
	return layoutOf(c, dim).total()
}

// Returns short names of the parameters in vector order, for logging
func ParamNames(c Class, dim int) []string {
	l := layoutOf(c, dim)
	names := make([]string, 0, l.total())
	axes := []string{"x", "y", "z"}
	for i := 0; i < l.Trans; i++ {
		names = append(names, "t"+axes[i])
	}
	if l.Rot == 1 {
		names = append(names, "rz")
	} else {
		for i := 0; i < l.Rot; i++ {
			names = append(names, "r"+axes[i])
		}
	}
	if l.Iso == 1 {
		names = append(names, "s")
	}
	for i := 0; i < l.Aniso; i++ {
		names = append(names, "d"+axes[i])
	}
	if l.Finish == 1 {
		names = append(names, "fz")
	} else {
		for i := 0; i < l.Finish; i++ {
			names = append(names, "f"+axes[i])
		}
	}
	return names
}

// Returns initial optimizer step sizes in vector order: translation for the
// translation block, angular for rotations and log-scales
func StepScales(c Class, dim int, translation, angular float64) []float64 {
	l := layoutOf(c, dim)
	res := make([]float64, l.total())
	for i := range res {
		if i < l.Trans {
			res[i] = translation
		} else {
			res[i] = angular
		}
	}
	return res
}
