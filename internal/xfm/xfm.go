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

// Package xfm reads and writes linear transforms, either as ITK transform
// files or as plain 4x4 text matrices.
package xfm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/transform"
)

const (
	itkMagic = "#Insight Transform File V1.0"
	itkType  = "AffineTransform_double_3_3"
)

var ErrFormat = errors.New("unrecognized transform file")

// Writes m as an ITK affine transform with a zero center
func WriteITK(w io.Writer, m transform.Matrix4) error {
	var params []string
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			params = append(params, formatFloat(m[i][j]))
		}
	}
	for i := 0; i < 3; i++ {
		params = append(params, formatFloat(m[i][3]))
	}
	_, err := fmt.Fprintf(w, "%s\n#Transform 0\nTransform: %s\nParameters: %s\nFixedParameters: 0 0 0\n",
		itkMagic, itkType, strings.Join(params, " "))
	return errors.Wrap(err, "writing ITK transform")
}

// Writes the four rows of m, one per line
func WriteMatrix(w io.Writer, m transform.Matrix4) error {
	for i := 0; i < 4; i++ {
		row := make([]string, 4)
		for j := range row {
			row[j] = formatFloat(m[i][j])
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, " ")); err != nil {
			return errors.Wrap(err, "writing matrix")
		}
	}
	return nil
}

// Reads either format. ITK transforms with a nonzero center are folded into the translation.
func Read(r io.Reader) (transform.Matrix4, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return transform.Matrix4{}, errors.Wrap(err, "reading transform")
	}
	if len(lines) > 0 && lines[0] == itkMagic {
		return parseITK(lines[1:])
	}
	return parseMatrix(lines)
}

func parseITK(lines []string) (transform.Matrix4, error) {
	var params, fixed []float64
	var err error
	for _, l := range lines {
		key, value, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Transform":
			if t := strings.TrimSpace(value); t != itkType && t != "AffineTransform_float_3_3" {
				return transform.Matrix4{}, errors.Wrapf(ErrFormat, "unsupported ITK transform type %s", t)
			}
		case "Parameters":
			if params, err = parseFloats(value); err != nil {
				return transform.Matrix4{}, err
			}
		case "FixedParameters":
			if fixed, err = parseFloats(value); err != nil {
				return transform.Matrix4{}, err
			}
		}
	}
	if len(params) != 12 {
		return transform.Matrix4{}, errors.Wrapf(ErrFormat, "ITK affine needs 12 parameters, got %d", len(params))
	}
	if fixed == nil {
		fixed = []float64{0, 0, 0}
	}
	if len(fixed) != 3 {
		return transform.Matrix4{}, errors.Wrapf(ErrFormat, "ITK affine needs 3 fixed parameters, got %d", len(fixed))
	}

	m := transform.Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = params[3*i+j]
		}
	}
	// offset = t + c - A c
	for i := 0; i < 3; i++ {
		m[i][3] = params[9+i] + fixed[i]
		for j := 0; j < 3; j++ {
			m[i][3] -= m[i][j] * fixed[j]
		}
	}
	return m, nil
}

func parseMatrix(lines []string) (transform.Matrix4, error) {
	var m transform.Matrix4
	if len(lines) != 4 {
		return m, errors.Wrapf(ErrFormat, "matrix needs 4 rows, got %d", len(lines))
	}
	for i, l := range lines {
		row, err := parseFloats(l)
		if err != nil {
			return m, err
		}
		if len(row) != 4 {
			return m, errors.Wrapf(ErrFormat, "matrix row %d has %d columns", i, len(row))
		}
		copy(m[i][:], row)
	}
	if !m.IsAffine() {
		return m, errors.Wrapf(ErrFormat, "matrix is not affine, last row %v", m[3])
	}
	return m, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	res := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "invalid number %q", f)
		}
		res[i] = v
	}
	return res, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Writes m into fileName, in ITK format if the name ends in .tfm, else as a matrix
func WriteFile(fileName string, m transform.Matrix4) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "creating %s", fileName)
	}
	if strings.HasSuffix(strings.ToLower(fileName), ".tfm") {
		err = WriteITK(f, m)
	} else {
		err = WriteMatrix(f, m)
	}
	if err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", fileName)
}

func ReadFile(fileName string) (transform.Matrix4, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return transform.Matrix4{}, errors.Wrapf(err, "opening %s", fileName)
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		return m, errors.Wrapf(err, "reading %s", fileName)
	}
	return m, nil
}
