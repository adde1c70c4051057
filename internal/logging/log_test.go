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

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTee(t *testing.T) {
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	fileName := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, LogAlsoToFile(fileName))
	LogPrintf("Stage %d/%d\n", 1, 3)
	LogPrintln("done")
	LogSync()
	require.NoError(t, LogClose())

	assert.Equal(t, "Stage 1/3\ndone\n", buf.String())
	data, err := os.ReadFile(fileName)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))

	// writes after closing only go to stdout
	Writer().Write([]byte("more\n"))
	assert.Equal(t, "Stage 1/3\ndone\nmore\n", buf.String())
	require.NoError(t, LogClose())
}
