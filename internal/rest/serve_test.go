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

package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&ops.Context{Log: io.Discard, MaxThreads: 2})
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPingAndPlan(t *testing.T) {
	r := router()
	w := do(r, http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/plan", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var p config.Plan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, config.DefaultPlan(), &p)
}

func TestRegisterRejectsBadRequests(t *testing.T) {
	r := router()
	for _, body := range []string{
		`{`,
		`{"source":{"filePatterns":["/etc/*.tif"]},"target":{"filePatterns":["t*.tif"]}}`,
		`{"source":{"filePatterns":["../s*.tif"]},"target":{"filePatterns":["t*.tif"]}}`,
		`{"source":{"filePatterns":["s*.tif"]},"target":{"filePatterns":["t*.tif"]},"plan":{"dim":5,"stages":[]}}`,
		`{"source":{"filePatterns":["s*.tif"]},"target":{"filePatterns":["t*.tif"]},"initial":[[1,0,0,0],[0,1,0,0],[0,0,1,0],[1,1,1,1]]}`,
	} {
		w := do(r, http.MethodPost, "/api/v1/register", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "error")
	}
}

func blobSlices(t *testing.T, pattern string, shift float64) {
	dims := [3]int{20, 18, 6}
	img := volume.New(dims, [3]float64{1, 1, 1}, [3]float64{})
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				dx, dy, dz := float64(x)-9-shift, float64(y)-8, float64(z)-2.5
				img.Set(x, y, z, float32(1000*math.Exp(-(dx*dx+dy*dy+dz*dz)/18)))
			}
		}
	}
	require.NoError(t, img.WriteTIFF16Slices(pattern, 0, 1000))
}

func TestRegister(t *testing.T) {
	dir := t.TempDir()
	blobSlices(t, filepath.Join(dir, "s%02d.tif"), 1.5)
	blobSlices(t, filepath.Join(dir, "t%02d.tif"), 0)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	plan := &config.Plan{Dim: 3, Stages: []config.Stage{{
		Class:         transform.Translation,
		Metric:        metric.SquaredDifference,
		Optimizer:     minimize.Powell,
		Interpolation: reslice.Linear,
		Settings:      minimize.Settings{Tolerance: 1e-6},
	}}}
	body, err := json.Marshal(map[string]interface{}{
		"source": map[string]interface{}{"filePatterns": []string{"s*.tif"}},
		"target": map[string]interface{}{"filePatterns": []string{"t*.tif"}},
		"plan":   plan,
	})
	require.NoError(t, err)

	r := router()
	w := do(r, http.MethodPost, "/api/v1/register", body)
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "Loaded 20x18x6 voxels")
	i := strings.Index(out, "Result:\n")
	require.GreaterOrEqual(t, i, 0, out)

	var res registerResult
	require.NoError(t, json.Unmarshal([]byte(out[i+len("Result:\n"):]), &res))
	assert.False(t, res.Aborted)
	require.Len(t, res.Stages, 1)
	assert.InDelta(t, 1.5, res.Matrix[0][3], 0.2)
	assert.InDelta(t, 0, res.Matrix[1][3], 0.2)

	w = do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `volreg_stages_total{class="translation",metric="ssd",optimizer="powell"`)
	assert.Contains(t, w.Body.String(), "volreg_evaluations_total")
}
