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

// Package rest exposes registration over HTTP. Long-running requests stream
// their log as plain text and end with the JSON result.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/pipeline"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
)

// Creates the router. Every request gets a copy of base, logging into the response.
func NewRouter(base *ops.Context) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), prometheusMiddleware)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/plan", getPlan)
			v1.POST("/register", func(c *gin.Context) { postRegister(c, base) })
		}
	}
	return r
}

// Listens and serves on addr, e.g. ":8080"
func Serve(base *ops.Context, addr string) error {
	return NewRouter(base).Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getPlan(c *gin.Context) {
	c.JSON(http.StatusOK, config.DefaultPlan())
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Image slices and their geometry
type slicesArgs struct {
	FilePatterns []string   `json:"filePatterns" binding:"required"`
	Spacing      [3]float64 `json:"spacing"`
	Origin       [3]float64 `json:"origin"`
}

type postRegisterArgs struct {
	Source  slicesArgs         `json:"source"`
	Target  slicesArgs         `json:"target"`
	Plan    *config.Plan       `json:"plan"`    // defaults to config.DefaultPlan
	Initial *transform.Matrix4 `json:"initial"` // defaults to identity
}

type stageSummary struct {
	Params      []float64 `json:"params"`
	Value       float64   `json:"value"`
	Cost        float64   `json:"cost"`
	Evaluations int       `json:"evaluations"`
	Iterations  int       `json:"iterations"`
	Converged   bool      `json:"converged"`
}

type registerResult struct {
	Matrix  transform.Matrix4 `json:"matrix"`
	Aborted bool              `json:"aborted"`
	Stages  []stageSummary    `json:"stages"`
}

func (a *postRegisterArgs) validate() error {
	for _, p := range append(append([]string(nil), a.Source.FilePatterns...), a.Target.FilePatterns...) {
		if !ops.IsPathAllowed(p) {
			return errors.Errorf("path not allowed: %s", p)
		}
	}
	if a.Plan == nil {
		a.Plan = config.DefaultPlan()
	}
	if err := a.Plan.Validate(); err != nil {
		return err
	}
	if a.Initial != nil && !a.Initial.IsAffine() {
		return errors.New("initial matrix is not affine")
	}
	return nil
}

func postRegister(c *gin.Context, base *ops.Context) {
	logWriter := c.Writer
	var args postRegisterArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := args.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)
	registrationsInFlight.Inc()
	defer registrationsInFlight.Dec()

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	ctx := base.WithLog(logWriter)

	source, err := volume.ReadSlices(args.Source.FilePatterns, args.Source.Spacing, args.Source.Origin, ctx.MaxThreads, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "Error loading source: %s\n", err.Error())
		return
	}
	target, err := volume.ReadSlices(args.Target.FilePatterns, args.Target.Spacing, args.Target.Origin, ctx.MaxThreads, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "Error loading target: %s\n", err.Error())
		return
	}

	// the request context ends when the client disconnects
	p := &pipeline.Pipeline{Plan: args.Plan, Observer: observeStage}
	res, err := p.Run(c.Request.Context(), ctx, source, target, nil, args.Initial)
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}

	out := registerResult{Matrix: res.Matrix, Aborted: res.Aborted}
	for _, s := range res.Stages {
		out.Stages = append(out.Stages, stageSummary{
			Params:      s.Params,
			Value:       s.Value,
			Cost:        s.Cost,
			Evaluations: s.Evaluations,
			Iterations:  s.Iterations,
			Converged:   s.Converged,
		})
	}
	if err := printArgs(logWriter, "Result:\n", "\n", out); err != nil {
		fmt.Fprintf(logWriter, "Error printing result: %s\n", err.Error())
	}
	logWriter.Flush()
}
