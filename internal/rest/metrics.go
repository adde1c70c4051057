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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/register"
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "volreg_http_response_time_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volreg_http_requests_total",
		Help: "Number of HTTP requests.",
	}, []string{"path", "status"})
	stagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volreg_stages_total",
		Help: "Number of registration stages run, by outcome.",
	}, []string{"class", "metric", "optimizer", "outcome"})
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volreg_evaluations_total",
		Help: "Number of cost function evaluations.",
	})
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volreg_stage_duration_seconds",
		Help:    "Duration of registration stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"metric"})
	registrationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volreg_registrations_in_flight",
		Help: "Number of registrations currently running.",
	})
)

// Records request counts and durations per route
func prometheusMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	httpRequests.WithLabelValues(path, statusClass(c.Writer.Status())).Inc()
}

func statusClass(status int) string {
	return string(rune('0'+status/100)) + "xx"
}

func outcome(res *register.Result) string {
	switch {
	case res.Aborted:
		return "aborted"
	case res.Converged:
		return "converged"
	}
	return "budget"
}

// Records a completed pipeline stage
func observeStage(_ int, s *config.Stage, res *register.Result, elapsed time.Duration) {
	stagesTotal.WithLabelValues(s.Class.String(), s.Metric.String(), s.Optimizer.String(), outcome(res)).Inc()
	evaluationsTotal.Add(float64(res.Evaluations))
	stageDuration.WithLabelValues(s.Metric.String()).Observe(elapsed.Seconds())
}
