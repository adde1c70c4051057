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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mlnoga/volreg/internal/config"
	"github.com/mlnoga/volreg/internal/logging"
	"github.com/mlnoga/volreg/internal/metric"
	"github.com/mlnoga/volreg/internal/minimize"
	"github.com/mlnoga/volreg/internal/ops"
	"github.com/mlnoga/volreg/internal/pipeline"
	"github.com/mlnoga/volreg/internal/qsort"
	"github.com/mlnoga/volreg/internal/register"
	"github.com/mlnoga/volreg/internal/reslice"
	"github.com/mlnoga/volreg/internal/rest"
	"github.com/mlnoga/volreg/internal/stats"
	"github.com/mlnoga/volreg/internal/transform"
	"github.com/mlnoga/volreg/internal/volume"
	"github.com/mlnoga/volreg/internal/xfm"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var source = flag.String("source", "", "comma-separated slice file patterns of the moving image, e.g. `src/*.tif`")
var target = flag.String("target", "", "comma-separated slice file patterns of the fixed image, e.g. `tgt/*.tif`")
var srcSpacing = flag.String("srcSpacing", "1,1,1", "voxel spacing of the moving image in mm, x,y,z")
var tgtSpacing = flag.String("tgtSpacing", "1,1,1", "voxel spacing of the fixed image in mm, x,y,z")
var srcOrigin = flag.String("srcOrigin", "0,0,0", "position of the first voxel of the moving image in mm, x,y,z")
var tgtOrigin = flag.String("tgtOrigin", "0,0,0", "position of the first voxel of the fixed image in mm, x,y,z")

var out = flag.String("out", "out.tfm", "save the resulting transform to `file`, ITK format for .tfm, else a 4x4 matrix")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var initial = flag.String("initial", "", "start from the transform in `file`")
var evalLog = flag.String("evalLog", "", "save the evaluations of every stage as CSV with given filename pattern, e.g. `evals%d.csv`")
var resliced = flag.String("resliced", "", "save the moving image resampled onto the fixed grid with given filename pattern, e.g. `reg%03d.tif`")
var overlay = flag.String("overlay", "", "save a false color overlay of the central slice after registration to JPEG `file`")

var planFile = flag.String("plan", "", "read the registration plan from YAML `file`. Default: a single stage from the flags below, or the built-in plan if -stages=default")
var savePlan = flag.String("savePlan", "", "save the effective registration plan to YAML `file`")
var stages = flag.String("stages", "flags", "flags=single stage from flags, default=built-in coarse-to-fine plan")
var dim = flag.Int("dim", 3, "dimensionality, 2 or 3")
var class = flag.String("class", "rigid", "transform class: translation, rigid, similarity, scaleSourceAxes, scaleTargetAxes, affine")
var metricName = flag.String("metric", "mi", "similarity metric: ssd, cc, cr, nc, mi, nmi")
var optimizer = flag.String("optimizer", "powell", "optimizer: powell, simplex, gonum")
var interp = flag.String("interp", "linear", "interpolation: nearest, linear")
var shrink = flag.Int("shrink", 1, "shrink both images by this factor per axis before registering")
var tol = flag.Float64("tol", 1e-4, "relative cost tolerance")
var maxIter = flag.Int("maxIter", 500, "maximum number of optimizer iterations")
var maxEval = flag.Int("maxEval", 5000, "maximum number of cost evaluations")
var bins = flag.Int("bins", 64, "histogram bins per image for cr, mi and nmi")
var radius = flag.Int("radius", 7, "window radius in voxels for nc")
var trim = flag.Float64("trim", 0, "percentage trimmed from both ends of the intensity range")
var threshold = flag.Float64("threshold", 0, "only register fixed image voxels above this value, 0=all")

var threads = flag.Int("threads", 0, "number of worker threads, 0=all cores")
var memoryMB = flag.Int("memory", 0, "MiB of buffer memory to use, default=0.7x physical memory")
var addr = flag.String("addr", ":8080", "listen address for serve")
var chroot = flag.String("chroot", "", "chroot to this directory before serving")
var setuid = flag.Int("setuid", -1, "switch to this user id before serving, -1=don't")

func main() {
	logWriter := logging.Writer()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Volreg Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (register|stats|plan|serve|legal|version) (img0.tif ... imgn.tif)

Commands:
  register Register the -source image onto the -target image
  stats    Show statistics of the image formed by the given slices
  plan     Show the effective registration plan
  serve    Serve the REST API
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if args[0] == "register" && *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := logging.LogAlsoToFile(*log); err != nil {
			logging.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}
	defer logging.LogClose()

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logging.LogFatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logging.LogFatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	c := ops.NewContext(logWriter)
	if *threads > 0 {
		c.MaxThreads = *threads
	}
	if *memoryMB > 0 {
		c.BufferMB = *memoryMB
	}

	var err error
	switch args[0] {
	case "register":
		err = cmdRegister(c)

	case "stats":
		err = cmdStats(c, args[1:])

	case "plan":
		var p *config.Plan
		if p, err = effectivePlan(); err == nil {
			err = p.Write(logWriter)
		}

	case "serve":
		if err = rest.MakeSandbox(logWriter, *chroot, *setuid); err == nil {
			fmt.Fprintf(logWriter, "Serving on %s with %d threads on %s\n", *addr, c.MaxThreads, c.CPU)
			err = rest.Serve(c, *addr)
		}

	case "legal":
		cmdLegal()

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, ferr := os.Create(*memprofile)
		if ferr != nil {
			logging.LogFatalf("Could not create memory profile: %s\n", ferr.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if ferr := pprof.Lookup("allocs").WriteTo(f, 0); ferr != nil {
			logging.LogFatalf("Could not write allocation profile: %s\n", ferr.Error())
		}
	}

	if err != nil {
		logging.LogFatalf("Error: %s\n", err.Error())
	}
}

// Parses a comma-separated triple like "1,1,2.5"
func parseTriple(s string) ([3]float64, error) {
	var res [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return res, errors.Errorf("need three comma-separated values, got '%s'", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return res, errors.Wrapf(err, "parsing '%s'", s)
		}
		res[i] = v
	}
	return res, nil
}

func splitPatterns(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func loadImage(c *ops.Context, patterns, spacing, origin string) (*volume.Image, error) {
	sp, err := parseTriple(spacing)
	if err != nil {
		return nil, err
	}
	or, err := parseTriple(origin)
	if err != nil {
		return nil, err
	}
	return volume.ReadSlices(splitPatterns(patterns), sp, or, c.MaxThreads, c.Log)
}

// Returns the plan from -plan, the built-in plan, or a single stage from flags
func effectivePlan() (*config.Plan, error) {
	if *planFile != "" {
		return config.Load(*planFile)
	}
	if *stages == "default" {
		p := config.DefaultPlan()
		p.Dim, p.Threshold = *dim, float32(*threshold)
		return p, p.Validate()
	}
	if *stages != "flags" {
		return nil, errors.Errorf("unknown stages '%s'", *stages)
	}

	s := config.Stage{
		Name:        "single",
		Shrink:      []int{*shrink},
		Bins:        *bins,
		Radius:      *radius,
		TrimPercent: *trim,
		Settings: minimize.Settings{
			Tolerance:      *tol,
			MaxIterations:  *maxIter,
			MaxEvaluations: *maxEval,
		},
	}
	var err error
	if s.Class, err = transform.ParseClass(*class); err != nil {
		return nil, err
	}
	if s.Metric, err = metric.ParseKind(*metricName); err != nil {
		return nil, err
	}
	if s.Optimizer, err = minimize.ParseKind(*optimizer); err != nil {
		return nil, err
	}
	if s.Interpolation, err = reslice.ParseMode(*interp); err != nil {
		return nil, err
	}
	p := &config.Plan{Dim: *dim, Threshold: float32(*threshold), Stages: []config.Stage{s}}
	return p, p.Validate()
}

func cmdRegister(c *ops.Context) error {
	plan, err := effectivePlan()
	if err != nil {
		return err
	}
	if *savePlan != "" {
		if err := plan.Save(*savePlan); err != nil {
			return err
		}
	}
	src, err := loadImage(c, *source, *srcSpacing, *srcOrigin)
	if err != nil {
		return errors.Wrap(err, "loading source")
	}
	tgt, err := loadImage(c, *target, *tgtSpacing, *tgtOrigin)
	if err != nil {
		return errors.Wrap(err, "loading target")
	}
	var startMatrix *transform.Matrix4
	if *initial != "" {
		m, err := xfm.ReadFile(*initial)
		if err != nil {
			return err
		}
		startMatrix = &m
	}

	// Ctrl-C stops the optimizer and keeps the best transform so far
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := &pipeline.Pipeline{Plan: plan}
	res, err := p.Run(ctx, c, src, tgt, nil, startMatrix)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "\nResulting transform:\n%v", res.Matrix)

	if *out != "" {
		if err := xfm.WriteFile(*out, res.Matrix); err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "Wrote transform to %s\n", *out)
	}
	if *evalLog != "" {
		if err := writeEvalLogs(*evalLog, plan, res.Stages); err != nil {
			return err
		}
	}
	if *resliced != "" || *overlay != "" {
		r := &reslice.Reslicer{Workers: c.MaxThreads}
		moved, _ := r.Resample(src, tgt, res.Matrix, reslice.Linear, nil, nil)
		sMin, sMax := src.MinMax()
		if *resliced != "" {
			if err := moved.WriteTIFF16Slices(*resliced, sMin, sMax); err != nil {
				return err
			}
		}
		if *overlay != "" {
			tMin, tMax := tgt.MinMax()
			if err := volume.WriteOverlayJPGToFile(*overlay, tgt, moved, tgt.Dims[2]/2, tMin, tMax, sMin, sMax, 95); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEvalLogs(pattern string, plan *config.Plan, stages []*register.Result) error {
	for i, sr := range stages {
		if sr.Log == nil {
			continue
		}
		fileName := fmt.Sprintf(pattern, i)
		f, err := os.Create(fileName)
		if err != nil {
			return errors.Wrapf(err, "creating %s", fileName)
		}
		err = register.WriteLogCSV(f, transform.ParamNames(plan.Stages[i].Class, plan.Dim), sr.Log)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func cmdStats(c *ops.Context, patterns []string) error {
	sp, err := parseTriple(*tgtSpacing)
	if err != nil {
		return err
	}
	img, err := volume.ReadSlices(patterns, sp, [3]float64{}, c.MaxThreads, c.Log)
	if err != nil {
		return err
	}
	printStats(c.Log, img, *trim)
	return nil
}

func printStats(w io.Writer, img *volume.Image, trimPercent float64) {
	min, max := img.MinMax()
	bins := make([]int32, metric.DefaultBins)
	stats.Histogram(img.Data, min, max, bins)
	peak, count := stats.GetPeak(bins, min, max)
	data := append([]float32(nil), img.Data...)
	median := qsort.QSelectMedianFloat32(data)
	lo, hi := stats.PercentileRange{}.Range(img, nil, trimPercent)

	fmt.Fprintf(w, "Image      %v\n", img)
	fmt.Fprintf(w, "Center     %.3f, %.3f, %.3f mm, radius %.3f mm\n", img.Center()[0], img.Center()[1], img.Center()[2], img.Radius())
	fmt.Fprintf(w, "Range      [%g, %g], median %g\n", min, max, median)
	fmt.Fprintf(w, "Trimmed    [%g, %g] with %g%% from each end\n", lo, hi, trimPercent)
	fmt.Fprintf(w, "Peak       %g with %d voxels\n", peak, count)
	fmt.Fprintf(w, "Entropy    %.4f bits in %d bins\n", stats.EntropyInt32(bins), len(bins))
}
