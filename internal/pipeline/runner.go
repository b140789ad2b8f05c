// Package pipeline drives the per-city extract, transform, load sequence.
//
// Cities run strictly in order. A city that fails extraction or
// transformation is logged and abandoned; the run continues with the next
// city. The first city whose load succeeds is written with Replace semantics
// and every later city with Append, so one run always rebuilds the
// destination table from scratch. A missing transformed artifact at load is
// a per-city skip and leaves the Replace slot unconsumed; any other load
// failure aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"primesquare/internal/config"
	"primesquare/internal/load"
	"primesquare/internal/metrics"
)

// Extractor fetches one city's payload and stores the raw artifact,
// returning its path. *extract.Extractor satisfies this interface.
type Extractor interface {
	Extract(ctx context.Context, city, state string) (string, error)
}

// Transformer converts a raw artifact into the canonical CSV artifact,
// returning its path. *transform.Transformer satisfies this interface.
type Transformer interface {
	Transform(rawPath, city, state string) (string, error)
}

// Loader writes a transformed artifact to the destination table and returns
// the number of rows written. *load.Loader satisfies this interface.
type Loader interface {
	Load(ctx context.Context, path string, mode load.Mode) (int, error)
}

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner owns one pipeline run across a list of cities.
type Runner struct {
	Extractor   Extractor
	Transformer Transformer
	Loader      Loader
	Logger      Logger
}

// CityResult is the outcome of one city.
type CityResult struct {
	City  string
	State string

	// Stage is the stage that failed ("extract", "transform", "load"),
	// or "" when the city loaded.
	Stage string

	// Mode and Rows are set only when the city loaded.
	Mode load.Mode
	Rows int

	Err error
}

// Loaded reports whether the city made it into the destination table.
func (r CityResult) Loaded() bool { return r.Err == nil }

// Summary aggregates one run.
type Summary struct {
	Results []CityResult
	Loaded  int
	Failed  int
	Rows    int
}

// Run processes the cities in order. The returned error is non-nil only for
// fatal failures (destination writes, cancellation); per-city failures are
// reported in the summary. The summary covers every city attempted before
// the run stopped.
func (r *Runner) Run(ctx context.Context, cities []config.City) (Summary, error) {
	if r.Extractor == nil || r.Transformer == nil || r.Loader == nil {
		return Summary{}, fmt.Errorf("pipeline: Extractor, Transformer and Loader are required")
	}

	logf := r.logger()
	start := time.Now()
	logf("stage=run cities=%d", len(cities))

	var sum Summary
	mode := load.Replace
	for _, c := range cities {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.runCity(ctx, c, mode)
		sum.Results = append(sum.Results, res)
		if res.Loaded() {
			sum.Loaded++
			sum.Rows += res.Rows
			mode = load.Append
			metrics.RecordCity("ok")
		} else {
			sum.Failed++
			metrics.RecordCity("failed")
		}
		if err != nil {
			return sum, err
		}
	}

	logf("stage=run ok loaded=%d failed=%d rows=%d duration=%s",
		sum.Loaded, sum.Failed, sum.Rows, durMS(start))
	return sum, nil
}

// runCity walks one city through the three stages. The returned error is
// non-nil only when the failure must abort the whole run; per-city failures
// are carried in the result alone.
func (r *Runner) runCity(ctx context.Context, c config.City, mode load.Mode) (CityResult, error) {
	logf := r.logger()
	res := CityResult{City: c.Name, State: c.State}

	start := time.Now()
	rawPath, err := r.Extractor.Extract(ctx, c.Name, c.State)
	metrics.RecordStep("extract", stepStatus(err), time.Since(start))
	if err != nil {
		res.Stage, res.Err = "extract", err
		logf("stage=extract city=%q state=%s status=error err=%v", c.Name, c.State, err)
		return res, nil
	}

	start = time.Now()
	csvPath, err := r.Transformer.Transform(rawPath, c.Name, c.State)
	metrics.RecordStep("transform", stepStatus(err), time.Since(start))
	if err != nil {
		res.Stage, res.Err = "transform", err
		logf("stage=transform city=%q state=%s status=error err=%v", c.Name, c.State, err)
		return res, nil
	}

	start = time.Now()
	rows, err := r.Loader.Load(ctx, csvPath, mode)
	metrics.RecordStep("load", stepStatus(err), time.Since(start))
	if err != nil {
		res.Stage, res.Err = "load", err
		logf("stage=load city=%q state=%s status=error err=%v", c.Name, c.State, err)
		if errors.Is(err, load.ErrArtifactMissing) {
			return res, nil
		}
		return res, fmt.Errorf("pipeline: %s, %s: %w", c.Name, c.State, err)
	}

	res.Mode, res.Rows = mode, rows
	return res, nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return func(string, ...any) {}
	}
	return r.Logger.Printf
}

func stepStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
