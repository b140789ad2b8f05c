// Command etl runs the properties pipeline: extract every configured city
// from the listings API, transform the payloads into canonical CSV artifacts,
// and load them into the destination table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"primesquare/internal/artifact"
	"primesquare/internal/config"
	"primesquare/internal/extract"
	"primesquare/internal/load"
	"primesquare/internal/metrics"
	"primesquare/internal/metrics/datadog"
	"primesquare/internal/pipeline"
	"primesquare/internal/rentcast"
	"primesquare/internal/storage"
	"primesquare/internal/transform"

	// register all storage backends with the factory; the config picks one
	// at runtime.
	_ "primesquare/internal/storage/all"
)

// backendCloser is the minimal interface this command needs from a metrics
// backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// OpenRepo builds the destination sink. Tests inject fakes; main wires
	// storage.New.
	OpenRepo func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// BackendFactory builds the metrics backend when one is selected.
	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	ConfigPath     string
	Validate       bool
	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration
	Verbose        bool
}

// main is intentionally small: it wires real dependencies and exits with a
// code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		OpenRepo: storage.New,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	os.Exit(code)
}

// run executes the pipeline command and returns an exit code.
//
// Exit codes:
//   - 0: run completed; per-city failures are reported as warnings.
//   - 1: fatal failure (destination database, unreadable config file).
//   - 2: usage or config-validation error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.OpenRepo == nil || d.BackendFactory == nil {
		fmt.Fprintln(d.Stderr, "internal error: OpenRepo and BackendFactory are required")
		return 2
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	var raw []byte
	if cfg.ConfigPath != "" {
		raw, err = os.ReadFile(cfg.ConfigPath)
		if err != nil {
			fmt.Fprintf(d.Stderr, "read config: %v\n", err)
			return 1
		}
	}
	pcfg, err := config.Parse(raw)
	if err != nil {
		fmt.Fprintf(d.Stderr, "%v\n", err)
		return 2
	}

	issues := config.Validate(pcfg)
	for _, iss := range issues {
		fmt.Fprintln(d.Stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(d.Stderr, "configuration is invalid\n")
		return 2
	}
	if cfg.Validate {
		fmt.Fprintf(d.Stdout, "configuration is valid\n")
		return 0
	}

	logger := log.New(d.Stderr, "", log.LstdFlags)

	switch cfg.MetricsBackend {
	case "datadog":
		tags := datadog.ParseTagsCSV(cfg.DDTagsCSV)
		if len(tags) == 0 {
			tags = datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		}
		b, err := d.BackendFactory(ctx, pcfg.Job, tags, cfg.FlushEvery)
		if err != nil {
			logger.Printf("metrics: datadog init failed: %v; metrics disabled", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					logger.Printf("metrics: close: %v", err)
				}
			}()
		}
	case "", "none":
		// nop backend remains installed.
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", cfg.MetricsBackend)
	}

	repo, err := d.OpenRepo(ctx, storage.Config{
		Kind:  pcfg.Storage.Kind,
		DSN:   pcfg.Storage.DSN,
		Table: pcfg.Storage.Table,
	})
	if err != nil {
		fmt.Fprintf(d.Stderr, "open storage: %v\n", err)
		return 1
	}
	defer repo.Close()

	if cfg.Verbose {
		logger.Printf("pipeline: job=%s cities=%d storage=%s table=%s",
			pcfg.Job, len(pcfg.Cities), pcfg.Storage.Kind, pcfg.Storage.Table)
	}

	store := artifact.NewStore(pcfg.Data.RawDir, pcfg.Data.TransformedDir)
	client := rentcast.NewClient(rentcast.Options{
		BaseURL: pcfg.Source.BaseURL,
		APIKey:  pcfg.Source.APIKey,
		Timeout: pcfg.Source.Timeout.Std(),
		Retries: pcfg.Source.Retries,
		Job:     pcfg.Job,
	})

	runner := &pipeline.Runner{
		Extractor:   &extract.Extractor{Fetch: client, Store: store, Logger: logger},
		Transformer: &transform.Transformer{Store: store, Logger: logger},
		Loader:      &load.Loader{Sink: repo, Logger: logger},
		Logger:      logger,
	}

	sum, runErr := runner.Run(ctx, pcfg.Cities)
	printSummary(d.Stdout, sum)
	if runErr != nil {
		fmt.Fprintf(d.Stderr, "etl: %v\n", runErr)
		return 1
	}
	return 0
}

// parseFlags parses command arguments into a validated runConfig. It does
// not exit the process; the caller decides the exit code.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "pipeline config JSON path (built-in defaults when empty)")
	fs.BoolVar(&cfg.Validate, "validate", false, "validate the configuration and exit")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "none", "metrics backend (datadog, none)")
	fs.StringVar(&cfg.DDTagsCSV, "dd-tags", "", "extra Datadog tags CSV (e.g. env:prod,service:etl)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", time.Minute, "metrics flush interval")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if cfg.FlushEvery <= 0 {
		return runConfig{}, errors.New("-metrics-flush must be > 0")
	}

	return cfg, nil
}

// printSummary writes the per-city outcomes and run totals.
func printSummary(w io.Writer, sum pipeline.Summary) {
	for _, r := range sum.Results {
		if r.Loaded() {
			fmt.Fprintf(w, "city=%q state=%s status=loaded mode=%s rows=%d\n", r.City, r.State, r.Mode, r.Rows)
			continue
		}
		fmt.Fprintf(w, "city=%q state=%s status=failed stage=%s err=%v\n", r.City, r.State, r.Stage, r.Err)
	}
	fmt.Fprintf(w, "run complete: loaded=%d failed=%d rows=%d\n", sum.Loaded, sum.Failed, sum.Rows)
}
