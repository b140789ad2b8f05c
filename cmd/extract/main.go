// Command extract fetches the raw payload for every configured city and
// stores it, leaving transformation and loading to later runs.
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

	"github.com/joho/godotenv"

	"primesquare/internal/artifact"
	"primesquare/internal/config"
	"primesquare/internal/extract"
	"primesquare/internal/rentcast"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{Stdout: os.Stdout, Stderr: os.Stderr}))
}

// run executes the extract stage and returns an exit code.
//
// Exit codes:
//   - 0: run completed; per-city failures are reported as warnings.
//   - 1: unreadable config file.
//   - 2: usage or config-validation error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfgPath, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	_ = godotenv.Load()

	pcfg, code := loadConfig(cfgPath, d.Stderr)
	if code != 0 {
		return code
	}

	logger := log.New(d.Stderr, "", log.LstdFlags)
	store := artifact.NewStore(pcfg.Data.RawDir, pcfg.Data.TransformedDir)
	ex := &extract.Extractor{
		Fetch: rentcast.NewClient(rentcast.Options{
			BaseURL: pcfg.Source.BaseURL,
			APIKey:  pcfg.Source.APIKey,
			Timeout: pcfg.Source.Timeout.Std(),
			Retries: pcfg.Source.Retries,
			Job:     pcfg.Job,
		}),
		Store:  store,
		Logger: logger,
	}

	ok, failed := 0, 0
	for _, c := range pcfg.Cities {
		path, err := ex.Extract(ctx, c.Name, c.State)
		if err != nil {
			failed++
			fmt.Fprintf(d.Stdout, "city=%q state=%s status=failed err=%v\n", c.Name, c.State, err)
			continue
		}
		ok++
		fmt.Fprintf(d.Stdout, "city=%q state=%s status=extracted path=%s\n", c.Name, c.State, path)
	}
	fmt.Fprintf(d.Stdout, "extract complete: ok=%d failed=%d\n", ok, failed)
	return 0
}

func parseFlags(args []string) (string, error) {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	cfgPath := fs.String("config", "", "pipeline config JSON path (built-in defaults when empty)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", errors.New(usageBuf.String())
		}
		return "", fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	return *cfgPath, nil
}

// loadConfig reads, parses and validates the configuration, printing issues
// to stderr. A non-zero return is the exit code the caller should use.
func loadConfig(path string, stderr io.Writer) (config.Config, int) {
	var raw []byte
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "read config: %v\n", err)
			return config.Config{}, 1
		}
	}
	pcfg, err := config.Parse(raw)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return config.Config{}, 2
	}

	issues := config.Validate(pcfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid\n")
		return config.Config{}, 2
	}
	return pcfg, 0
}
