// Command load writes previously transformed artifacts into the destination
// table for every configured city. The first city loaded uses the mode given
// by -mode; later cities always append, so "-mode replace" reproduces the
// full pipeline's table-rebuild semantics.
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
	"primesquare/internal/load"
	"primesquare/internal/storage"

	_ "primesquare/internal/storage/all"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// OpenRepo builds the destination sink. Tests inject fakes; main wires
	// storage.New.
	OpenRepo func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		OpenRepo: storage.New,
	}))
}

// run executes the load stage and returns an exit code.
//
// Exit codes:
//   - 0: run completed; missing artifacts are reported as warnings.
//   - 1: fatal failure (destination database, unreadable config file).
//   - 2: usage or config-validation error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.OpenRepo == nil {
		fmt.Fprintln(d.Stderr, "internal error: OpenRepo is required")
		return 2
	}

	cfgPath, mode, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	_ = godotenv.Load()

	pcfg, code := loadConfig(cfgPath, d.Stderr)
	if code != 0 {
		return code
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

	store := artifact.NewStore(pcfg.Data.RawDir, pcfg.Data.TransformedDir)
	ld := &load.Loader{
		Sink:   repo,
		Logger: log.New(d.Stderr, "", log.LstdFlags),
	}

	ok, failed, total := 0, 0, 0
	for _, c := range pcfg.Cities {
		path := store.TransformedPath(c.Name, c.State)
		rows, err := ld.Load(ctx, path, mode)
		if err != nil {
			failed++
			fmt.Fprintf(d.Stdout, "city=%q state=%s status=failed err=%v\n", c.Name, c.State, err)
			if errors.Is(err, load.ErrArtifactMissing) {
				continue
			}
			fmt.Fprintf(d.Stderr, "load: %v\n", err)
			return 1
		}
		ok++
		total += rows
		fmt.Fprintf(d.Stdout, "city=%q state=%s status=loaded mode=%s rows=%d\n", c.Name, c.State, mode, rows)
		mode = load.Append
	}
	fmt.Fprintf(d.Stdout, "load complete: ok=%d failed=%d rows=%d\n", ok, failed, total)
	return 0
}

func parseFlags(args []string) (string, load.Mode, error) {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	cfgPath := fs.String("config", "", "pipeline config JSON path (built-in defaults when empty)")
	modeFlag := fs.String("mode", "replace", "write mode for the first loaded city (replace, append)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", 0, errors.New(usageBuf.String())
		}
		return "", 0, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	switch *modeFlag {
	case "replace":
		return *cfgPath, load.Replace, nil
	case "append":
		return *cfgPath, load.Append, nil
	default:
		return "", 0, fmt.Errorf("-mode must be replace or append, got %q", *modeFlag)
	}
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
