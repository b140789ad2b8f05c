// Package load reads a transformed artifact and writes its rows to the
// destination table.
//
// The loader does not trust the artifact to be canonical: before writing it
// reconciles the columns against the canonical set, so the destination table
// ends up with exactly the canonical schema no matter which tool produced
// the CSV. See buildPlan for the reconciliation rules.
package load

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"primesquare/internal/metrics"
	"primesquare/internal/schema"
)

// Mode selects how rows land in the destination table.
type Mode int

const (
	// Replace drops and recreates the table with the artifact as its entire
	// content.
	Replace Mode = iota + 1

	// Append adds the artifact's rows without touching existing ones.
	Append
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrArtifactMissing reports that the transformed artifact does not exist.
// Callers treat it as a per-city skip, not a fatal failure.
var ErrArtifactMissing = errors.New("transformed artifact missing")

// Sink writes canonical rows to the destination table.
// storage.Repository satisfies this interface.
type Sink interface {
	Replace(ctx context.Context, columns []string, rows [][]any) error
	Append(ctx context.Context, columns []string, rows [][]any) error
}

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Loader reconciles CSV artifacts and writes them to the sink.
type Loader struct {
	Sink   Sink
	Logger Logger
}

// Load reads the CSV artifact at path, reconciles it to the canonical column
// set, and writes it with the given mode. It returns the number of rows
// written.
//
// Errors:
//   - A missing artifact wraps ErrArtifactMissing.
//   - Sink failures propagate wrapped; the caller decides whether they are
//     fatal.
func (l *Loader) Load(ctx context.Context, path string, mode Mode) (int, error) {
	if l.Sink == nil {
		return 0, fmt.Errorf("load: Sink is required")
	}
	if mode != Replace && mode != Append {
		return 0, fmt.Errorf("load %s: unsupported mode %d", path, int(mode))
	}

	logf := l.logger()
	start := time.Now()

	header, records, err := readArtifact(path)
	if err != nil {
		return 0, err
	}

	p := buildPlan(header)
	for _, col := range p.dropped {
		logf("stage=load path=%s dropped_column=%q", path, col)
	}
	for _, col := range p.missing {
		logf("stage=load path=%s synthesized_column=%s fill=null", path, col)
	}
	rows := p.apply(records)

	switch mode {
	case Replace:
		err = l.Sink.Replace(ctx, schema.Columns, rows)
	case Append:
		err = l.Sink.Append(ctx, schema.Columns, rows)
	}
	if err != nil {
		return 0, fmt.Errorf("load %s mode=%s: %w", path, mode, err)
	}

	metrics.RecordRecords("loaded", int64(len(rows)))
	logf("stage=load mode=%s rows=%d path=%s duration=%s",
		mode, len(rows), path, time.Since(start).Truncate(time.Millisecond))
	return len(rows), nil
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return func(string, ...any) {}
	}
	return l.Logger.Printf
}

// readArtifact parses the CSV artifact into a header and its records.
func readArtifact(path string) (header []string, records [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load %s: %w", path, ErrArtifactMissing)
		}
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: parse artifact: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("load %s: artifact has no header", path)
	}
	return all[0], all[1:], nil
}
