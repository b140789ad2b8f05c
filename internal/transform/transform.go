// Package transform turns one raw payload into the canonical CSV artifact.
//
// Behavior:
//   - The payload root must be a JSON array of objects or a single object
//     (treated as a one-record collection). Anything else fails the city.
//   - Nested objects are flattened into dotted column names before the
//     expected fields are selected and renamed to their canonical names.
//   - The output always has exactly the canonical columns in canonical order.
//     Expected fields absent from the whole payload are emitted as all-null
//     columns, one log line per field.
//
// Errors: a payload with no records, or whose flattened fields share nothing
// with the expected set, is a hard per-city failure.
package transform

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"primesquare/internal/metrics"
	"primesquare/internal/schema"
)

// TransformedStore persists one canonical CSV and returns the artifact path.
// *artifact.Store satisfies this interface.
type TransformedStore interface {
	WriteTransformed(city, state string, data []byte) (string, error)
}

// Logger is the minimal logging interface used by the transformer.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Transformer reads raw artifacts and writes canonical CSV artifacts.
type Transformer struct {
	Store  TransformedStore
	Logger Logger
}

// Transform reads the raw artifact at rawPath and writes the canonical CSV
// for the city, returning the transformed artifact path.
func (t *Transformer) Transform(rawPath, city, state string) (string, error) {
	if t.Store == nil {
		return "", fmt.Errorf("transform: Store is required")
	}

	logf := t.logger()
	start := time.Now()

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return "", fmt.Errorf("transform %s, %s: read raw artifact: %w", city, state, err)
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return "", fmt.Errorf("transform %s, %s: %w", city, state, err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("transform %s, %s: payload has no records", city, state)
	}

	flat := make([]map[string]any, len(records))
	union := make(map[string]struct{})
	for i, rec := range records {
		f := flattenRecord(rec)
		flat[i] = f
		for k := range f {
			union[k] = struct{}{}
		}
	}

	present := 0
	for _, field := range schema.SourceFields {
		if _, ok := union[field]; ok {
			present++
			continue
		}
		logf("stage=transform city=%q state=%s missing_field=%s fill=null", city, state, field)
	}
	if present == 0 {
		return "", fmt.Errorf("transform %s, %s: payload shares no fields with the expected schema", city, state)
	}

	data, err := writeCSV(flat)
	if err != nil {
		return "", fmt.Errorf("transform %s, %s: %w", city, state, err)
	}

	path, err := t.Store.WriteTransformed(city, state, data)
	if err != nil {
		return "", fmt.Errorf("transform %s, %s: %w", city, state, err)
	}

	metrics.RecordRecords("transformed", int64(len(records)))
	logf("stage=transform city=%q state=%s records=%d missing_fields=%d path=%s duration=%s",
		city, state, len(records), len(schema.SourceFields)-present, path,
		time.Since(start).Truncate(time.Millisecond))
	return path, nil
}

func (t *Transformer) logger() func(format string, v ...any) {
	if t.Logger == nil {
		return func(string, ...any) {}
	}
	return t.Logger.Printf
}

// decodeRecords parses the payload root. A root array yields its object
// elements (nil elements are skipped); a root object is a single record.
func decodeRecords(raw []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keeps the original number text; no float64 round-trips.

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	switch t := root.(type) {
	case []any:
		records := make([]map[string]any, 0, len(t))
		for i, el := range t {
			if el == nil {
				continue
			}
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is not an object (got %T)", i, el)
			}
			records = append(records, obj)
		}
		return records, nil

	case map[string]any:
		return []map[string]any{t}, nil

	default:
		return nil, fmt.Errorf("payload root is %T, want object or array", root)
	}
}

// writeCSV renders the flattened records under the canonical header. Row i's
// cell j is the record's value for source field j, so the header position
// performs the rename to the canonical column name.
func writeCSV(records []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(schema.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(schema.Columns))
	for _, rec := range records {
		for i, field := range schema.SourceFields {
			row[i] = cellText(rec[field])
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
