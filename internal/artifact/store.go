// Package artifact persists the pipeline's intermediate files: verbatim API
// payloads under the raw directory and canonical CSVs under the transformed
// directory.
//
// Keys are derived from (city, state). Raw keys keep the city's original
// spacing ("properties_data_San Antonio_TX.json"); transformed keys strip it
// ("properties_data_SanAntonio_TX.csv"). Downstream consumers depend on both
// forms, so neither side may change independently.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Store resolves artifact keys to paths and writes artifacts atomically.
// The zero value is not usable; construct with NewStore.
type Store struct {
	rawDir         string
	transformedDir string
}

func NewStore(rawDir, transformedDir string) *Store {
	return &Store{rawDir: rawDir, transformedDir: transformedDir}
}

// RawPath returns the raw-artifact path for a city/state pair. Spaces in the
// city name are preserved.
func (s *Store) RawPath(city, state string) string {
	name := fmt.Sprintf("properties_data_%s_%s.json", keyPart(city), keyPart(state))
	return filepath.Join(s.rawDir, name)
}

// TransformedPath returns the transformed-artifact path for a city/state
// pair. Spaces in the city name are stripped.
func (s *Store) TransformedPath(city, state string) string {
	name := fmt.Sprintf("properties_data_%s_%s.csv", strings.ReplaceAll(keyPart(city), " ", ""), keyPart(state))
	return filepath.Join(s.transformedDir, name)
}

// WriteRaw persists one API payload byte-for-byte and returns the artifact
// path. Re-extraction for the same city overwrites the previous artifact.
func (s *Store) WriteRaw(city, state string, body []byte) (string, error) {
	path := s.RawPath(city, state)
	if err := writeAtomic(path, body); err != nil {
		return "", fmt.Errorf("artifact: write raw %s: %w", path, err)
	}
	return path, nil
}

// WriteTransformed persists one canonical CSV and returns the artifact path.
func (s *Store) WriteTransformed(city, state string, data []byte) (string, error) {
	path := s.TransformedPath(city, state)
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("artifact: write transformed %s: %w", path, err)
	}
	return path, nil
}

// keyPart makes a name safe to embed in an artifact key. NFC keeps
// differently-composed Unicode input on one file; path separators would
// escape the artifact directory and are folded to "_".
func keyPart(v string) string {
	v = norm.NFC.String(v)
	v = strings.ReplaceAll(v, "/", "_")
	v = strings.ReplaceAll(v, string(os.PathSeparator), "_")
	return v
}

// writeAtomic lands data at path via a temp file in the destination
// directory plus rename, so readers never observe a partial artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
