// Package extract pulls one city's property listings from the upstream API
// and persists the response payload as a raw artifact.
//
// Behavior:
//   - The payload is written byte-for-byte; nothing between the HTTP body and
//     the file on disk may re-encode it.
//   - A payload that is not well-formed JSON is rejected before any write.
//   - Failures are per-city: the caller decides whether to continue with the
//     next city.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Fetcher retrieves the raw payload for one (city, state) pair.
// *rentcast.Client satisfies this interface.
type Fetcher interface {
	FetchProperties(ctx context.Context, city, state string) ([]byte, error)
}

// RawStore persists a payload byte-for-byte and returns the artifact path.
// *artifact.Store satisfies this interface.
type RawStore interface {
	WriteRaw(city, state string, body []byte) (string, error)
}

// Logger is the minimal logging interface used by the extractor.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Extractor fetches and persists raw payloads.
type Extractor struct {
	Fetch  Fetcher
	Store  RawStore
	Logger Logger
}

// Extract runs one fetch-and-persist cycle and returns the raw artifact path.
//
// Errors: any failure (transport, non-200 status, malformed JSON, write) is
// returned wrapped with the city so the caller can log it once and move on.
func (e *Extractor) Extract(ctx context.Context, city, state string) (string, error) {
	if e.Fetch == nil {
		return "", fmt.Errorf("extract: Fetch is required")
	}
	if e.Store == nil {
		return "", fmt.Errorf("extract: Store is required")
	}

	logf := e.logger()
	start := time.Now()

	body, err := e.Fetch.FetchProperties(ctx, city, state)
	if err != nil {
		return "", fmt.Errorf("extract %s, %s: %w", city, state, err)
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("extract %s, %s: response is not valid JSON (%d bytes)", city, state, len(body))
	}

	path, err := e.Store.WriteRaw(city, state, body)
	if err != nil {
		return "", fmt.Errorf("extract %s, %s: %w", city, state, err)
	}

	logf("stage=extract city=%q state=%s bytes=%d path=%s duration=%s",
		city, state, len(body), path, time.Since(start).Truncate(time.Millisecond))
	return path, nil
}

func (e *Extractor) logger() func(format string, v ...any) {
	if e.Logger == nil {
		return func(string, ...any) {}
	}
	return e.Logger.Printf
}
