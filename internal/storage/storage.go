// Package storage selects and constructs the destination sink for canonical
// property rows.
//
// Backends register themselves under a kind string from an init() function;
// importing a backend package (or the storage/all aggregator) makes its kind
// available to New.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to construct a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
//   - Table is the destination table name. Backends quote it as needed and
//     accept schema-qualified names where the engine supports them.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Repository is the backend-agnostic tabular sink for canonical rows.
//
// Both operations receive the full column list and one value per column per
// row; a nil value loads as SQL NULL. Each backend implements the semantics
// in its own idiomatic way (Postgres transactions, SQL Server OBJECT_ID
// guards, etc).
type Repository interface {
	// Replace makes rows the entire content of the destination table by
	// dropping and recreating it.
	Replace(ctx context.Context, columns []string, rows [][]any) error

	// Append adds rows to the destination table, creating it when absent,
	// without touching existing rows.
	Append(ctx context.Context, columns []string, rows [][]any) error

	// Close releases backend resources (connections, prepared statements).
	// Callers should treat Close as "call once" at process shutdown.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind (e.g. "postgres",
// "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package. The kind
//     string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
