// Package config builds the process-wide configuration for the properties
// pipeline: one explicit struct constructed at entry and handed to each
// component. Nothing in this package is consulted ambiently after startup.
//
// Sources, in precedence order: built-in defaults, an optional JSON document
// overlaid field-by-field, then environment resolution (the API key is read
// from the variable named by source.api_key_env; the DSN passes through
// os.ExpandEnv so credentials can stay out of config files).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// City identifies one extraction target. Name is free text and may contain
// spaces; State is the two-letter abbreviation.
type City struct {
	Name  string `json:"city"`
	State string `json:"state"`
}

// Source configures the upstream listings API.
type Source struct {
	BaseURL   string   `json:"base_url"`
	APIKeyEnv string   `json:"api_key_env"`
	Timeout   Duration `json:"timeout"`
	Retries   int      `json:"retries"`

	// APIKey is resolved from APIKeyEnv by Parse. Never read from or written
	// to config files.
	APIKey string `json:"-"`
}

// Data locates the artifact directories. Both are created on demand.
type Data struct {
	RawDir         string `json:"raw_dir"`
	TransformedDir string `json:"transformed_dir"`
}

// Storage selects and configures the destination sink.
type Storage struct {
	// Backend kind: "postgres" | "sqlite" | "mssql" | "oracle"
	Kind  string `json:"kind"`
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// Config is the effective configuration for one pipeline run.
type Config struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Data    Data    `json:"data"`
	Cities  []City  `json:"cities"`
	Storage Storage `json:"storage"`
}

// Default returns the built-in configuration: the production listings
// endpoint, the standard Texas city list, and the local warehouse DSN.
func Default() Config {
	return Config{
		Job: "properties_etl",
		Source: Source{
			BaseURL:   "https://api.rentcast.io/v1/properties",
			APIKeyEnv: "RENTCAST_API_KEY",
			Timeout:   Duration(15 * time.Second),
			Retries:   0,
		},
		Data: Data{
			RawDir:         "data/raw",
			TransformedDir: "data/transformed",
		},
		Cities: []City{
			{Name: "San Antonio", State: "TX"},
			{Name: "Houston", State: "TX"},
			{Name: "Dallas", State: "TX"},
		},
		Storage: Storage{
			Kind:  "postgres",
			DSN:   "postgres://postgres@127.0.0.1:5432/primesquare_prod",
			Table: "properties_data",
		},
	}
}

// Parse builds the effective configuration: Default, overlaid with the JSON
// document in raw when raw is non-nil, then environment resolution. Absent
// JSON fields keep their default values at every nesting level.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if raw != nil {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	if cfg.Source.APIKeyEnv != "" {
		cfg.Source.APIKey = os.Getenv(cfg.Source.APIKeyEnv)
	}
	return cfg, nil
}

// Duration is a time.Duration that unmarshals from a JSON string ("15s",
// "750ms") or a bare number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	default:
		return fmt.Errorf("config: bad duration %v (want a string like \"15s\" or seconds)", v)
	}
	return nil
}
