package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("RENTCAST_API_KEY", "test-key")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Source.BaseURL != "https://api.rentcast.io/v1/properties" {
		t.Fatalf("base url=%q", cfg.Source.BaseURL)
	}
	if cfg.Source.APIKey != "test-key" {
		t.Fatalf("api key=%q, want resolved from env", cfg.Source.APIKey)
	}
	if got, want := cfg.Source.Timeout.Std(), 15*time.Second; got != want {
		t.Fatalf("timeout=%v, want %v", got, want)
	}
	if len(cfg.Cities) != 3 || cfg.Cities[0].Name != "San Antonio" {
		t.Fatalf("cities=%+v", cfg.Cities)
	}
	if cfg.Storage.Table != "properties_data" {
		t.Fatalf("table=%q", cfg.Storage.Table)
	}

	if issues := Validate(cfg); HasErrors(issues) {
		t.Fatalf("default config has errors: %v", issues)
	}
}

// Partial documents overlay defaults field-by-field; absent fields keep
// their default values at every nesting level.
func TestParseOverlay(t *testing.T) {
	t.Setenv("RENTCAST_API_KEY", "k")

	raw := []byte(`{
		"source": {"retries": 2, "timeout": "5s"},
		"cities": [{"city": "Austin", "state": "TX"}],
		"storage": {"kind": "sqlite", "dsn": "file:prime.db"}
	}`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source.Retries != 2 {
		t.Fatalf("retries=%d, want 2", cfg.Source.Retries)
	}
	if got := cfg.Source.Timeout.Std(); got != 5*time.Second {
		t.Fatalf("timeout=%v, want 5s", got)
	}
	if cfg.Source.BaseURL == "" {
		t.Fatal("overlay dropped the default base url")
	}
	if len(cfg.Cities) != 1 || cfg.Cities[0].Name != "Austin" {
		t.Fatalf("cities=%+v, want the overlaid list only", cfg.Cities)
	}
	if cfg.Storage.Kind != "sqlite" || cfg.Storage.DSN != "file:prime.db" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.Storage.Table != "properties_data" {
		t.Fatalf("table=%q, want default kept", cfg.Storage.Table)
	}
}

func TestParseExpandsDSNEnv(t *testing.T) {
	t.Setenv("RENTCAST_API_KEY", "k")
	t.Setenv("PGPASS", "s3cret")

	cfg, err := Parse([]byte(`{"storage": {"dsn": "postgres://etl:${PGPASS}@db:5432/prime"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, want := cfg.Storage.DSN, "postgres://etl:s3cret@db:5432/prime"; got != want {
		t.Fatalf("dsn=%q, want %q", got, want)
	}
}

func TestParseCustomKeyEnv(t *testing.T) {
	t.Setenv("OTHER_KEY", "abc")

	cfg, err := Parse([]byte(`{"source": {"api_key_env": "OTHER_KEY"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source.APIKey != "abc" {
		t.Fatalf("api key=%q, want from OTHER_KEY", cfg.Source.APIKey)
	}
}

func TestParseRejectsBadJSON(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte(`{"cities": [`)); err == nil {
		t.Fatal("Parse accepted truncated JSON")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string form", in: `"750ms"`, want: 750 * time.Millisecond},
		{name: "seconds number", in: `30`, want: 30 * time.Second},
		{name: "fractional seconds", in: `0.5`, want: 500 * time.Millisecond},
		{name: "garbage string", in: `"soon"`, wantErr: true},
		{name: "wrong type", in: `true`, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var d Duration
			err := d.UnmarshalJSON([]byte(tc.in))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("UnmarshalJSON(%s) accepted", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalJSON(%s): %v", tc.in, err)
			}
			if d.Std() != tc.want {
				t.Fatalf("got %v, want %v", d.Std(), tc.want)
			}
		})
	}
}

func TestValidateFindings(t *testing.T) {
	t.Parallel()

	valid := Default()
	valid.Source.APIKey = "k"

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
		severity Severity
	}{
		{
			name:     "missing api key",
			mutate:   func(c *Config) { c.Source.APIKey = "" },
			wantPath: "source.api_key_env",
			severity: SeverityError,
		},
		{
			name:     "relative base url",
			mutate:   func(c *Config) { c.Source.BaseURL = "/v1/properties" },
			wantPath: "source.base_url",
			severity: SeverityError,
		},
		{
			name:     "no cities",
			mutate:   func(c *Config) { c.Cities = nil },
			wantPath: "cities",
			severity: SeverityError,
		},
		{
			name:     "blank state",
			mutate:   func(c *Config) { c.Cities = []City{{Name: "Houston"}} },
			wantPath: "cities[0].state",
			severity: SeverityError,
		},
		{
			name:     "negative retries",
			mutate:   func(c *Config) { c.Source.Retries = -1 },
			wantPath: "source.retries",
			severity: SeverityError,
		},
		{
			name:     "zero timeout warns",
			mutate:   func(c *Config) { c.Source.Timeout = 0 },
			wantPath: "source.timeout",
			severity: SeverityWarning,
		},
		{
			name:     "empty table",
			mutate:   func(c *Config) { c.Storage.Table = "" },
			wantPath: "storage.table",
			severity: SeverityError,
		},
		{
			name:     "empty kind",
			mutate:   func(c *Config) { c.Storage.Kind = "" },
			wantPath: "storage.kind",
			severity: SeverityError,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			cfg.Cities = append([]City(nil), valid.Cities...)
			tc.mutate(&cfg)

			issues := Validate(cfg)
			found := false
			for _, i := range issues {
				if i.Path == tc.wantPath && i.Severity == tc.severity {
					found = true
				}
			}
			if !found {
				t.Fatalf("Validate issues=%v, want one at %s with severity %s", issues, tc.wantPath, tc.severity)
			}
			if tc.severity == SeverityWarning && HasErrors(issues) {
				t.Fatalf("warning case produced errors: %v", issues)
			}
		})
	}
}

func TestIssueString(t *testing.T) {
	t.Parallel()

	i := Issue{Severity: SeverityError, Path: "storage.dsn", Message: "connection string is required"}
	if got := i.String(); !strings.Contains(got, "storage.dsn") || !strings.Contains(got, "error") {
		t.Fatalf("Issue.String()=%q", got)
	}
}
