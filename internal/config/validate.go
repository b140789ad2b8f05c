package config

import (
	"fmt"
	"net/url"
)

// Severity classifies a validation issue. Errors block the run; warnings are
// printed and ignored.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted JSON-ish locator into the
// config document ("source.base_url", "cities[2].state").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Path, i.Message)
}

// Validate checks cfg for problems that would make a run pointless or
// surprising. It never mutates cfg and it does not reach into the
// environment; call it after Parse has resolved secrets.
func Validate(cfg Config) []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Job == "" {
		warnf("job", "empty job name; metrics will carry an empty job label")
	}

	if cfg.Source.BaseURL == "" {
		errf("source.base_url", "listings endpoint is required")
	} else if u, err := url.Parse(cfg.Source.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errf("source.base_url", "not an absolute URL: %q", cfg.Source.BaseURL)
	}
	if cfg.Source.APIKeyEnv == "" {
		errf("source.api_key_env", "name of the environment variable holding the API key is required")
	} else if cfg.Source.APIKey == "" {
		errf("source.api_key_env", "API key not set; export %s", cfg.Source.APIKeyEnv)
	}
	if cfg.Source.Timeout <= 0 {
		warnf("source.timeout", "no request timeout; a stalled API call will hang the run")
	}
	if cfg.Source.Retries < 0 {
		errf("source.retries", "must be >= 0, got %d", cfg.Source.Retries)
	}

	if cfg.Data.RawDir == "" {
		errf("data.raw_dir", "raw artifact directory is required")
	}
	if cfg.Data.TransformedDir == "" {
		errf("data.transformed_dir", "transformed artifact directory is required")
	}

	if len(cfg.Cities) == 0 {
		errf("cities", "at least one city is required")
	}
	for i, c := range cfg.Cities {
		if c.Name == "" {
			errf(fmt.Sprintf("cities[%d].city", i), "city name is required")
		}
		if c.State == "" {
			errf(fmt.Sprintf("cities[%d].state", i), "state abbreviation is required")
		}
	}

	if cfg.Storage.Kind == "" {
		errf("storage.kind", "backend kind is required")
	}
	if cfg.Storage.DSN == "" {
		errf("storage.dsn", "connection string is required")
	}
	if cfg.Storage.Table == "" {
		errf("storage.table", "destination table is required")
	}

	return issues
}

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
