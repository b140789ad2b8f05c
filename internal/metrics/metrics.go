// Package metrics is the seam between pipeline code and whatever monitoring
// backend a command wires in. The default backend drops everything, so
// library code can record unconditionally without nil checks or config.
//
// Counter and histogram names are an operational contract shared with the
// backends; dashboards key on them. Change them deliberately.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels attach low-cardinality dimensions to a metric point.
type Labels map[string]string

// Backend receives every recorded metric. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer points locally.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. Passing nil restores the no-op
// backend. Call once at startup before pipeline work begins.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush drains the installed backend when it buffers; otherwise a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep records one stage attempt for one city.
// step is "extract", "transform" or "load"; status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter("etl_step_total", 1, l)
	b.ObserveHistogram("etl_step_duration_seconds", d.Seconds(), l)
}

// RecordRecords counts rows moving between stages. kind is "transformed" or
// "loaded".
func RecordRecords(kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter("etl_records_total", float64(n), Labels{"kind": kind})
}

// RecordCity records one finished city. status is "ok" or "failed".
func RecordCity(status string) {
	current().IncCounter("etl_cities_total", 1, Labels{"status": status})
}

// RecordHTTP records one listings-API attempt. status 0 means the request
// never produced a response (transport error, timeout).
func RecordHTTP(job string, status int, err error, d time.Duration, bytes int64) {
	b := current()
	code := "none"
	if status != 0 {
		code = strconv.Itoa(status)
	}
	l := Labels{"job": job, "status": code}
	b.IncCounter("etl_http_requests_total", 1, l)
	if err != nil || status >= 400 {
		b.IncCounter("etl_http_errors_total", 1, l)
	}
	b.ObserveHistogram("etl_http_request_duration_seconds", d.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram("etl_http_download_bytes", float64(bytes), l)
	}
}
