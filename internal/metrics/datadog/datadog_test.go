package datadog

import (
	"context"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"primesquare/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func testBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		step   string
		status string
	}{
		{name: "normal", step: "extract", status: "ok"},
		{name: "empty_step", step: "", status: "ok"},
		{name: "empty_status", step: "load", status: ""},
		{name: "both_empty", step: "", status: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			k := stepStatusKey(tc.step, tc.status)
			step, status := splitStepStatusKey(k)
			if step != tc.step || status != tc.status {
				t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc.step, tc.status)
			}
		})
	}

	t.Run("split_without_separator_defaults_unknown_status", func(t *testing.T) {
		t.Parallel()
		step, status := splitStepStatusKey("no-sep")
		if step != "no-sep" || status != "unknown" {
			t.Fatalf("splitStepStatusKey()=(%q,%q), want=(%q,%q)", step, status, "no-sep", "unknown")
		}
	})
}

func TestWithTags(t *testing.T) {
	t.Parallel()

	base := []string{"env:test", "job:properties_etl"}
	got := withTags(base, "step:extract", "status:ok")
	want := []string{"env:test", "job:properties_etl", "step:extract", "status:ok"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

func TestSeriesBuilders(t *testing.T) {
	t.Parallel()

	now := int64(1234567)
	g := gaugeSeries("etl.test.gauge", 3.14, []string{"env:test"}, now)
	if g.Type == nil || *g.Type != datadogV2.METRICINTAKETYPE_GAUGE {
		t.Fatalf("gauge Type=%v, want GAUGE", g.Type)
	}
	if g.Points[0].Timestamp == nil || *g.Points[0].Timestamp != now {
		t.Fatalf("gauge Timestamp=%v, want %d", g.Points[0].Timestamp, now)
	}
	if g.Points[0].Value == nil || *g.Points[0].Value != 3.14 {
		t.Fatalf("gauge Value=%v, want 3.14", g.Points[0].Value)
	}

	c := countSeries("etl.test.count", 9, []string{"env:test"}, now)
	if c.Type == nil || *c.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("count Type=%v, want COUNT", c.Type)
	}
	if c.Points[0].Value == nil || *c.Points[0].Value != 9 {
		t.Fatalf("count Value=%v, want 9", c.Points[0].Value)
	}
}

// appendPercentiles sorts a copy and publishes 6 gauges per sample set.
func TestAppendPercentiles(t *testing.T) {
	t.Parallel()

	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	appendPercentiles(&series, "etl.step.duration_seconds", in, []string{"env:test"}, 999)

	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6 (p50,p90,p95,p99,max,samples)", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: got %v, want %v", in, orig)
	}

	var foundSamples bool
	for _, s := range series {
		if s.Metric == "etl.step.duration_seconds.samples" {
			foundSamples = true
			if s.Points[0].Value == nil || *s.Points[0].Value != 5 {
				t.Fatalf("samples gauge value=%v, want 5", s.Points[0].Value)
			}
		}
	}
	if !foundSamples {
		t.Fatalf("did not find samples gauge series")
	}

	var empty []datadogV2.MetricSeries
	appendPercentiles(&empty, "x", nil, nil, 1)
	if len(empty) != 0 {
		t.Fatalf("empty samples appended %d series, want 0", len(empty))
	}
}

func TestNewBackendDefaults(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"service:etl"},
		submitter: fs,
		now:       func() time.Time { return time.Unix(123, 0) },
		newTicker: func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:properties_etl") {
		t.Fatalf("baseTags missing default job tag: %v", b.baseTags)
	}
	if !contains(b.baseTags, "service:etl") {
		t.Fatalf("baseTags missing service:etl: %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlushSubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := testBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("etl_step_total", 2, metrics.Labels{"step": "extract", "status": "ok"})
	b.IncCounter("etl_records_total", 3, metrics.Labels{"kind": "loaded"})
	b.IncCounter("etl_cities_total", 1, metrics.Labels{"status": "ok"})
	b.ObserveHistogram("etl_step_duration_seconds", 0.5, metrics.Labels{"step": "extract", "status": "ok"})
	b.IncCounter("etl_http_requests_total", 7, metrics.Labels{"status": "200"})
	b.ObserveHistogram("etl_http_request_duration_seconds", 0.1, metrics.Labels{"status": "200"})
	b.ObserveHistogram("etl_http_download_bytes", 2048, metrics.Labels{"status": "200"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}

	if len(b.stepCounts) != 0 || len(b.recordCounts) != 0 || len(b.cityCounts) != 0 || len(b.stepDur) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}
	var names []string
	for _, s := range payload.Series {
		names = append(names, s.Metric)
	}
	sort.Strings(names)

	wantContains := []string{
		"etl.cities.total",
		"etl.records.total",
		"etl.step.total",
		"etl.step.duration_seconds.p50",
		"etl.step.duration_seconds.samples",
		"etl.http.requests.total",
		"etl.http.request_duration_seconds.p50",
		"etl.http.download_bytes.max",
	}
	for _, w := range wantContains {
		if !contains(names, w) {
			t.Fatalf("payload missing metric %q; got=%v", w, names)
		}
	}
}

func TestFlushNoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := testBackend(t, fs)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submission count=%d, want 0", fs.count())
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}

	// Real ticker with a fast period so the loop is exercised.
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter("etl_cities_total", 1, metrics.Labels{"status": "ok"})

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		if fs.count() >= 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected at least one background Flush; got %d", fs.count())
	}

	b.IncCounter("etl_cities_total", 1, metrics.Labels{"status": "failed"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected a final flush from Close; submissions=%d", fs.count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := testBackend(t, fs)
	defer func() { _ = b.Close() }()

	workers := runtime.GOMAXPROCS(0) * 4
	iters := 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter("etl_step_total", 1, metrics.Labels{"step": "load", "status": "ok"})
				b.IncCounter("etl_records_total", 1, metrics.Labels{"kind": "loaded"})
				b.ObserveHistogram("etl_step_duration_seconds", 0.01, metrics.Labels{"step": "load", "status": "ok"})
				b.ObserveHistogram("etl_http_request_duration_seconds", 0.02, metrics.Labels{"status": "200"})
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
}

func TestIgnoredAndDefaultedInputs(t *testing.T) {
	fs := &fakeSubmitter{}
	b := testBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter("etl_step_total", 0, nil)                   // non-positive: ignored
	b.IncCounter("etl_records_total", 1, metrics.Labels{})   // missing kind: ignored
	b.IncCounter("unknown_total", 1, metrics.Labels{})       // unknown name: ignored
	b.ObserveHistogram("etl_step_duration_seconds", -1, nil) // negative: ignored
	b.IncCounter("etl_http_requests_total", 1, metrics.Labels{})
	b.ObserveHistogram("etl_http_request_duration_seconds", 0.1, metrics.Labels{})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}

	var sawHTTPCount, sawP50 bool
	for _, s := range payload.Series {
		if s.Metric == "etl.http.requests.total" && contains(s.Tags, "status:unknown") {
			sawHTTPCount = true
		}
		if s.Metric == "etl.http.request_duration_seconds.p50" && contains(s.Tags, "status:unknown") {
			sawP50 = true
		}
		if s.Metric == "etl.records.total" {
			t.Fatalf("record counter with missing kind was buffered: %v", s)
		}
	}
	if !sawHTTPCount || !sawP50 {
		t.Fatalf("missing status:unknown series; sawCount=%v sawP50=%v", sawHTTPCount, sawP50)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty_returns_nil", in: "", want: nil},
		{name: "trims_and_skips_empty_segments", in: " env:prod , ,service:etl,  ,team:data ", want: []string{"env:prod", "service:etl", "team:data"}},
		{name: "single_tag", in: "service:etl", want: []string{"service:etl"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTagsCSV(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
