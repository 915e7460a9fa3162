package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const fetchScopeName = "github.com/jobcan-tools/jobcan-di/fetch"

// FetchMetrics counts the fetch engine's work: outbound requests with
// their duration, list pages and result items per endpoint, and
// recorded warnings by kind. A nil *FetchMetrics is a valid no-op
// receiver, so callers never branch on whether telemetry is on.
type FetchMetrics struct {
	requests metric.Int64Counter
	pages    metric.Int64Counter
	items    metric.Int64Counter
	warnings metric.Int64Counter
	dur      metric.Float64Histogram
}

// NewFetchMetrics creates the fetch instruments, or nil when telemetry
// is disabled.
func NewFetchMetrics() *FetchMetrics {
	if !Enabled() {
		return nil
	}
	m := Meter(fetchScopeName)
	requests, _ := m.Int64Counter("jobcan.fetch.requests",
		metric.WithDescription("Outbound API requests by HTTP status"),
	)
	pages, _ := m.Int64Counter("jobcan.fetch.pages",
		metric.WithDescription("List pages fetched per endpoint"),
	)
	items, _ := m.Int64Counter("jobcan.fetch.items",
		metric.WithDescription("Result items received per endpoint"),
	)
	warnings, _ := m.Int64Counter("jobcan.fetch.warnings",
		metric.WithDescription("Retryable warnings recorded, by kind"),
	)
	dur, _ := m.Float64Histogram("jobcan.fetch.request.duration",
		metric.WithDescription("Outbound API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &FetchMetrics{requests: requests, pages: pages, items: items, warnings: warnings, dur: dur}
}

// Request records one completed outbound request.
func (f *FetchMetrics) Request(ctx context.Context, status int, elapsed time.Duration) {
	if f == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("http.status", status))
	f.requests.Add(ctx, 1, attrs)
	f.dur.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// Page records one fetched list page and its item count.
func (f *FetchMetrics) Page(ctx context.Context, apiType string, items int) {
	if f == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("jobcan.api_type", apiType))
	f.pages.Add(ctx, 1, attrs)
	f.items.Add(ctx, int64(items), attrs)
}

// Warning records one retryable warning by kind.
func (f *FetchMetrics) Warning(ctx context.Context, kind string) {
	if f == nil {
		return
	}
	f.warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("warning.kind", kind)))
}
