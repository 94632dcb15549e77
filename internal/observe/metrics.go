// Package observe wires OpenTelemetry metrics for the agent. A Prometheus
// exporter bridge backs the /metrics endpoint; tests build [Metrics] on a
// manual reader instead.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/heimdex/reeldraft"

// Metrics holds the agent's instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// DraftOperations counts lifecycle operations by op and status.
	DraftOperations metric.Int64Counter

	// FilesDeleted counts media files removed by cleanup, by reason.
	FilesDeleted metric.Int64Counter

	// SegmentsPruned counts segments dropped on load because their media was
	// missing.
	SegmentsPruned metric.Int64Counter

	// RetimedWords counts transcript words by outcome (kept, dropped).
	RetimedWords metric.Int64Counter

	// ExportDuration tracks end-to-end export latency.
	ExportDuration metric.Float64Histogram

	// HTTPRequestDuration tracks API latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DraftOperations, err = m.Int64Counter("reeldraft.draft.operations",
		metric.WithDescription("Draft lifecycle operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.FilesDeleted, err = m.Int64Counter("reeldraft.files.deleted",
		metric.WithDescription("Media files deleted by cleanup reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPruned, err = m.Int64Counter("reeldraft.segments.pruned",
		metric.WithDescription("Segments dropped on load because their media was missing."),
	); err != nil {
		return nil, err
	}
	if met.RetimedWords, err = m.Int64Counter("reeldraft.retime.words",
		metric.WithDescription("Transcript words seen by the retiming engine, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ExportDuration, err = m.Float64Histogram("reeldraft.export.duration",
		metric.WithDescription("Latency of draft exports."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("reeldraft.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordDraftOp counts one lifecycle operation. err decides the status.
func (m *Metrics) RecordDraftOp(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DraftOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordFilesDeleted(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FilesDeleted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordSegmentsPruned(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SegmentsPruned.Add(ctx, int64(n))
}

func (m *Metrics) RecordRetime(ctx context.Context, kept, dropped int) {
	if m == nil {
		return
	}
	m.RetimedWords.Add(ctx, int64(kept), metric.WithAttributes(attribute.String("outcome", "kept")))
	m.RetimedWords.Add(ctx, int64(dropped), metric.WithAttributes(attribute.String("outcome", "dropped")))
}

func (m *Metrics) RecordExport(ctx context.Context, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExportDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
