// Package metrics has shared helpers for marketd instrumentation.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// AttrOK tags a metric data point as a successful operation.
	AttrOK = attribute.String("status", "ok")
	// AttrError tags a metric data point as a failed operation.
	AttrError = attribute.String("status", "error")
)

// MetricIncrCounter increments m by 1, tagged AttrOK or AttrError
// depending on err. Useful as a deferred one-liner in instrumented
// methods.
func MetricIncrCounter(ctx context.Context, err error, m metric.Int64Counter, labels ...attribute.KeyValue) {
	attr := AttrOK
	if err != nil {
		attr = AttrError
	}
	m.Add(ctx, 1, append(labels, attr)...)
}
