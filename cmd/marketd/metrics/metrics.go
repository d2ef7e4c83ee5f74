package metrics

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

// Meter is the meter for marketd metrics.
var Meter = metric.Must(global.Meter("marketd"))
