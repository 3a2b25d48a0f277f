package chat

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/natlang-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	turnCounter = newTurnCounter()
)

func newTurnCounter() metric.Int64Counter {
	counter, err := meter.Int64Counter("natlang.turns",
		metric.WithDescription("Finished turns by outcome"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}
