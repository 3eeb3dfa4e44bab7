package telemetry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type (
	Counter   = metric.Int64Counter
	Histogram = metric.Int64Histogram
)

// Stopwatch counts operations of one kind under name and records their durations in
// milliseconds under name + ".duration". Safe for concurrent use.
type Stopwatch struct {
	clock    clockwork.Clock
	count    Counter
	duration Histogram
	attrs    metric.MeasurementOption
}

func NewStopwatch(meter Meter, name string, clock clockwork.Clock, attrs ...attribute.KeyValue) (*Stopwatch, error) {
	count, err := meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Int64Histogram(name+".duration", metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Stopwatch{
		clock:    clock,
		count:    count,
		duration: duration,
		attrs:    metric.WithAttributeSet(attribute.NewSet(attrs...)),
	}, nil
}

// Start begins one operation. The returned function ends it, records it and returns its duration.
func (s *Stopwatch) Start() func(context.Context) time.Duration {
	started := s.clock.Now()
	return func(ctx context.Context) time.Duration {
		elapsed := s.clock.Since(started)
		s.count.Add(ctx, 1, s.attrs)
		s.duration.Record(ctx, elapsed.Milliseconds(), s.attrs)
		return elapsed
	}
}
