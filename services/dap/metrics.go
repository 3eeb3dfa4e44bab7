package dap

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/avmdbg/avmdbg/internal/telemetry"
	"github.com/avmdbg/avmdbg/internal/telemetry/telattr"
)

type Metrics struct {
	attrs    metric.MeasurementOption
	sessions *telemetry.Stopwatch
	requests telemetry.Counter
}

func NewMetrics(meter telemetry.Meter, clock clockwork.Clock, attrs metric.MeasurementOption) (*Metrics, error) {
	m := &Metrics{}
	if err := m.Init("avmdbg.dap", meter, clock, attrs); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Init(name string, meter telemetry.Meter, clock clockwork.Clock, attrs metric.MeasurementOption) error {
	var err error
	if attrs == nil {
		attrs = telattr.With()
	}
	m.attrs = attrs

	if m.sessions, err = telemetry.NewStopwatch(meter, name+".sessions", clock); err != nil {
		return err
	}
	if m.requests, err = meter.Int64Counter(name + ".requests"); err != nil {
		return err
	}
	return nil
}

// startSession returns the function that records the session once it is over.
func (m *Metrics) startSession() func(context.Context) time.Duration {
	return m.sessions.Start()
}

func (m *Metrics) recordRequest(ctx context.Context, command string, ok bool) {
	m.requests.Add(ctx, 1, m.attrs, telattr.With(telattr.Command(command), telattr.Success(ok)))
}
