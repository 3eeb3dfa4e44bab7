package debugger

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/avmdbg/avmdbg/internal/telemetry"
	"github.com/avmdbg/avmdbg/internal/telemetry/telattr"
)

type Metrics struct {
	attrs          metric.MeasurementOption
	steps          telemetry.Counter
	breakpointHits telemetry.Counter
}

func NewMetrics(meter telemetry.Meter, attrs metric.MeasurementOption) (*Metrics, error) {
	m := &Metrics{}
	if err := m.Init("avmdbg.debugger", meter, attrs); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Init(name string, meter telemetry.Meter, attrs metric.MeasurementOption) error {
	var err error
	if attrs == nil {
		attrs = telattr.With()
	}
	m.attrs = attrs

	if m.steps, err = meter.Int64Counter(name + ".steps"); err != nil {
		return err
	}
	if m.breakpointHits, err = meter.Int64Counter(name + ".breakpoint_hits"); err != nil {
		return err
	}
	return nil
}

func (m *Metrics) recordSteps(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.steps.Add(ctx, int64(n), m.attrs)
}

func (m *Metrics) recordBreakpointHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.breakpointHits.Add(ctx, 1, m.attrs)
}
