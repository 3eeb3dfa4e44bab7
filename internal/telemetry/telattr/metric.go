package telattr

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/avmdbg/avmdbg/common/logging"
)

func With(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(attrs...))
}

func Command(command string) attribute.KeyValue {
	return attribute.String(logging.FieldCommand, command)
}

func Success(ok bool) attribute.KeyValue {
	return attribute.Bool("success", ok)
}
