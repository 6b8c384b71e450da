package services

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/blogle/dojo-sub001/internal/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func conceptAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("ledger.concept_id", id.String())
}

func transferAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String("ledger.transfer_id", id.String())
}

func monthAttr(month string) attribute.KeyValue {
	return attribute.String("ledger.month", month)
}
