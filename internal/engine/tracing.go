package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScopeEngine = "taskcore.engine"

	traceSpanRound = "taskcore.engine.round"

	traceAttrTaskID = "taskcore.task_id"
	traceAttrRound  = "taskcore.round"
	traceAttrStatus = "taskcore.status"
	traceAttrModel  = "taskcore.model"
)

// startRoundSpan opens one span per continuation round, mirroring the
// react engine's per-iteration span convention.
func startRoundSpan(ctx context.Context, taskID string, round int, model string) (context.Context, trace.Span) {
	return otel.Tracer(traceScopeEngine).Start(ctx, traceSpanRound, trace.WithAttributes(
		attribute.String(traceAttrTaskID, taskID),
		attribute.Int(traceAttrRound, round),
		attribute.String(traceAttrModel, model),
	))
}

func markSpanResult(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(traceAttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, "success"))
}
