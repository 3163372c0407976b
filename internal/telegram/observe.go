// SPDX-License-Identifier: MIT
package telegram

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

// Observability keys (frozen).
const (
	AttrChatID  = "mnb.dispatch.chat_id"
	AttrOutcome = "mnb.dispatch.outcome"
	AttrReason  = "mnb.dispatch.reason"
)

// allowedAttributes is the frozen whitelist for dispatch spans.
var allowedAttributes = map[string]bool{
	AttrChatID:  true,
	AttrOutcome: true,
	AttrReason:  true,
}

// EmitDispatchOutcome records the final outcome of one message delivery on
// the dispatch counter and the current span. Attributes are whitelisted;
// chat IDs are allowlisted configuration, not user data.
func EmitDispatchOutcome(ctx context.Context, chatID int64, outcome string) {
	meter := otel.GetMeterProvider().Meter("mnb.dispatch")

	total, _ := meter.Int64Counter("mnb_dispatch_total",
		metric.WithDescription("Message deliveries by outcome"))
	total.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))

	applyWhitelisted(ctx, []attribute.KeyValue{
		attribute.String(AttrChatID, strconv.FormatInt(chatID, 10)),
		attribute.String(AttrOutcome, outcome),
	})
}

// EmitDispatchRetry records one retry decision.
func EmitDispatchRetry(ctx context.Context, reason string) {
	meter := otel.GetMeterProvider().Meter("mnb.dispatch")

	retries, _ := meter.Int64Counter("mnb_dispatch_retry_total",
		metric.WithDescription("Dispatch retries by reason"))
	retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))

	applyWhitelisted(ctx, []attribute.KeyValue{
		attribute.String(AttrReason, reason),
	})
}

// applyWhitelisted sets attributes on the current span after enforcing the
// whitelist. A violation is logged and nothing is applied.
func applyWhitelisted(ctx context.Context, attrs []attribute.KeyValue) {
	for _, kv := range attrs {
		if !allowedAttributes[string(kv.Key)] {
			logger := log.Base()
			logger.Error().
				Str("key", string(kv.Key)).
				Msg("observability attribute not in whitelist")
			return
		}
	}
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// StartDispatchSpan opens a span for one chat's delivery.
func StartDispatchSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer("mnb.dispatch")
	return tracer.Start(ctx, "mnb.dispatch")
}
