// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the bot.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Run attributes
	RunIDKey       = "run.id"
	RunTriggerKey  = "run.trigger"
	RunOutcomeKey  = "run.outcome"
	RunNewTotalKey = "run.new_releases"

	// Discovery attributes
	DiscoverWindowStartKey = "discover.window_start"
	DiscoverWindowEndKey   = "discover.window_end"
	DiscoverPagesKey       = "discover.pages"
	DiscoverResultsKey     = "discover.results"

	// Dispatch attributes
	DispatchChatKey     = "dispatch.chat_id"
	DispatchMessagesKey = "dispatch.messages"
	DispatchAttemptKey  = "dispatch.attempt"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes. The URL must already be
// sanitized; raw upstream URLs carry credentials.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RunAttributes creates run-level span attributes.
func RunAttributes(runID, trigger string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if trigger != "" {
		attrs = append(attrs, attribute.String(RunTriggerKey, trigger))
	}
	return attrs
}

// DiscoverAttributes creates release-discovery span attributes.
func DiscoverAttributes(windowStart, windowEnd string, pages, results int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DiscoverWindowStartKey, windowStart),
		attribute.String(DiscoverWindowEndKey, windowEnd),
		attribute.Int(DiscoverPagesKey, pages),
		attribute.Int(DiscoverResultsKey, results),
	}
}

// DispatchAttributes creates dispatch span attributes.
func DispatchAttributes(chatID int64, messages, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(DispatchChatKey, chatID),
		attribute.Int(DispatchMessagesKey, messages),
		attribute.Int(DispatchAttemptKey, attempt),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
