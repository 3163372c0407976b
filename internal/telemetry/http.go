// SPDX-License-Identifier: MIT
package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// WrapTransport instruments an outbound round tripper so upstream calls
// (TMDB, Telegram, GitHub) become child spans of the run trace. With the
// noop provider installed the wrapper adds no spans.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(rt,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithSpanNameFormatter(outboundSpanName),
	)
}

// outboundSpanName names outbound spans by method and host. Paths are left
// out because Telegram requests embed the bot token in the URL.
func outboundSpanName(_ string, r *http.Request) string {
	return "HTTP " + r.Method + " " + r.URL.Host
}
