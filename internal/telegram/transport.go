// SPDX-License-Identifier: MIT
package telegram

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/platform/httpx"
	mnbnet "github.com/evangelie19/movie-notifier-bot/internal/platform/net"
)

// Transport performs one HTTP exchange with the Bot API. The indirection
// keeps the dispatcher testable and enables the dev dry-run mode.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPTransport sends requests over a real HTTP client.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport builds a transport on the hardened client factory.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: httpx.NewClient(httpx.Options{})}
}

func (t *HTTPTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return t.Client.Do(req.WithContext(ctx))
}

// DryRunTransport logs the would-be request and fakes a success response.
// Used in dev mode when no bot token is configured.
type DryRunTransport struct{}

func (DryRunTransport) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	logger := log.WithComponent("telegram")
	size := int64(0)
	if req.ContentLength > 0 {
		size = req.ContentLength
	}
	logger.Info().
		Str(log.FieldEvent, "telegram.dryrun.send").
		Str("endpoint", mnbnet.SanitizeURL(req.URL.String())).
		Int64("payload_bytes", size).
		Msg("dry-run: message not sent")
	if req.Body != nil {
		_ = req.Body.Close()
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(`{"ok":true,"result":{}}`)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}
