// SPDX-License-Identifier: MIT

// Package telegram delivers digest messages through the Telegram Bot API.
// Every send is checked against the chat allowlist before any network call;
// 429 responses honor parameters.retry_after and 5xx responses walk a fixed
// backoff ladder.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
)

const (
	// DefaultBaseURL is the Bot API root.
	DefaultBaseURL = "https://api.telegram.org"

	// ParseModeMarkdownV2 is the only parse mode the bot emits.
	ParseModeMarkdownV2 = "MarkdownV2"

	defaultMaxRetries = 3
	defaultRetryAfter = time.Second

	maxErrorBody = 2048
)

var defaultRetryDelays = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// Message is one outgoing chat message.
type Message struct {
	ChatID                int64
	Text                  string
	ParseMode             string
	DisableWebPagePreview bool
}

// sendMessageRequest is the sendMessage JSON payload. parse_mode and
// disable_web_page_preview are part of the wire format.
type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// apiResponse is the Bot API envelope; parameters carries retry_after on 429.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Dispatcher sends messages to allowlisted chats.
type Dispatcher struct {
	baseURL    string
	token      string
	transport  Transport
	limiter    *rate.Limiter
	delays     []time.Duration
	maxRetries int
	sleep      func(context.Context, time.Duration) error
	logger     zerolog.Logger

	mu      sync.RWMutex
	allowed map[int64]struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBaseURL overrides the Bot API root, used by tests.
func WithBaseURL(u string) DispatcherOption {
	return func(d *Dispatcher) { d.baseURL = strings.TrimRight(u, "/") }
}

// WithTransport injects the HTTP exchange.
func WithTransport(t Transport) DispatcherOption {
	return func(d *Dispatcher) { d.transport = t }
}

// WithRetryDelays overrides the 5xx backoff ladder.
func WithRetryDelays(delays ...time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.delays = delays }
}

// WithMaxRetries overrides the retry budget per message.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxRetries = n }
}

// WithRateLimiter overrides the send pacer.
func WithRateLimiter(l *rate.Limiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithSleep overrides the retry sleep, used by tests.
func WithSleep(fn func(context.Context, time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = fn }
}

// New creates a dispatcher for the given token and chat allowlist.
func New(token string, allowedChats []int64, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		baseURL:    DefaultBaseURL,
		token:      token,
		transport:  NewHTTPTransport(),
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		delays:     defaultRetryDelays,
		maxRetries: defaultMaxRetries,
		allowed:    make(map[int64]struct{}, len(allowedChats)),
		sleep:      sleepContext,
		logger:     log.WithComponent("telegram"),
	}
	for _, id := range allowedChats {
		d.allowed[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewFromConfig builds a dispatcher from settings and the chat list. In dev
// mode a missing token selects the dry-run transport; in prod it is an error.
func NewFromConfig(cfg config.TelegramSettings, chats []config.ChatConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	ids := make([]int64, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ChatID)
	}

	base := []DispatcherOption{
		WithMaxRetries(cfg.MaxRetries),
		WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)),
	}
	if cfg.BaseURL != "" {
		base = append(base, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Token == "" {
		if cfg.Env == "prod" {
			return nil, errors.New("telegram: TELEGRAM_BOT_TOKEN required in prod")
		}
		base = append(base, WithTransport(DryRunTransport{}))
	}
	return New(cfg.Token, ids, append(base, opts...)...), nil
}

// UpdateAllowedChats replaces the chat allowlist. The daemon calls it when a
// config reload changes the chat list, so added chats become deliverable
// without a restart.
func (d *Dispatcher) UpdateAllowedChats(ids []int64) {
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	d.mu.Lock()
	d.allowed = next
	d.mu.Unlock()
}

// SendBatch delivers messages in order. Empty messages are skipped; the first
// hard failure stops the batch and the count of delivered messages is
// returned alongside the error.
func (d *Dispatcher) SendBatch(ctx context.Context, msgs []Message) (int, error) {
	sent := 0
	for _, m := range msgs {
		m.Text = strings.TrimSpace(m.Text)
		if m.Text == "" {
			continue
		}
		if err := d.sendSingle(ctx, m); err != nil {
			return sent, err
		}
		sent++
		metrics.IncMessageSent(strconv.FormatInt(m.ChatID, 10))
	}
	return sent, nil
}

// sendSingle delivers one message with retry. The allowlist check happens
// before any network traffic.
func (d *Dispatcher) sendSingle(ctx context.Context, m Message) error {
	if m.Text == "" {
		return &DispatchError{Sentinel: ErrEmptyMessage, Op: "sendMessage", ChatID: m.ChatID}
	}
	// One span per delivery keeps outcome attributes from clobbering each
	// other on the run span.
	ctx, span := StartDispatchSpan(ctx)
	defer span.End()

	d.mu.RLock()
	_, ok := d.allowed[m.ChatID]
	d.mu.RUnlock()
	if !ok {
		metrics.IncDispatchError("unknown_chat")
		EmitDispatchOutcome(ctx, m.ChatID, "unknown_chat")
		return &DispatchError{Sentinel: ErrUnknownChat, Op: "sendMessage", ChatID: m.ChatID}
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		err := d.post(ctx, m)
		if err == nil {
			EmitDispatchOutcome(ctx, m.ChatID, "ok")
			d.logger.Debug().
				Str(log.FieldEvent, "telegram.send.ok").
				Int64(log.FieldChatID, m.ChatID).
				Int(log.FieldAttempt, attempt+1).
				Msg("message delivered")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		var wait time.Duration
		var reason string
		var de *DispatchError
		switch {
		case errors.Is(err, ErrRateLimited):
			wait = defaultRetryAfter
			if errors.As(err, &de) && de.RetryAfter > 0 {
				wait = de.RetryAfter
			}
			reason = "rate_limit"
		case errors.Is(err, ErrServer), errors.Is(err, ErrUnavailable):
			wait = d.delays[min(attempt, len(d.delays)-1)]
			reason = "server"
		default:
			metrics.IncDispatchError("client")
			EmitDispatchOutcome(ctx, m.ChatID, "client_error")
			return err
		}

		lastErr = err
		metrics.IncDispatchError(reason)
		if attempt == d.maxRetries {
			break
		}
		metrics.IncUpstreamRetry("telegram", reason)
		EmitDispatchRetry(ctx, reason)
		d.logger.Warn().
			Str(log.FieldEvent, "telegram.send.retry").
			Int64(log.FieldChatID, m.ChatID).
			Int(log.FieldAttempt, attempt+1).
			Str("reason", reason).
			Dur("delay", wait).
			Msg("delivery failed, backing off")
		if serr := d.sleep(ctx, wait); serr != nil {
			return serr
		}
	}

	EmitDispatchOutcome(ctx, m.ChatID, "retry_limit")
	return &DispatchError{Sentinel: ErrRetryLimit, Op: "sendMessage", ChatID: m.ChatID, Err: lastErr}
}

// post performs a single sendMessage exchange and classifies the response.
func (d *Dispatcher) post(ctx context.Context, m Message) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                m.ChatID,
		Text:                  m.Text,
		ParseMode:             m.ParseMode,
		DisableWebPagePreview: m.DisableWebPagePreview,
	})
	if err != nil {
		return &DispatchError{Sentinel: ErrClient, Op: "sendMessage", ChatID: m.ChatID, Err: err}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.baseURL, d.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &DispatchError{Sentinel: ErrClient, Op: "sendMessage", ChatID: m.ChatID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := d.transport.Do(ctx, req)
	if err != nil {
		metrics.ObserveUpstreamRequest("telegram", 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &DispatchError{Sentinel: ErrUnavailable, Op: "sendMessage", ChatID: m.ChatID, Err: err}
	}
	defer res.Body.Close()
	metrics.ObserveUpstreamRequest("telegram", res.StatusCode, time.Since(start))

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return &DispatchError{
			Sentinel:   ErrRateLimited,
			Op:         "sendMessage",
			ChatID:     m.ChatID,
			Status:     res.StatusCode,
			RetryAfter: parseRetryAfter(body),
		}
	case res.StatusCode >= 500:
		return &DispatchError{
			Sentinel: ErrServer,
			Op:       "sendMessage",
			ChatID:   m.ChatID,
			Status:   res.StatusCode,
		}
	default:
		return &DispatchError{
			Sentinel: ErrClient,
			Op:       "sendMessage",
			ChatID:   m.ChatID,
			Status:   res.StatusCode,
			Err:      errors.New(apiDescription(body)),
		}
	}
}

// parseRetryAfter extracts parameters.retry_after from a 429 body. An
// unparseable body falls back to one second.
func parseRetryAfter(body []byte) time.Duration {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return defaultRetryAfter
	}
	if resp.Parameters == nil || resp.Parameters.RetryAfter <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(resp.Parameters.RetryAfter) * time.Second
}

func apiDescription(body []byte) string {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Description == "" {
		return "request rejected"
	}
	return resp.Description
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
