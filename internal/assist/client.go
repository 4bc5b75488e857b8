// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/morganforge/dashchat/internal/model"
)

// Configuration constants for the assistant endpoint.
const (
	// DefaultConnectTimeout bounds TLS and connection setup; the streaming
	// read itself has no deadline and is ended by context or a terminal event.
	DefaultConnectTimeout = 10 * time.Second

	// MaxErrorBodySize is the most of a failure response body we will read
	// when extracting an error message.
	MaxErrorBodySize = 1 * 1024 * 1024
)

// sharedStreamingClient is used for all chat streams. No client timeout:
// stream lifetime is controlled by the request context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: DefaultConnectTimeout,
	},
}

// Error variables for common client errors.
var (
	// ErrNoServer indicates the client was built without a base URL.
	ErrNoServer = errors.New("assistant server URL not configured")

	// ErrEventTooLarge indicates a single streamed event exceeded MaxEventSize.
	ErrEventTooLarge = errors.New("stream event exceeds size limit")
)

// APIError represents a non-success HTTP response from the assistant endpoint.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("chat request failed (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("chat request failed (HTTP %d)", e.Status)
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// TokenSource supplies the bearer credential attached to chat requests.
// An empty token is valid: the request is sent without an Authorization
// header rather than rejected.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string {
	return f()
}

// StaticToken is a TokenSource holding a fixed credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string {
	return string(t)
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest is the body of a chat turn: the new user message plus the
// transcript as it stood before this turn.
type ChatRequest struct {
	Message             string              `json:"message"`
	ConversationHistory []model.ChatMessage `json:"conversation_history"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the dashboard assistant endpoint.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedStreamingClient,
		userAgent:  "dashchat/0.1",
	}
}

// WithTokenSource sets the credential holder consulted per request.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

// WithLimiter sets a client-side limiter on request starts. The limiter
// gates only the opening of a stream, never individual events.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// WithHTTPClient overrides the underlying HTTP client. The replacement must
// not set a client timeout or it will sever long streams.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// setHeaders sets the headers for a chat stream request. The Authorization
// header is omitted entirely when no credential is held.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// logRequest logs an outbound request without headers or body.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("assist: %s %s", req.Method, req.URL.Path)
}

// logResponse logs a response status with duration, never the body.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("assist: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat opens a chat stream for one dashboard and decodes it.
//
// Every outcome is delivered through cb: OnToken per token event, then
// exactly one of OnDone or OnError. Cancellation via ctx is the exception,
// silently absorbed so callers observe it only through their own signal.
// StreamChat blocks until the stream reaches a terminal state; run it in a
// goroutine to overlap with UI work.
func (c *Client) StreamChat(ctx context.Context, dashboardID string, req ChatRequest, cb StreamCallbacks) {
	if c.baseURL == "" {
		cb.fail(ErrNoServer.Error())
		return
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Only context errors escape Wait; cancellation stays silent.
			return
		}
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		cb.fail(fmt.Sprintf("failed to encode request: %v", err))
		return
	}

	endpoint := c.baseURL + "/dashboards/" + url.PathEscape(dashboardID) + "/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		cb.fail(fmt.Sprintf("failed to build request: %v", err))
		return
	}

	c.setHeaders(httpReq)
	c.logRequest(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isCanceled(ctx, err) {
			return
		}
		cb.fail(fmt.Sprintf("connection failed: %v", err))
		return
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.fail(c.errorFromResponse(resp).Error())
		return
	}

	c.processStream(ctx, resp.Body, cb)
}

// processStream decodes the event stream and dispatches callbacks. It stops
// reading at the first terminal event so the connection is released promptly
// on Done and Errored, not only on cancel.
func (c *Client) processStream(ctx context.Context, body io.Reader, cb StreamCallbacks) {
	reader := NewSSEReader(body)
	sawEvent := false

	for {
		_, data, err := reader.ReadEvent()
		if err != nil {
			if isCanceled(ctx, err) {
				return
			}
			if err == io.EOF {
				// The protocol always ends with done or error; a bare EOF
				// means the body was empty or the stream was cut short.
				if sawEvent {
					cb.fail("stream ended before completion")
				} else {
					cb.fail("empty response from assistant")
				}
				return
			}
			cb.fail(fmt.Sprintf("stream read failed: %v", err))
			return
		}

		ev, ok := DecodeEvent(data)
		if !ok {
			// Malformed or empty payload: skip this record, keep reading.
			continue
		}
		sawEvent = true

		switch ev.Type {
		case EventToken:
			cb.token(ev.Data)
		case EventDone:
			sources := ev.Sources
			if sources == nil {
				sources = []model.Source{}
			}
			cb.done(sources)
			return
		case EventError:
			cb.fail(ev.Err)
			return
		}
	}
}

// errorFromResponse builds an APIError from a non-success response, reading
// the body best-effort for a detail field.
func (c *Client) errorFromResponse(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil || len(body) == 0 {
		apiErr.Detail = http.StatusText(resp.StatusCode)
		return apiErr
	}

	// The server wraps failures in {"detail": "..."} when it can.
	var envelope struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Detail != "" {
		apiErr.Detail = envelope.Detail
		return apiErr
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		apiErr.Detail = text
	} else {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// isCanceled reports whether err (or the context itself) represents
// cooperative cancellation rather than failure.
func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
