// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package egapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/dacsync/pkg/logger"
)

// TokenSource supplies the bearer credential for outgoing requests.
// token.Manager satisfies it.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
	Invalidate()
}

// rateLimitTransport throttles every outbound request through a shared
// token bucket. It sits closest to the wire so auth retries and status
// retries are throttled too.
type rateLimitTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// retryStatusError signals a retryable status to the backoff loop.
type retryStatusError struct {
	status int
}

func (e *retryStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

// retryTransport retries a request exactly once on 429, 504, or a
// transport-level connection reset. Retries are single-shot to prevent
// unbounded loops; a second failure of the same class escalates.
type retryTransport struct {
	next http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		r, err := cloneRequest(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := t.next.RoundTrip(r)
		if err != nil {
			if isConnReset(err) {
				logger.Warnf("connection reset on %s %s (attempt %d)", req.Method, req.URL.Path, attempt)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusGatewayTimeout {
			logger.Warnf("status %d on %s %s (attempt %d)", resp.StatusCode, req.Method, req.URL.Path, attempt)
			drainBody(resp)
			return nil, &retryStatusError{status: resp.StatusCode}
		}
		return resp, nil
	}

	resp, err := backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// authTransport injects the bearer token from the token source. On a 401 it
// invalidates the slot, re-acquires, and retries the original request
// exactly once; a second 401 passes through for the caller to surface.
type authTransport struct {
	tokens TokenSource
	next   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	logger.Debugf("401 on %s %s, refreshing token and retrying once", req.Method, req.URL.Path)
	drainBody(resp)
	t.tokens.Invalidate()
	return t.send(req)
}

func (t *authTransport) send(req *http.Request) (*http.Response, error) {
	tok, err := t.tokens.Acquire(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire access token: %w", err)
	}

	r, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	return t.next.RoundTrip(r)
}

// cloneRequest copies req with a replayable body so it can be sent again.
func cloneRequest(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

func isConnReset(err error) bool {
	return stderrors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(err.Error(), "connection reset")
}

func drainBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// newTransport assembles the chain: auth (with 401 refresh) over retry
// (single-shot 429/504/reset) over the shared rate limiter over base.
func newTransport(tokens TokenSource, limiter *rate.Limiter, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{
		tokens: tokens,
		next: &retryTransport{
			next: &rateLimitTransport{
				limiter: limiter,
				next:    base,
			},
		},
	}
}
