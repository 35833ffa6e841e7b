// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across components.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound requests with a token bucket. It never resends a
// request: a 429 from upstream is returned to the caller as-is.
//
// A nil *Pacer sends immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer allowing rps requests per second with the given
// burst. rps <= 0 returns nil (no pacing).
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Do waits for a send slot and executes req once. If the context is
// cancelled while waiting, Do returns ctx.Err() without sending.
func (p *Pacer) Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	if p != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("waiting for send slot: %w", err)
		}
	}
	return client.Do(req.WithContext(ctx))
}

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4 << 10

// ReadErrorBody drains resp.Body and returns at most 4 KiB of it as a string
// for inclusion in error messages.
func ReadErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	io.Copy(io.Discard, resp.Body)
	return string(data)
}
