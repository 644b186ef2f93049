// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// exchange records what came back for one Complete call so that failures can
// be classified and upstream bodies reported verbatim.
type exchange struct {
	mu        sync.Mutex
	responded bool
	status    int
	body      []byte
	err       error
}

type exchangeKey struct{}

func withExchange(ctx context.Context) (context.Context, *exchange) {
	ex := &exchange{}
	return context.WithValue(ctx, exchangeKey{}, ex), ex
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

func (e *exchange) record(status int, body []byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responded = true
	e.status = status
	e.body = body
	e.err = err
}

func (e *exchange) result() (status int, body string, responded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, string(e.body), e.responded
}

func (e *exchange) readErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// capturingDoer is the go-openai HTTPDoer. It buffers each response body
// under MaxResponseSize, records it on the request's exchange, and hands the
// buffered copy back to the caller.
type capturingDoer struct {
	client *http.Client
	logger *zap.Logger
}

// Do implements openai.HTTPDoer.
func (d *capturingDoer) Do(req *http.Request) (*http.Response, error) {
	// Don't log headers (auth) or body (user content).
	d.logger.Debug("api request", zap.String("method", req.Method), zap.String("path", req.URL.Path))

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	data, readErr := readResponse(resp.Body)
	resp.Body.Close()

	d.logger.Debug("api response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if ex := exchangeFrom(req.Context()); ex != nil {
		ex.record(resp.StatusCode, data, readErr)
	}
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp, nil
}

func readResponse(body io.Reader) ([]byte, error) {
	// SECURITY: Limit response size to prevent memory exhaustion
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return data, nil
}
