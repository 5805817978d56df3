// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package remote provides syncer.Remote implementations: an HTTP client for
// the field-deployment API and a Postgres-backed store for direct server
// use.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beminfo2012/sigerd-mobile-sub001/syncer"
)

// TokenSource supplies the bearer token for a request. It is called per
// request so short-lived tokens can rotate underneath the client.
type TokenSource func(ctx context.Context) (string, error)

// HTTPRemote talks to the sync API:
//
//	PUT /v1/{entity}/{business_id}   upsert one record
//	GET /v1/{entity}?since={ts}      list records changed after ts
//	GET /v1/{entity}/{business_id}   fetch one record
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	token   TokenSource
	logger  *slog.Logger
}

// NewHTTPRemote creates a client for the API at baseURL. httpClient may be
// nil for a default with a 30s timeout; token may be nil for unauthenticated
// servers.
func NewHTTPRemote(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *HTTPRemote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		token:   token,
		logger:  logger,
	}
}

func (r *HTTPRemote) Upsert(ctx context.Context, entity string, env syncer.Envelope) (syncer.Envelope, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return syncer.Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	u := fmt.Sprintf("%s/v1/%s/%s", r.baseURL, url.PathEscape(entity), url.PathEscape(env.BusinessID))
	var out syncer.Envelope
	if err := r.do(ctx, http.MethodPut, u, body, &out); err != nil {
		return syncer.Envelope{}, err
	}
	return out, nil
}

func (r *HTTPRemote) List(ctx context.Context, entity string, since time.Time) ([]syncer.Envelope, error) {
	u := fmt.Sprintf("%s/v1/%s", r.baseURL, url.PathEscape(entity))
	if !since.IsZero() {
		u += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var out []syncer.Envelope
	if err := r.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *HTTPRemote) Get(ctx context.Context, entity string, businessID string) (syncer.Envelope, bool, error) {
	u := fmt.Sprintf("%s/v1/%s/%s", r.baseURL, url.PathEscape(entity), url.PathEscape(businessID))
	var out syncer.Envelope
	err := r.do(ctx, http.MethodGet, u, nil, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return syncer.Envelope{}, false, nil
		}
		return syncer.Envelope{}, false, err
	}
	return out, true, nil
}

// StatusError reports a non-2xx response, preserving the status code so
// callers can distinguish not-found from transport failure.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned HTTP %d: %s", e.Code, e.Body)
}

func (r *HTTPRemote) do(ctx context.Context, method, u string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != nil {
		tok, err := r.token(ctx)
		if err != nil {
			return fmt.Errorf("token source: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("remote request failed",
			"method", method, "url", u, "status", resp.StatusCode)
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
