// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beminfo2012/sigerd-mobile-sub001/syncer"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func fakeClient(f roundTripFunc) *http.Client {
	return &http.Client{Transport: f}
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestHTTPRemoteUpsert(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody syncer.Envelope

	client := fakeClient(func(req *http.Request) (*http.Response, error) {
		gotMethod = req.Method
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		return jsonResponse(200, `{"id":"srv-1","business_id":"ABR-x","updated_at":"2026-01-02T03:04:05Z","payload":{}}`), nil
	})

	r := NewHTTPRemote("https://sync.example.org/", client,
		func(ctx context.Context) (string, error) { return "tok-123", nil }, nil)

	env, err := r.Upsert(context.Background(), "shelters", syncer.Envelope{
		BusinessID: "ABR-x",
		UpdatedAt:  time.Now().UTC(),
		Payload:    json.RawMessage(`{"name":"Ginásio"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v1/shelters/ABR-x", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "ABR-x", gotBody.BusinessID)
	assert.Equal(t, "srv-1", env.RemoteID)
}

func TestHTTPRemoteListSince(t *testing.T) {
	var gotQuery string
	client := fakeClient(func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.RawQuery
		return jsonResponse(200, `[{"id":"srv-1","business_id":"INV-a","updated_at":"2026-01-01T00:00:00Z","payload":{}}]`), nil
	})
	r := NewHTTPRemote("https://sync.example.org", client, nil, nil)

	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	envs, err := r.List(context.Background(), "inventory", since)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Contains(t, gotQuery, "since=2026-01-01T12")

	// zero since omits the parameter
	envs, err = r.List(context.Background(), "inventory", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
	require.Len(t, envs, 1)
}

func TestHTTPRemoteGetNotFound(t *testing.T) {
	client := fakeClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(404, `{"error":"not found"}`), nil
	})
	r := NewHTTPRemote("https://sync.example.org", client, nil, nil)

	_, ok, err := r.Get(context.Background(), "shelters", "ABR-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPRemoteServerErrorSurfacesStatus(t *testing.T) {
	client := fakeClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(500, `boom`), nil
	})
	r := NewHTTPRemote("https://sync.example.org", client, nil, nil)

	_, err := r.Upsert(context.Background(), "shelters", syncer.Envelope{BusinessID: "ABR-x"})
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Contains(t, se.Body, "boom")
}
