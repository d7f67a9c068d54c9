package modeladapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *modeladapter.ModelAdapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := modeladapter.New(srv.URL, modeladapter.Auth{Key: "sk-test"}, nil)

	return &a
}

func TestNewRequest_DefaultAuth(t *testing.T) {
	a := modeladapter.New("https://example.com", modeladapter.Auth{Key: "sk-test"}, nil)
	a.Headers = map[string]string{"X-Custom": "yes"}

	req, err := a.NewRequest(context.Background(), http.MethodPost, "/v1/x", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/v1/x", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "yes", req.Header.Get("X-Custom"))
}

func TestNewRequest_CustomHeader(t *testing.T) {
	a := modeladapter.New("https://example.com", modeladapter.Auth{Key: "k", Header: "x-api-key"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	assert.Equal(t, "k", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeaderWithScheme(t *testing.T) {
	a := modeladapter.New("https://example.com", modeladapter.Auth{Key: "k", Header: "X-Token", Scheme: "Token"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	assert.Equal(t, "Token k", req.Header.Get("X-Token"))
}

func TestNewRequest_NoKey(t *testing.T) {
	a := modeladapter.New("http://localhost:11434", modeladapter.Auth{}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/api/chat", nil)
	require.NoError(t, err)

	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestPostJSON_Success(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ping", in["msg"])

		_ = json.NewEncoder(w).Encode(map[string]string{"msg": "pong"})
	})

	var out map[string]string
	err := a.PostJSON(context.Background(), "/echo", map[string]string{"msg": "ping"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "pong", out["msg"])
}

func TestPostJSON_NilDest(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ignored"))
	})

	require.NoError(t, a.PostJSON(context.Background(), "/", map[string]string{}, nil))
}

func TestPostJSON_StatusError(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})

	err := a.PostJSON(context.Background(), "/", map[string]string{}, nil)

	var se *modeladapter.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "bad key")
	assert.True(t, modeladapter.IsAuthError(err))
}

func TestPostJSON_RateLimit(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	err := a.PostJSON(context.Background(), "/", map[string]string{}, nil)

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
	assert.Equal(t, "slow down", rle.Body)
	assert.False(t, modeladapter.IsAuthError(err))
}

func TestPostStream_ReturnsBody(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("data: hi\n\n"))
	})

	body, err := a.PostStream(context.Background(), "/", map[string]string{}, "text/event-stream")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: hi\n\n", string(raw))
}

func TestIsAuthError_Other(t *testing.T) {
	assert.False(t, modeladapter.IsAuthError(errors.New("boom")))
	assert.True(t, modeladapter.IsAuthError(&modeladapter.StatusError{StatusCode: http.StatusForbidden}))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(""))
	assert.Equal(t, 3*time.Second, modeladapter.ParseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("Mon, 02 Jan 2006 15:04:05 GMT"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, modeladapter.ParseRetryAfter(future), 50*time.Minute)
}

func TestRateLimitError_Message(t *testing.T) {
	assert.Equal(t, "rate limited: x", (&modeladapter.RateLimitError{Body: "x"}).Error())
	assert.Equal(t, "rate limited (retry after 2s): x", (&modeladapter.RateLimitError{Body: "x", RetryAfter: 2 * time.Second}).Error())
}
