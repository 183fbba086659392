package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncpoller/api/internal/config"
)

func newTestClient(baseURL string, timeoutSecs int) *WebhookClient {
	return NewWebhookClient(&config.WebhookConfig{
		BaseURL:   baseURL,
		Path:      "webhook/assistant",
		Timeout:   timeoutSecs,
		AuthToken: "tok",
		Headers:   map[string]string{"X-Source": "voice"},
		Workflows: map[string]string{"Flights": "/webhook/flights"},
	}, zerolog.Nop())
}

func TestResolveTarget(t *testing.T) {
	c := newTestClient("http://n8n.local:5678/", 5)

	target, err := c.ResolveTarget("")
	require.NoError(t, err)
	assert.Equal(t, "http://n8n.local:5678/webhook/assistant", target)

	target, err = c.ResolveTarget("flights")
	require.NoError(t, err)
	assert.Equal(t, "http://n8n.local:5678/webhook/flights", target)

	_, err = c.ResolveTarget("hotels")
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
	assert.True(t, c.IsConfigured())
}

func TestResolveTarget_NotConfigured(t *testing.T) {
	c := NewWebhookClient(&config.WebhookConfig{BaseURL: "http://n8n.local"}, zerolog.Nop())
	_, err := c.ResolveTarget("")
	assert.ErrorIs(t, err, ErrTargetNotConfigured)
	assert.False(t, c.IsConfigured())

	c = NewWebhookClient(&config.WebhookConfig{Path: "/hook"}, zerolog.Nop())
	_, err = c.ResolveTarget("")
	assert.ErrorIs(t, err, ErrTargetNotConfigured)
}

func TestCall_PostCarriesTextAndCorrelation(t *testing.T) {
	var (
		gotQuery  map[string]string
		gotBody   map[string]string
		gotHeader http.Header
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		gotQuery = map[string]string{"q": r.URL.Query().Get("q"), "cid": r.URL.Query().Get("cid")}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	target, err := c.ResolveTarget("")
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), &CallRequest{URL: target, Method: "post", Text: "book a flight", CorrelationID: "cid-1"})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"text":"ok"}`, string(resp.Body))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "book a flight", gotQuery["q"])
	assert.Equal(t, "cid-1", gotQuery["cid"])
	assert.Equal(t, map[string]string{
		"keywords":      "book a flight",
		"message":       "book a flight",
		"text":          "book a flight",
		"correlationId": "cid-1",
	}, gotBody)
	assert.Equal(t, "Bearer tok", gotHeader.Get("Authorization"))
	assert.Equal(t, "voice", gotHeader.Get("X-Source"))
	assert.Equal(t, "cid-1", gotHeader.Get("X-Correlation-Id"))
}

func TestCall_GetHasNoBody(t *testing.T) {
	var contentLength int64 = -2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "weather", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("sunny"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	target, _ := c.ResolveTarget("")

	resp, err := c.Call(context.Background(), &CallRequest{URL: target, Method: "GET", Text: "weather", CorrelationID: "cid"})
	require.NoError(t, err)
	assert.Equal(t, "sunny", string(resp.Body))
	assert.Equal(t, int64(0), contentLength)
}

func TestCall_Non2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	target, _ := c.ResolveTarget("")

	resp, err := c.Call(context.Background(), &CallRequest{URL: target, Text: "x", CorrelationID: "cid"})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCall_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL, 1)
	c.timeout = 50 * time.Millisecond
	target, _ := c.ResolveTarget("")

	_, err := c.Call(context.Background(), &CallRequest{URL: target, Text: "x", CorrelationID: "cid"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCall_ParentDeadlineIsNotAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv.URL, 5)
	target, _ := c.ResolveTarget("")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, &CallRequest{URL: target, Text: "x", CorrelationID: "cid"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestCall_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(url, 5)
	target, _ := c.ResolveTarget("")

	_, err := c.Call(context.Background(), &CallRequest{URL: target, Text: "x", CorrelationID: "cid"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestCall_RejectsUnsupportedMethod(t *testing.T) {
	c := newTestClient("http://n8n.local", 5)
	_, err := c.Call(context.Background(), &CallRequest{URL: "http://n8n.local/x", Method: "DELETE"})
	require.Error(t, err)
}
