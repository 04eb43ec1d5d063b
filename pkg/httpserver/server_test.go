package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingcore/pkg/httpserver"
)

func startServer(t *testing.T, ctx context.Context, srv *httpserver.Server, started <-chan net.Addr, h http.Handler) (string, <-chan error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, h) }()

	select {
	case addr := <-started:
		return "http://" + addr.String(), done
	case err := <-done:
		require.FailNow(t, "server exited early", "%v", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "server did not start")
	}
	return "", done
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	started := make(chan net.Addr, 1)
	var stopped atomic.Bool
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithShutdownTimeout(time.Second),
		httpserver.WithStartHook(func(a net.Addr) { started <- a }),
		httpserver.WithStopHook(func() { stopped.Store(true) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url, done := startServer(t, ctx, srv, started, okHandler())
	resp, err := http.Get(url)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not finish")
	}
	assert.True(t, stopped.Load())
	require.NoError(t, srv.Shutdown(context.Background()), "repeated shutdown is a no-op")
}

func TestRun_ManualShutdown(t *testing.T) {
	t.Parallel()
	started := make(chan net.Addr, 1)
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(a net.Addr) { started <- a }),
	)

	_, done := startServer(t, context.Background(), srv, started, okHandler())
	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not finish")
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	err := httpserver.New(httpserver.WithAddr("127.0.0.1:-1")).Run(context.Background(), okHandler())
	assert.ErrorIs(t, err, httpserver.ErrStart)

	started := make(chan net.Addr, 1)
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(a net.Addr) { started <- a }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, ctx, srv, started, okHandler())

	err = srv.Run(ctx, okHandler())
	assert.ErrorIs(t, err, httpserver.ErrStart, "second Run is rejected")
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithReadTimeout(0) })
	assert.Panics(t, func() { httpserver.WithShutdownTimeout(-time.Second) })
	assert.Panics(t, func() { httpserver.WithStartHook(nil) })
	assert.NotPanics(t, func() { httpserver.New(httpserver.WithLogger(nil)) })
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, httpserver.NewFromConfig(httpserver.Config{}))
	assert.NotNil(t, httpserver.NewFromConfig(httpserver.Config{Addr: "127.0.0.1:0", ReadTimeout: time.Second}))
}

func TestHealthHandlers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpserver.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ok := httpserver.Check{Name: "db", Fn: func(context.Context) error { return nil }}
	bad := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("down") }}

	rec = httptest.NewRecorder()
	httpserver.ReadinessHandler(nil, time.Second, ok)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	httpserver.ReadinessHandler(nil, time.Second, ok, bad)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["db"])
	assert.Equal(t, "failing", body.Checks["redis"])
	assert.NotContains(t, rec.Body.String(), "down")
}
