package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/internal/certs"
	"sentinel/internal/config"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            "0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

var pong = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "pong")
})

func startServer(t *testing.T, bundle certs.Result) (*Server, context.CancelFunc, chan error) {
	t.Helper()

	srv := New(testConfig(), pong, bundle, zap.NewNop())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	return srv, cancel, done
}

func stopServer(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_PlainHTTP(t *testing.T) {
	srv, cancel, done := startServer(t, certs.Result{Mode: certs.ModeHTTPOnly})
	assert.Equal(t, "http", srv.Scheme())

	resp, err := http.Get(fmt.Sprintf("http://%s/", srv.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	stopServer(t, cancel, done)
}

func TestRun_HTTPS(t *testing.T) {
	bundle := certs.NewProvisioner(certs.Options{Dir: t.TempDir()}, nil, zap.NewNop()).Provision()
	require.True(t, bundle.Secure())

	srv, cancel, done := startServer(t, bundle)
	assert.Equal(t, "https", srv.Scheme())

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("https://%s/", srv.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
	require.NotNil(t, resp.TLS)
	assert.Equal(t, "localhost", resp.TLS.PeerCertificates[0].Subject.CommonName)

	// Plain HTTP against the TLS listener is refused.
	plain, err := http.Get(fmt.Sprintf("http://%s/", srv.Addr()))
	if err == nil {
		assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
		plain.Body.Close()
	}

	stopServer(t, cancel, done)
}

func TestListen_AddressInUse(t *testing.T) {
	first := New(testConfig(), pong, certs.Result{}, zap.NewNop())
	require.NoError(t, first.Listen())
	defer first.listener.Close()

	cfg := testConfig()
	_, port, err := net.SplitHostPort(first.Addr().String())
	require.NoError(t, err)
	cfg.Port = port

	second := New(cfg, pong, certs.Result{}, zap.NewNop())
	assert.Error(t, second.Run(context.Background()))
}

func TestNew_DefaultShutdownTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 0

	srv := New(cfg, pong, certs.Result{}, zap.NewNop())
	assert.Equal(t, defaultShutdownTimeout, srv.shutdownTimeout)
	assert.Nil(t, srv.Addr())
}
