package test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/api/router"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/wallet/keystore"
)

// TestApproverToken is the approver token of test servers.
const TestApproverToken = "test-approver-token"

// DefaultTestConfig returns the environment config with in-memory storage, cheap scrypt
// parameters and TestApproverToken.
func DefaultTestConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()

	light := keystore.LightScryptParams()
	cfg.Storage.Driver = storage.DriverMemory
	cfg.Echo.ApproverToken = TestApproverToken
	cfg.Keystore.ScryptN = light.N
	cfg.Keystore.ScryptP = light.P
	cfg.Broker.SweepInterval = time.Second
	cfg.Watcher.PollInterval = 50 * time.Millisecond

	return cfg
}

// WithTestServer returns a fully configured server on memory storage and the test chaindata.
// The server is not started: workers run in the background and requests are served through
// PerformRequest or an httptest server around s.Echo.
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()

	WithTestServerConfigurable(t, DefaultTestConfig(), closure)
}

// WithTestServerConfigurable is WithTestServer with a custom config.
func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server)) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := api.InitNewServerWithStorage(cfg, storage.NewMemory(), NewTestChaindata(t), t)
	require.NoError(t, err, "failed to initialize test server")

	router.Init(s)

	require.NoError(t, s.StartWorkers(ctx))

	closure(s)

	// echo is managed by the test and never started
	s.Echo = nil
	if errs := s.Shutdown(ctx); len(errs) > 0 {
		t.Fatalf("failed to shutdown server: %v", errs)
	}
}

// PerformRequest runs a request against the echo router of s without a listener.
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body io.Reader, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if headers != nil {
		req.Header = headers
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)

	return res
}

// ApproverHeaders returns headers carrying the approver token of test servers.
func ApproverHeaders() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+TestApproverToken)

	return h
}
