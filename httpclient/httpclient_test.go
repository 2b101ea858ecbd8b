/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-llmkit/config"
)

func TestNewWithOpts(t *testing.T) {
	var reqCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "llmkit/1.0", r.Header.Get("User-Agent"))
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		if reqCount.Add(1) == 1 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	yamlData := []byte(`
retries:
  enabled: true
  maxAttempts: 3
  policy:
    strategy: constant
    constantBackoffInterval: 1ms
rateLimits:
  enabled: true
  limit: 100
  burst: 10
`)
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg))

	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   "llmkit/1.0",
		RequestType: "completion",
		Auth:        BearerAuthProvider{Token: "sk-test"},
	})
	require.NoError(t, err)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, reqCount.Load())
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, DefaultClientWaitTimeout, cfg.Timeout)
		require.False(t, cfg.Retries.Enabled)
		require.False(t, cfg.RateLimits.Enabled)
	})

	t.Run("read values", func(t *testing.T) {
		yamlData := []byte(`
client:
  timeout: 90s
  retries:
    enabled: true
    maxAttempts: 7
    policy:
      strategy: exponential
      exponentialBackoffInitialInterval: 2s
      exponentialBackoffMultiplier: 3
  rateLimits:
    enabled: true
    limit: 15
    burst: 3
    waitTimeout: 25s
  logger:
    enabled: true
    mode: failed
    slowRequestThreshold: 5s
  metrics:
    enabled: true
`)
		cfg := NewConfigWithKeyPrefix("client")
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 7, cfg.Retries.MaxAttempts)
		require.Equal(t, RetryPolicyExponential, cfg.Retries.Policy.Strategy)
		require.Equal(t, 3.0, cfg.Retries.Policy.ExponentialBackoffMultiplier)
		require.NotNil(t, cfg.Retries.GetPolicy())
		require.Equal(t, 15, cfg.RateLimits.Limit)
		require.Equal(t, 3, cfg.RateLimits.Burst)
		require.Equal(t, "failed", cfg.Log.Mode)
		require.True(t, cfg.Metrics.Enabled)
	})

	t.Run("invalid retry strategy", func(t *testing.T) {
		yamlData := []byte(`
retries:
  enabled: true
  maxAttempts: 1
  policy:
    strategy: fibonacci
`)
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.ErrorContains(t, err, "client retry policy must be one of")
	})
}
