/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewRateLimitingRoundTripperWithOpts(t *testing.T) {
	t.Run("rate limit must be positive", func(t *testing.T) {
		_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 0, RateLimitingRoundTripperOpts{})
		require.EqualError(t, err, "rate limit must be positive")
	})

	t.Run("burst must be positive", func(t *testing.T) {
		_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 10, RateLimitingRoundTripperOpts{Burst: -1})
		require.EqualError(t, err, "burst must be positive")
	})

	t.Run("slack percent range", func(t *testing.T) {
		_, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 10, RateLimitingRoundTripperOpts{
			Adaptation: RateLimitingRoundTripperAdaptation{ResponseHeaderName: "X-RateLimit", SlackPercent: 101},
		})
		require.EqualError(t, err, "slack percent must be in range [0..100]")
	})

	t.Run("defaults", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 10)
		require.NoError(t, err)
		require.Equal(t, DefaultRateLimitingBurst, rt.Burst)
		require.Equal(t, DefaultRateLimitingWaitTimeout, rt.WaitTimeout)
	})
}

func TestRateLimitingRoundTripper(t *testing.T) {
	t.Run("delays requests over the limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 10)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		start := time.Now()
		for i := 0; i < 4; i++ {
			resp, respErr := client.Get(server.URL)
			require.NoError(t, respErr)
			resp.Body.Close()
		}
		// 10 rps with burst 1 means 3 of 4 requests wait 100ms each.
		require.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("adapts limit from response header", func(t *testing.T) {
		const headerName = "X-RateLimit-Limit-Requests"
		limitValue := "4"
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set(headerName, limitValue)
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 100, RateLimitingRoundTripperOpts{
			Adaptation: RateLimitingRoundTripperAdaptation{ResponseHeaderName: headerName, SlackPercent: 25},
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
		// 4 with 25% slack is 3.
		require.Equal(t, rate.Limit(3), rt.rateLimiter.Limit())

		// Limit is restored when the header disappears.
		limitValue = ""
		resp, err = client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, rate.Limit(100), rt.rateLimiter.Limit())
	})

	t.Run("reported limit above the configured one is ignored", func(t *testing.T) {
		const headerName = "X-RateLimit-Limit-Requests"
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set(headerName, strconv.Itoa(10000))
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 50, RateLimitingRoundTripperOpts{
			Adaptation: RateLimitingRoundTripperAdaptation{ResponseHeaderName: headerName},
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, rate.Limit(50), rt.rateLimiter.Limit())
	})
}
