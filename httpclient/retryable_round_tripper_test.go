/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-llmkit/retry"
)

var instantBackoffPolicy = retry.PolicyFunc(func() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
})

func TestRetryableRoundTripper(t *testing.T) {
	t.Run("retries on 429 and 5xx", func(t *testing.T) {
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			switch reqCount.Add(1) {
			case 1:
				rw.WriteHeader(http.StatusTooManyRequests)
			case 2:
				rw.WriteHeader(http.StatusServiceUnavailable)
			default:
				rw.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			BackoffPolicy: instantBackoffPolicy,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 3, reqCount.Load())
	})

	t.Run("sets retry attempt header", func(t *testing.T) {
		var lastAttemptHeader atomic.Value
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			lastAttemptHeader.Store(r.Header.Get(RetryAttemptNumberHeader))
			if reqCount.Add(1) < 3 {
				rw.WriteHeader(http.StatusInternalServerError)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			BackoffPolicy: instantBackoffPolicy,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "2", lastAttemptHeader.Load())
	})

	t.Run("stops after max retry attempts", func(t *testing.T) {
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			reqCount.Add(1)
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 2,
			BackoffPolicy:    instantBackoffPolicy,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.EqualValues(t, 3, reqCount.Load())
	})

	t.Run("respects Retry-After header", func(t *testing.T) {
		var reqCount atomic.Int32
		var secondReqTime atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if reqCount.Add(1) == 1 {
				rw.Header().Set("Retry-After", "1")
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			secondReqTime.Store(time.Now())
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			BackoffPolicy: instantBackoffPolicy,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		start := time.Now()
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.GreaterOrEqual(t, secondReqTime.Load().(time.Time).Sub(start), time.Second)
	})

	t.Run("request body is resent on each attempt", func(t *testing.T) {
		const wantBody = `{"model": "gpt-4o", "messages": []}`
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotBody, readErr := io.ReadAll(r.Body)
			require.NoError(t, readErr)
			require.Equal(t, wantBody, string(gotBody))
			if reqCount.Add(1) < 3 {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			BackoffPolicy: instantBackoffPolicy,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Post(server.URL, "application/json", bytes.NewReader([]byte(wantBody)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 3, reqCount.Load())
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			BackoffPolicy: retry.PolicyFunc(func() backoff.BackOff {
				return backoff.NewConstantBackOff(time.Minute)
			}),
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		start := time.Now()
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("incorrect max retry attempts", func(t *testing.T) {
		_, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: -2,
		})
		require.EqualError(t, err, "incorrect max retry attempts")
	})
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	makeResp := func(retryAfter string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if retryAfter != "" {
			resp.Header.Set("Retry-After", retryAfter)
		}
		return resp
	}

	retryAfter, ok := parseRetryAfterFromResponse(makeResp("7"))
	require.True(t, ok)
	require.Equal(t, 7*time.Second, retryAfter)

	futureTime := time.Now().Add(time.Hour).UTC()
	retryAfter, ok = parseRetryAfterFromResponse(makeResp(futureTime.Format(time.RFC1123)))
	require.True(t, ok)
	require.InDelta(t, time.Hour, retryAfter, float64(time.Minute))

	_, ok = parseRetryAfterFromResponse(makeResp(""))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("-1"))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("not-a-date"))
	require.False(t, ok)
}

func TestDefaultCheckRetry(t *testing.T) {
	mkResp := func(code int) *http.Response {
		return &http.Response{StatusCode: code}
	}
	for _, tt := range []struct {
		status    int
		needRetry bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	} {
		needRetry, err := DefaultCheckRetry(context.Background(), mkResp(tt.status), nil, 0)
		require.NoError(t, err)
		require.Equal(t, tt.needRetry, needRetry, "status %s", strconv.Itoa(tt.status))
	}
}
