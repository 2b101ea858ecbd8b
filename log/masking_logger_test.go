/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-llmkit/log"
	"github.com/acronis/go-llmkit/log/logtest"
)

func TestMaskingLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	maskingLog := log.NewMaskingLogger(recorder, log.NewMasker(log.DefaultMasks))

	checkRecordedLogAndReset := func(wantText string, wantLevel log.Level, wantFields ...log.Field) {
		t.Helper()
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		require.Equal(t, wantText, entries[0].Text)
		require.Equal(t, wantLevel, entries[0].Level)
		require.ElementsMatch(t, wantFields, entries[0].Fields)
		recorder.Reset()
	}

	t.Run("mask message text", func(t *testing.T) {
		maskingLog.Info("request headers: x-api-key: sk-ant-secret\r\n")
		checkRecordedLogAndReset("request headers: x-api-key: ***\r\n", log.LevelInfo)
	})

	t.Run("mask string field", func(t *testing.T) {
		maskingLog.Debug("provider request",
			log.String("body", `{"model": "claude-sonnet-4", "api_key": "sk-secret"}`))
		checkRecordedLogAndReset("provider request", log.LevelDebug,
			log.String("body", `{"model": "claude-sonnet-4", "api_key": "***"}`))
	})

	t.Run("mask bytes field", func(t *testing.T) {
		maskingLog.Warn("dump", log.Bytes("raw", []byte("Authorization: Bearer sk-secret\r\n")))
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		field, found := entries[0].FindField("raw")
		require.True(t, found)
		require.Equal(t, "Authorization: ***\r\n", string(field.Bytes))
		recorder.Reset()
	})

	t.Run("mask error field", func(t *testing.T) {
		maskingLog.Error("request failed",
			log.Error(&urlError{"https://generativelanguage.googleapis.com/v1beta/models?key=AIzaSecret"}))
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		field, found := entries[0].FindField("error")
		require.True(t, found)
		maskedErr, ok := field.Any.(error)
		require.True(t, ok)
		require.Equal(t,
			"request to https://generativelanguage.googleapis.com/v1beta/models?key=*** failed",
			maskedErr.Error())
		recorder.Reset()
	})

	t.Run("fields without secrets are untouched", func(t *testing.T) {
		maskingLog.Info("session acquired", log.String("session_id", "a1b2c3"), log.Int("queue_len", 2))
		checkRecordedLogAndReset("session acquired", log.LevelInfo,
			log.String("session_id", "a1b2c3"), log.Int("queue_len", 2))
	})

	t.Run("with returns masking logger", func(t *testing.T) {
		subLog := maskingLog.With(log.String("token", "access_token=sk-plain-field-value"))
		subLog.Info("sub logger message")
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		field, found := entries[0].FindField("token")
		require.True(t, found)
		require.Equal(t, "access_token=***", string(field.Bytes))
		recorder.Reset()
	})
}

type urlError struct {
	url string
}

func (e *urlError) Error() string {
	return "request to " + e.url + " failed"
}
