/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-llmkit/config"
	"github.com/acronis/go-llmkit/log"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := log.NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, log.LevelInfo, cfg.Level)
		require.Equal(t, log.FormatJSON, cfg.Format)
		require.Equal(t, log.OutputStdout, cfg.Output)
		require.Equal(t, config.ByteSize(log.DefaultFileRotationMaxSizeBytes), cfg.File.Rotation.MaxSize)
		require.Equal(t, log.DefaultFileRotationMaxBackups, cfg.File.Rotation.MaxBackups)
		require.False(t, cfg.Masking.Enabled)
		require.True(t, cfg.Masking.UseDefaultRules)
	})

	t.Run("read values", func(t *testing.T) {
		yamlData := []byte(`
log:
  level: debug
  format: text
  output: file
  file:
    path: /var/log/llmkit.log
    rotation:
      compress: true
      maxSize: 500M
      maxBackups: 42
      maxAgeDays: 7
  addCaller: true
  masking:
    enabled: true
    rules:
      - field: session_token
        formats: [json, urlencoded]
`)
		cfg := log.NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, log.LevelDebug, cfg.Level)
		require.Equal(t, log.FormatText, cfg.Format)
		require.Equal(t, log.OutputFile, cfg.Output)
		require.Equal(t, "/var/log/llmkit.log", cfg.File.Path)
		require.True(t, cfg.File.Rotation.Compress)
		require.Equal(t, config.ByteSize(500*1024*1024), cfg.File.Rotation.MaxSize)
		require.Equal(t, 42, cfg.File.Rotation.MaxBackups)
		require.Equal(t, 7, cfg.File.Rotation.MaxAgeDays)
		require.True(t, cfg.AddCaller)
		require.True(t, cfg.Masking.Enabled)
		require.Equal(t, []log.MaskingRuleConfig{
			{
				Field:   "session_token",
				Formats: []log.FieldMaskFormat{log.FieldMaskFormatJSON, log.FieldMaskFormatURLEncoded},
			},
		}, cfg.Masking.Rules)
	})

	t.Run("invalid level", func(t *testing.T) {
		yamlData := []byte(`
log:
  level: verbose
`)
		cfg := log.NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.EqualError(t, err,
			`log.level: unknown value "verbose", should be one of [error warn info debug]`)
	})

	t.Run("file output requires path", func(t *testing.T) {
		yamlData := []byte(`
log:
  output: file
`)
		cfg := log.NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.ErrorContains(t, err, "log.file.path")
	})
}
