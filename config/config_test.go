/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testServiceCfg struct {
	Name        string
	Timeout     time.Duration
	MaxBodySize ByteSize

	keyPrefix string
}

func (c *testServiceCfg) KeyPrefix() string {
	return c.keyPrefix
}

func (c *testServiceCfg) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("name", "default-name")
	dp.SetDefault("timeout", "30s")
}

func (c *testServiceCfg) Set(dp DataProvider) error {
	var err error
	if c.Name, err = dp.GetString("name"); err != nil {
		return err
	}
	if c.Timeout, err = dp.GetDuration("timeout"); err != nil {
		return err
	}
	if c.MaxBodySize, err = dp.GetByteSize("maxBodySize"); err != nil {
		return err
	}
	return nil
}

func TestLoaderLoadFromReader(t *testing.T) {
	t.Run("values from yaml", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
service:
  name: assistant
  timeout: 5s
  maxBodySize: 1MB
`)
		cfg := &testServiceCfg{keyPrefix: "service"}
		err := NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "assistant", cfg.Name)
		require.Equal(t, 5*time.Second, cfg.Timeout)
		require.Equal(t, ByteSize(1024*1024), cfg.MaxBodySize)
	})

	t.Run("defaults are used for missing values", func(t *testing.T) {
		cfg := &testServiceCfg{keyPrefix: "service"}
		err := NewDefaultLoader("").LoadFromReader(bytes.NewBufferString("{}"), DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, "default-name", cfg.Name)
		require.Equal(t, 30*time.Second, cfg.Timeout)
	})

	t.Run("env var overrides file value", func(t *testing.T) {
		t.Setenv("LLMKIT_SERVICE_NAME", "from-env")
		cfgData := bytes.NewBufferString(`
service:
  name: from-file
`)
		cfg := &testServiceCfg{keyPrefix: "service"}
		err := NewDefaultLoader("llmkit").LoadFromReader(cfgData, DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.Name)
	})

	t.Run("parsing error mentions the key", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
service:
  timeout: not-a-duration
`)
		cfg := &testServiceCfg{keyPrefix: "service"}
		err := NewDefaultLoader("").LoadFromReader(cfgData, DataTypeYAML, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "service.timeout")
	})
}

func TestViperAdapterGetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("provider", "openai")

	got, err := va.GetStringFromSet("provider", []string{"openai", "anthropic"}, false)
	require.NoError(t, err)
	require.Equal(t, "openai", got)

	_, err = va.GetStringFromSet("provider", []string{"anthropic", "gemini"}, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown value "openai"`)
}

func TestByteSizeUnmarshal(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		var v struct {
			Size ByteSize `yaml:"size"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("size: 250MB"), &v))
		require.Equal(t, ByteSize(250*1024*1024), v.Size)

		require.NoError(t, yaml.Unmarshal([]byte("size: 1024"), &v))
		require.Equal(t, ByteSize(1024), v.Size)

		require.Error(t, yaml.Unmarshal([]byte("size: many"), &v))
	})

	t.Run("json", func(t *testing.T) {
		var v struct {
			Size ByteSize `json:"size"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"size":"1KB"}`), &v))
		require.Equal(t, ByteSize(1024), v.Size)

		require.Error(t, json.Unmarshal([]byte(`{"size":"-1"}`), &v))
	})
}
