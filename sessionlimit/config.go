/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package sessionlimit

import (
	"fmt"

	"github.com/acronis/go-llmkit/config"
)

const cfgDefaultKeyPrefix = "sessionLimit"

const cfgKeyMaxConcurrentSessions = "maxConcurrentSessions"

// Config represents a set of configuration parameters for the session Limiter.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxConcurrentSessions is the capacity of the limiter. Must be positive.
	MaxConcurrentSessions int `mapstructure:"maxConcurrentSessions" yaml:"maxConcurrentSessions" json:"maxConcurrentSessions"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the limiter in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrentSessions, DefaultMaxConcurrentSessions)
}

// Set sets limiter configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.MaxConcurrentSessions, err = dp.GetInt(cfgKeyMaxConcurrentSessions); err != nil {
		return err
	}
	if c.MaxConcurrentSessions <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrentSessions,
			fmt.Errorf("must be positive, got %d", c.MaxConcurrentSessions))
	}
	return nil
}

// NewLimiter creates a new Limiter from the Config.
func (c *Config) NewLimiter() (*Limiter, error) {
	return New(c.MaxConcurrentSessions)
}
