/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle provides request rate limiting for LLM provider calls.
// Limits are described by rules: each rule has a list of glob patterns for model
// names and a rate like "60/m". The first matching rule decides the limit, models
// not matched by any rule are not throttled. Two algorithms are available, leaky
// bucket (GCRA) and sliding window.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-llmkit/config"
)

// withTextUnmarshalerHook makes rule decoding respect encoding.TextUnmarshaler,
// which is needed to parse Rate values like "100/m".
func withTextUnmarshalerHook(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Rate-limiting algorithms.
const (
	AlgLeakyBucket   = "leaky_bucket"
	AlgSlidingWindow = "sliding_window"
)

// DefaultMaxKeys is the maximum number of tracked limiter keys per rule when it's not configured.
const DefaultMaxKeys = 1000

// RuleConfig describes a single throttling rule.
type RuleConfig struct {
	// Models is a list of glob patterns for model names, e.g. "gpt-4*" or "claude-*".
	// Empty list matches all models.
	Models []string `mapstructure:"models" yaml:"models" json:"models"`

	// Rate is the maximum request rate, e.g. "10/s", "100/m", "1000/h".
	Rate Rate `mapstructure:"rate" yaml:"rate" json:"rate"`

	// Burst allows temporary spikes over the rate. Matters only for the leaky bucket algorithm.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// Alg is a rate limiting algorithm, "leaky_bucket" (default) or "sliding_window".
	Alg string `mapstructure:"alg" yaml:"alg" json:"alg"`

	// MaxKeys is the maximum number of tracked keys. DefaultMaxKeys is used when 0.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
}

// Validate validates the throttling rule.
func (c *RuleConfig) Validate() error {
	if c.Rate.Count <= 0 {
		return fmt.Errorf("rate must be specified and positive")
	}
	switch c.Alg {
	case "", AlgLeakyBucket, AlgSlidingWindow:
	default:
		return fmt.Errorf("unknown rate limit alg %q, should be one of [%s, %s]", c.Alg, AlgLeakyBucket, AlgSlidingWindow)
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must not be negative")
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("max keys must not be negative")
	}
	return nil
}

type rule struct {
	matchers []func(s string) bool
	limiter  Limiter
}

func (r *rule) matches(model string) bool {
	if len(r.matchers) == 0 {
		return true
	}
	for _, match := range r.matchers {
		if match(model) {
			return true
		}
	}
	return false
}

// Throttler applies throttling rules to LLM requests by model name.
type Throttler struct {
	rules []rule
}

// New creates a new Throttler from the list of rules.
func New(rules []RuleConfig) (*Throttler, error) {
	t := &Throttler{rules: make([]rule, 0, len(rules))}
	for i := range rules {
		ruleCfg := &rules[i]
		if err := ruleCfg.Validate(); err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i, err)
		}

		maxKeys := ruleCfg.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultMaxKeys
		}

		var lim Limiter
		var err error
		switch ruleCfg.Alg {
		case AlgSlidingWindow:
			lim, err = NewSlidingWindowLimiter(ruleCfg.Rate, maxKeys)
		default:
			lim, err = NewLeakyBucketLimiter(ruleCfg.Rate, ruleCfg.Burst, maxKeys)
		}
		if err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i, err)
		}

		matchers := make([]func(s string) bool, 0, len(ruleCfg.Models))
		for _, pattern := range ruleCfg.Models {
			matchers = append(matchers, glob.Compile(pattern))
		}
		t.rules = append(t.rules, rule{matchers: matchers, limiter: lim})
	}
	return t, nil
}

// Must creates a new Throttler from the list of rules and panics if any error occurs.
func Must(rules []RuleConfig) *Throttler {
	t, err := New(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Allow checks if a request for the given model should be allowed right now.
// The first rule whose model patterns match is applied. With no matching rule the request is allowed.
func (t *Throttler) Allow(ctx context.Context, model string) (allow bool, retryAfter time.Duration, err error) {
	for i := range t.rules {
		if t.rules[i].matches(model) {
			return t.rules[i].limiter.Allow(ctx, model)
		}
	}
	return true, 0, nil
}

// Wait blocks until a request for the given model is allowed or ctx is done.
func (t *Throttler) Wait(ctx context.Context, model string) error {
	for {
		allow, retryAfter, err := t.Allow(ctx, model)
		if err != nil {
			return err
		}
		if allow {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = time.Millisecond
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyEnabled = "enabled"
	cfgKeyRules   = "rules"
)

// Config represents a set of configuration parameters for throttling.
type Config struct {
	Enabled bool         `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Rules   []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

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
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {}

// Set sets throttling configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}
	if err = dp.UnmarshalKey(cfgKeyRules, &c.Rules, withTextUnmarshalerHook); err != nil {
		return err
	}
	for i := range c.Rules {
		if err = c.Rules[i].Validate(); err != nil {
			return dp.WrapKeyErr(cfgKeyRules, err)
		}
	}
	return nil
}

// NewThrottler creates a new Throttler from the Config.
// A disabled config produces a Throttler that allows everything.
func (c *Config) NewThrottler() (*Throttler, error) {
	if !c.Enabled {
		return New(nil)
	}
	return New(c.Rules)
}
