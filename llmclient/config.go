/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package llmclient

import (
	"fmt"

	"github.com/acronis/go-llmkit/config"
	"github.com/acronis/go-llmkit/httpclient"
)

// Default generation parameters.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

// Default models per provider.
const (
	DefaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	DefaultOpenAIModel      = "gpt-4o-2024-11-20"
	DefaultAzureOpenAIModel = "gpt-4o-2024-11-20"
	DefaultGeminiModel      = "gemini-2.0-flash-exp"
)

// Default provider API settings.
const (
	DefaultAnthropicBaseURL     = "https://api.anthropic.com"
	DefaultAnthropicAPIVersion  = "2023-06-01"
	DefaultOpenAIBaseURL        = "https://api.openai.com"
	DefaultAzureAPIVersion      = "2024-02-15-preview"
	DefaultGeminiBaseURL        = "https://generativelanguage.googleapis.com"
)

const cfgDefaultKeyPrefix = "llm"

const (
	cfgKeyProvider        = "provider"
	cfgKeyModel           = "model"
	cfgKeyAPIKey          = "apiKey"
	cfgKeyBaseURL         = "baseUrl"
	cfgKeyAPIVersion      = "apiVersion"
	cfgKeyAzureEndpoint   = "azureEndpoint"
	cfgKeyAzureDeployment = "azureDeployment"
	cfgKeyMaxTokens       = "maxTokens"
	cfgKeyTemperature     = "temperature"
	cfgKeyTopP            = "topP"
)

// Config represents a set of configuration parameters for an LLM client.
type Config struct {
	// Provider is the provider name used by NewFromConfig.
	Provider string `mapstructure:"provider" yaml:"provider" json:"provider"`

	// Model is the model name (deployment name for Azure OpenAI).
	// A provider-specific default is used when empty.
	Model string `mapstructure:"model" yaml:"model" json:"model"`

	// APIKey is the provider API key. Falls back to the provider's environment variable.
	APIKey string `mapstructure:"apiKey" yaml:"apiKey" json:"apiKey"`

	// BaseURL overrides the provider API base URL.
	BaseURL string `mapstructure:"baseUrl" yaml:"baseUrl" json:"baseUrl"`

	// APIVersion is the provider API version (Anthropic and Azure OpenAI).
	APIVersion string `mapstructure:"apiVersion" yaml:"apiVersion" json:"apiVersion"`

	// AzureEndpoint is the Azure OpenAI resource endpoint URL.
	AzureEndpoint string `mapstructure:"azureEndpoint" yaml:"azureEndpoint" json:"azureEndpoint"`

	// AzureDeployment is the Azure OpenAI deployment name. Model is used when empty.
	AzureDeployment string `mapstructure:"azureDeployment" yaml:"azureDeployment" json:"azureDeployment"`

	MaxTokens   int     `mapstructure:"maxTokens" yaml:"maxTokens" json:"maxTokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	TopP        float64 `mapstructure:"topP" yaml:"topP" json:"topP"`

	// Client configures the underlying HTTP client (timeouts, retries, rate limits, logging).
	Client *httpclient.Config `mapstructure:"client" yaml:"client" json:"client"`

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
	return &Config{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		Client:      httpclient.NewConfig(),
		keyPrefix:   opts.keyPrefix,
	}
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
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxTokens, DefaultMaxTokens)
	dp.SetDefault(cfgKeyTemperature, DefaultTemperature)
	dp.SetDefault(cfgKeyTopP, DefaultTopP)
	if c.Client == nil {
		c.Client = httpclient.NewConfig()
	}
	c.Client.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, "client"))
}

// Set sets LLM client configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Provider, err = dp.GetString(cfgKeyProvider); err != nil {
		return err
	}
	if c.Model, err = dp.GetString(cfgKeyModel); err != nil {
		return err
	}
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if c.APIVersion, err = dp.GetString(cfgKeyAPIVersion); err != nil {
		return err
	}
	if c.AzureEndpoint, err = dp.GetString(cfgKeyAzureEndpoint); err != nil {
		return err
	}
	if c.AzureDeployment, err = dp.GetString(cfgKeyAzureDeployment); err != nil {
		return err
	}
	if c.MaxTokens, err = dp.GetInt(cfgKeyMaxTokens); err != nil {
		return err
	}
	if c.MaxTokens <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxTokens, fmt.Errorf("must be positive"))
	}
	if c.Temperature, err = dp.GetFloat64(cfgKeyTemperature); err != nil {
		return err
	}
	if c.TopP, err = dp.GetFloat64(cfgKeyTopP); err != nil {
		return err
	}
	if c.Client == nil {
		c.Client = httpclient.NewConfig()
	}
	return c.Client.Set(config.NewKeyPrefixedDataProvider(dp, "client"))
}

// NewFromConfig creates a new Client for the provider named in the Config.
func NewFromConfig(cfg *Config, opts Opts) (Client, error) {
	return New(cfg.Provider, cfg, opts)
}

// genParams resolves generation parameters, zero values mean "use the default".
func (c *Config) genParams() genParams {
	params := genParams{maxTokens: c.MaxTokens, temperature: c.Temperature, topP: c.TopP}
	if params.maxTokens <= 0 {
		params.maxTokens = DefaultMaxTokens
	}
	if params.temperature == 0 {
		params.temperature = DefaultTemperature
	}
	if params.topP == 0 {
		params.topP = DefaultTopP
	}
	return params
}
