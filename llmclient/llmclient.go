/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package llmclient wraps several LLM provider HTTP APIs behind a common Client interface.
// Outbound calls are bounded by the concurrent session limiter, throttled per model
// and optionally recorded in the dialogue history.
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/acronis/go-llmkit/history"
	"github.com/acronis/go-llmkit/httpclient"
	"github.com/acronis/go-llmkit/internal/libinfo"
	"github.com/acronis/go-llmkit/log"
	"github.com/acronis/go-llmkit/sessionlimit"
	"github.com/acronis/go-llmkit/throttle"
)

// Role is a role of a chat message author.
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request is a provider-independent chat completion request.
type Request struct {
	// Messages is a conversation to send. Must contain at least one message.
	Messages []Message

	// System is an optional system prompt.
	System string

	// MaxTokens overrides the client's default response token limit when positive.
	MaxTokens int

	// Temperature overrides the client's default sampling temperature when positive.
	Temperature float64

	// TopP overrides the client's default nucleus sampling parameter when positive.
	TopP float64

	// IncludeHistory prepends turns from the client's dialogue history to Messages.
	IncludeHistory bool

	// HistoryFilters select which history turns to include, e.g. history.FilterLastN(10).
	HistoryFilters []history.Filter

	// Metadata is attached to the user turn recorded in the history.
	Metadata map[string]interface{}
}

// Response is a provider-independent chat completion response.
type Response struct {
	// Text is the generated completion.
	Text string

	// Model is the model name reported by the provider.
	Model string

	// Usage reports token consumption. Zero when the provider doesn't report it.
	Usage Usage
}

// Client sends chat completion requests to an LLM provider.
type Client interface {
	// Chat sends a chat completion request and returns the generated response.
	Chat(ctx context.Context, req Request) (Response, error)

	// Provider returns the provider name, e.g. "anthropic".
	Provider() string

	// Model returns the configured model name.
	Model() string
}

// Supported LLM providers.
const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure_openai"
	ProviderGemini      = "gemini"
)

// Environment variables used as an API key fallback when Config.APIKey is empty.
const (
	EnvKeyAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	EnvKeyOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvKeyAzureOpenAIAPIKey = "AZURE_OPENAI_API_KEY"
	EnvKeyGoogleAPIKey      = "GOOGLE_API_KEY"
)

// Opts represents an options for constructing a Client.
type Opts struct {
	// SessionLimiter bounds the number of concurrent requests. May be shared by several clients.
	SessionLimiter *sessionlimit.Limiter

	// Throttler limits the request rate per model. May be shared by several clients.
	Throttler *throttle.Throttler

	// History records request/response turns when Request.IncludeHistory is used.
	History *history.History

	// Logger is used for logging. log.NewDisabledLogger() is used when nil.
	Logger log.FieldLogger

	// HTTPDelegate is the transport the provider HTTP client is built on.
	// http.DefaultTransport is used when nil.
	HTTPDelegate http.RoundTripper
}

// New creates a new Client for the given provider.
func New(providerName string, cfg *Config, opts Opts) (Client, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	var caller wireCaller
	var err error
	switch providerName {
	case ProviderAnthropic:
		caller, err = newAnthropicCaller(cfg, opts)
	case ProviderOpenAI:
		caller, err = newOpenAICaller(cfg, opts)
	case ProviderAzureOpenAI:
		caller, err = newAzureOpenAICaller(cfg, opts)
	case ProviderGemini:
		caller, err = newGeminiCaller(cfg, opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q, should be one of [%s %s %s %s]",
			providerName, ProviderAnthropic, ProviderOpenAI, ProviderAzureOpenAI, ProviderGemini)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", providerName, err)
	}
	return &client{
		providerName: providerName,
		model:        caller.modelName(),
		caller:       caller,
		limiter:      opts.SessionLimiter,
		throttler:    opts.Throttler,
		hist:         opts.History,
		logger:       opts.Logger,
		genDefaults:  cfg.genParams(),
	}, nil
}

// Must creates a new Client for the given provider and panics if any error occurs.
func Must(providerName string, cfg *Config, opts Opts) Client {
	c, err := New(providerName, cfg, opts)
	if err != nil {
		panic(err)
	}
	return c
}

// genParams carries resolved generation parameters.
type genParams struct {
	maxTokens   int
	temperature float64
	topP        float64
}

// wireCaller does a single provider API call. Implementations own the wire format.
type wireCaller interface {
	modelName() string
	call(ctx context.Context, messages []Message, system string, params genParams) (Response, error)
}

type client struct {
	providerName string
	model        string
	caller       wireCaller
	limiter      *sessionlimit.Limiter
	throttler    *throttle.Throttler
	hist         *history.History
	logger       log.FieldLogger
	genDefaults  genParams
}

// Provider returns the provider name.
func (c *client) Provider() string {
	return c.providerName
}

// Model returns the configured model name.
func (c *client) Model() string {
	return c.model
}

// Chat sends a chat completion request.
// A session slot is held for the whole call and released on all paths.
func (c *client) Chat(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("at least one message is required")
	}

	sessionID := uuid.NewString()
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, sessionID); err != nil {
			return Response{}, fmt.Errorf("acquire session: %w", err)
		}
		defer c.limiter.Release(sessionID)
	}

	if c.throttler != nil {
		if err := c.throttler.Wait(ctx, c.model); err != nil {
			return Response{}, fmt.Errorf("wait for throttling limit: %w", err)
		}
	}

	messages := req.Messages
	if req.IncludeHistory && c.hist != nil {
		turns := c.hist.Turns(req.HistoryFilters...)
		combined := make([]Message, 0, len(turns)+len(messages))
		for _, turn := range turns {
			combined = append(combined, Message{Role: Role(turn.Role), Content: turn.Content})
		}
		messages = append(combined, messages...)
	}

	params := c.genDefaults
	if req.MaxTokens > 0 {
		params.maxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		params.temperature = req.Temperature
	}
	if req.TopP > 0 {
		params.topP = req.TopP
	}

	resp, err := c.caller.call(ctx, messages, req.System, params)
	if err != nil {
		c.logger.Error("LLM request failed",
			log.String("provider", c.providerName), log.String("model", c.model),
			log.String("session_id", sessionID), log.Error(err))
		return Response{}, err
	}

	if c.hist != nil {
		c.hist.Add(string(RoleUser), req.Messages[len(req.Messages)-1].Content, req.Metadata)
		c.hist.Add(string(RoleAssistant), resp.Text, nil)
	}

	c.logger.Debug("LLM request succeeded",
		log.String("provider", c.providerName), log.String("model", c.model),
		log.String("session_id", sessionID),
		log.Int("input_tokens", resp.Usage.InputTokens), log.Int("output_tokens", resp.Usage.OutputTokens))
	return resp, nil
}

// resolveAPIKey returns the configured key or falls back to the environment variable.
func resolveAPIKey(cfgKey, envVar string) (string, error) {
	if cfgKey != "" {
		return cfgKey, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key is missing, configure it or set the %s environment variable", envVar)
}

func newProviderHTTPClient(cfg *Config, opts Opts, providerName string, auth httpclient.AuthProvider) (*http.Client, error) {
	clientCfg := cfg.Client
	if clientCfg == nil {
		clientCfg = httpclient.NewConfig()
	}
	return httpclient.NewWithOpts(clientCfg, httpclient.Opts{
		UserAgent:   libinfo.UserAgent(),
		RequestType: providerName,
		Delegate:    opts.HTTPDelegate,
		Auth:        auth,
		Logger:      opts.Logger,
	})
}
