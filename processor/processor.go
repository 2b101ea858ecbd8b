/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package processor orchestrates prompt rendering, LLM calls and JSON response parsing.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/acronis/go-llmkit/history"
	"github.com/acronis/go-llmkit/llmclient"
	"github.com/acronis/go-llmkit/log"
	"github.com/acronis/go-llmkit/prompt"
	"github.com/acronis/go-llmkit/retry"
)

// DefaultMaxFixAttempts is the number of attempts to repair malformed JSON
// by re-asking the model when it's not configured.
const DefaultMaxFixAttempts = 3

// controlCharsRegexp matches control characters that models occasionally leave
// inside JSON payloads and that break unmarshaling.
var controlCharsRegexp = regexp.MustCompile(`[\x00-\x1F\x7F]`)

// Processor processes requests through an LLM client using managed prompts.
type Processor struct {
	client         llmclient.Client
	prompts        *prompt.Manager
	logger         log.FieldLogger
	fixPolicy      retry.Policy
	batchPolicy    retry.Policy
	maxFixAttempts int
}

// Opts represents an options for the Processor.
type Opts struct {
	// Logger is used for logging. log.NewDisabledLogger() is used when nil.
	Logger log.FieldLogger

	// MaxFixAttempts bounds the JSON repair loop. DefaultMaxFixAttempts is used when 0.
	MaxFixAttempts int

	// FixPolicy is a backoff policy for the JSON repair loop.
	// Constant backoff without delay is used when nil.
	FixPolicy retry.Policy

	// BatchPolicy is a backoff policy for failed batches in BatchProcess.
	// Exponential backoff with max_retries from the prompt configuration is used when nil.
	BatchPolicy retry.Policy
}

// New creates a new Processor.
func New(client llmclient.Client, prompts *prompt.Manager) (*Processor, error) {
	return NewWithOpts(client, prompts, Opts{})
}

// NewWithOpts is a more configurable version of the New.
func NewWithOpts(client llmclient.Client, prompts *prompt.Manager, opts Opts) (*Processor, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if prompts == nil {
		return nil, fmt.Errorf("prompt manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MaxFixAttempts == 0 {
		opts.MaxFixAttempts = DefaultMaxFixAttempts
	}
	if opts.FixPolicy == nil {
		opts.FixPolicy = retry.NewConstantBackoffPolicy(0, opts.MaxFixAttempts)
	}
	return &Processor{
		client:         client,
		prompts:        prompts,
		logger:         opts.Logger,
		fixPolicy:      opts.FixPolicy,
		batchPolicy:    opts.BatchPolicy,
		maxFixAttempts: opts.MaxFixAttempts,
	}, nil
}

// ProcessOption overrides prompt configuration for a single call.
type ProcessOption = prompt.BundleOption

// WithResponseType overrides the response type from the prompt configuration.
func WithResponseType(rt prompt.ResponseType) ProcessOption {
	return prompt.WithResponseType(rt)
}

// WithCustomSchema overrides the custom schema from the prompt configuration.
func WithCustomSchema(schema map[string]interface{}) ProcessOption {
	return prompt.WithCustomSchema(schema)
}

// Process renders the prompt under the key with the components as template
// variables, sends it to the LLM and returns the raw response text.
func (p *Processor) Process(
	ctx context.Context, key string, components map[string]interface{}, options ...ProcessOption,
) (string, error) {
	b, err := p.prompts.Bundle(key, components, options...)
	if err != nil {
		return "", err
	}

	req := llmclient.Request{
		Messages:       []llmclient.Message{{Role: llmclient.RoleUser, Content: b.UserPrompt}},
		System:         b.SystemPrompt,
		MaxTokens:      b.GenConfig.MaxTokens,
		Temperature:    b.GenConfig.Temperature,
		TopP:           b.GenConfig.TopP,
		IncludeHistory: b.GenConfig.IncludeHistory,
	}
	// last_n_turns selects the exact turns to include, max_history_turns only caps them.
	if n := b.GenConfig.LastNTurns; n > 0 {
		if m := b.GenConfig.MaxHistoryTurns; m > 0 && m < n {
			n = m
		}
		req.HistoryFilters = []history.Filter{history.FilterLastN(n)}
	} else if m := b.GenConfig.MaxHistoryTurns; m > 0 {
		req.HistoryFilters = []history.Filter{history.FilterLastN(m)}
	}

	resp, err := p.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("process %q: %w", key, err)
	}
	return resp.Text, nil
}

// ProcessParsed sends the prompt under the key and parses the marker-wrapped
// JSON payload out of the response. Malformed JSON is repaired by re-asking
// the model through the built-in fix prompt, at most MaxFixAttempts times.
func (p *Processor) ProcessParsed(
	ctx context.Context, key string, components map[string]interface{}, options ...ProcessOption,
) (json.RawMessage, error) {
	raw, err := p.Process(ctx, key, components, options...)
	if err != nil {
		return nil, err
	}

	payload, err := extractPayload(raw, key)
	if err == nil {
		return payload, nil
	}
	p.logger.Warn("malformed JSON in LLM response, trying to repair",
		log.String("prompt_key", key), log.Error(err))
	return p.fixPayload(ctx, key, raw)
}

// fixPayload asks the model to repair the malformed response.
// Each attempt feeds the latest response back through the fix prompt.
func (p *Processor) fixPayload(ctx context.Context, key, raw string) (json.RawMessage, error) {
	attempt := 0
	lastRaw := raw
	payload, err := retry.DoWithRetryAndResult(ctx, p.fixPolicy, nil,
		func(err error, _ time.Duration) {
			attempt++
			p.logger.Warn("JSON repair attempt failed",
				log.String("prompt_key", key), log.Int("attempt", attempt), log.Error(err))
		},
		func(ctx context.Context) (json.RawMessage, error) {
			fixedRaw, fixErr := p.Process(ctx, prompt.FixJSONKey, map[string]interface{}{"input": lastRaw})
			if fixErr != nil {
				return nil, fixErr
			}
			lastRaw = fixedRaw
			fixedPayload, fixErr := extractPayload(fixedRaw, prompt.FixJSONKey)
			if fixErr != nil {
				return nil, fixErr
			}
			// The repaired payload is the original top-level object.
			var obj map[string]json.RawMessage
			if uErr := json.Unmarshal(fixedPayload, &obj); uErr != nil {
				return nil, fmt.Errorf("unmarshal repaired JSON: %w", uErr)
			}
			innerPayload, ok := obj[key]
			if !ok {
				return nil, fmt.Errorf("repaired JSON misses the %q key", key)
			}
			return innerPayload, nil
		})
	if err != nil {
		return nil, fmt.Errorf("repair JSON response for %q: %w", key, err)
	}
	return payload, nil
}

// extractPayload extracts the value under the key from the marker-wrapped JSON
// object in the raw LLM response.
func extractPayload(raw, key string) (json.RawMessage, error) {
	startIdx := strings.Index(raw, prompt.JSONStartMarker)
	if startIdx == -1 {
		return nil, fmt.Errorf("response misses the %s marker", prompt.JSONStartMarker)
	}
	payload := raw[startIdx+len(prompt.JSONStartMarker):]
	if endIdx := strings.Index(payload, prompt.JSONEndMarker); endIdx != -1 {
		payload = payload[:endIdx]
	}
	payload = controlCharsRegexp.ReplaceAllString(payload, "")

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal response JSON: %w", err)
	}
	result, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("response JSON misses the %q key", key)
	}
	return result, nil
}
