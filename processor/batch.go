/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-llmkit/retry"
)

// DefaultMaxBatchRetries is the number of attempts per batch when the prompt
// configuration doesn't specify max_retries.
const DefaultMaxBatchRetries = 5

// batchRetryInitialInterval is the backoff start for failed batch attempts.
const batchRetryInitialInterval = 2 * time.Second

// BatchProcess processes all batches concurrently through the prompt under the
// key and returns parsed payloads in the input order. Each batch is retried
// with exponential backoff, at most max_retries times from the prompt
// configuration (DefaultMaxBatchRetries when not set). The first batch that
// exhausts its attempts fails the whole call.
func (p *Processor) BatchProcess(
	ctx context.Context, key string, batches []map[string]interface{}, options ...ProcessOption,
) ([]json.RawMessage, error) {
	promptCfg, err := p.prompts.Get(key)
	if err != nil {
		return nil, err
	}
	policy := p.batchPolicy
	if policy == nil {
		maxRetries := promptCfg.GenConfig.MaxRetries
		if maxRetries <= 0 {
			maxRetries = DefaultMaxBatchRetries
		}
		policy = retry.NewExponentialBackoffPolicy(batchRetryInitialInterval, maxRetries)
	}

	results := make([]json.RawMessage, len(batches))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i := range batches {
		wg.Add(1)
		go func(order int) {
			defer wg.Done()
			results[order], errs[order] = retry.DoWithRetryAndResult(ctx, policy, nil, nil,
				func(ctx context.Context) (json.RawMessage, error) {
					return p.ProcessParsed(ctx, key, batches[order], options...)
				})
		}(i)
	}
	wg.Wait()

	for i, batchErr := range errs {
		if batchErr != nil {
			return nil, fmt.Errorf("process batch #%d: %w", i, batchErr)
		}
	}
	return results, nil
}

// SequentialProcess processes chunks in order, injecting the previous chunk's
// parsed payload into the next chunk's components under the carryInto names.
// The first chunk gets "n/a" for those components.
func (p *Processor) SequentialProcess(
	ctx context.Context, key string, chunks []map[string]interface{}, carryInto []string, options ...ProcessOption,
) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, 0, len(chunks))
	carry := "n/a"
	for i, chunk := range chunks {
		if len(carryInto) != 0 {
			withCarry := make(map[string]interface{}, len(chunk)+len(carryInto))
			for k, v := range chunk {
				withCarry[k] = v
			}
			for _, name := range carryInto {
				withCarry[name] = carry
			}
			chunk = withCarry
		}
		payload, err := p.ProcessParsed(ctx, key, chunk, options...)
		if err != nil {
			return nil, fmt.Errorf("process chunk #%d: %w", i, err)
		}
		results = append(results, payload)
		carry = payloadAsCarry(payload)
	}
	return results, nil
}

// payloadAsCarry turns a parsed payload into a template-friendly string,
// JSON strings are unquoted.
func payloadAsCarry(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}
