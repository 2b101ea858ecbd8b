/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-llmkit/llmclient"
	"github.com/acronis/go-llmkit/prompt"
)

type scriptedClient struct {
	requests  []llmclient.Request
	responses []string
	err       error
}

func (c *scriptedClient) Chat(_ context.Context, req llmclient.Request) (llmclient.Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return llmclient.Response{}, c.err
	}
	if len(c.responses) == 0 {
		return llmclient.Response{}, fmt.Errorf("no scripted responses left")
	}
	text := c.responses[0]
	c.responses = c.responses[1:]
	return llmclient.Response{Text: text, Model: "scripted-model"}, nil
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) Model() string    { return "scripted-model" }

func newTestManager(t *testing.T) *prompt.Manager {
	t.Helper()
	m := prompt.NewManager()
	m.Add("summarize", prompt.Prompt{
		SystemPrompt: "You are a summarization assistant.",
		UserPrompt:   "Summarize: {{.text}}",
		ResponseType: prompt.ResponseTypeParsedJSON,
		GenConfig:    prompt.GenConfig{MaxTokens: 300, IncludeHistory: true, LastNTurns: 2},
	})
	return m
}

func TestNewWithOpts(t *testing.T) {
	m := prompt.NewManager()
	_, err := NewWithOpts(nil, m, Opts{})
	require.EqualError(t, err, "client is required")

	_, err = NewWithOpts(&scriptedClient{}, nil, Opts{})
	require.EqualError(t, err, "prompt manager is required")
}

func TestProcessorProcess(t *testing.T) {
	client := &scriptedClient{responses: []string{"a raw response"}}
	p, err := New(client, newTestManager(t))
	require.NoError(t, err)

	text, err := p.Process(context.Background(), "summarize",
		map[string]interface{}{"text": "a long document"})
	require.NoError(t, err)
	require.Equal(t, "a raw response", text)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.Equal(t, "Summarize: a long document", req.Messages[0].Content)
	require.Contains(t, req.System, "You are a summarization assistant.")
	require.Contains(t, req.System, prompt.JSONStartMarker)
	require.Equal(t, 300, req.MaxTokens)
	require.True(t, req.IncludeHistory)
	require.Len(t, req.HistoryFilters, 1)
}

func TestProcessorProcessErrors(t *testing.T) {
	t.Run("unknown prompt key", func(t *testing.T) {
		p, err := New(&scriptedClient{}, newTestManager(t))
		require.NoError(t, err)
		_, err = p.Process(context.Background(), "unknown", nil)
		require.ErrorContains(t, err, "not found")
	})

	t.Run("client error", func(t *testing.T) {
		client := &scriptedClient{err: fmt.Errorf("provider is down")}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)
		_, err = p.Process(context.Background(), "summarize", map[string]interface{}{"text": "doc"})
		require.ErrorContains(t, err, `process "summarize"`)
		require.ErrorContains(t, err, "provider is down")
	})
}

func TestProcessorProcessParsed(t *testing.T) {
	ctx := context.Background()
	components := map[string]interface{}{"text": "doc"}

	t.Run("valid payload", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			"Sure, here you go:\n__json_start__\n{\"summarize\": {\"summary\": \"short\"}}\n__json_end__",
		}}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)

		payload, err := p.ProcessParsed(ctx, "summarize", components)
		require.NoError(t, err)
		require.JSONEq(t, `{"summary": "short"}`, string(payload))
	})

	t.Run("control characters are stripped", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			"__json_start__\n{\"summarize\": \"line\x01with\x1fgarbage\"}\n__json_end__",
		}}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)

		payload, err := p.ProcessParsed(ctx, "summarize", components)
		require.NoError(t, err)
		require.Equal(t, `"linewithgarbage"`, string(payload))
	})

	t.Run("missing end marker still parses", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`__json_start__ {"summarize": 42}`,
		}}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)

		payload, err := p.ProcessParsed(ctx, "summarize", components)
		require.NoError(t, err)
		require.Equal(t, json.RawMessage("42"), json.RawMessage(string(payload)))
	})

	t.Run("malformed JSON is repaired through the fix prompt", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`__json_start__ {"summarize": "broken `,
			`__json_start__ {"__fix_json__": {"summarize": "repaired"}} __json_end__`,
		}}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)

		payload, err := p.ProcessParsed(ctx, "summarize", components)
		require.NoError(t, err)
		require.Equal(t, `"repaired"`, string(payload))

		// The second request must go through the fix prompt with the broken response as input.
		require.Len(t, client.requests, 2)
		require.Contains(t, client.requests[1].Messages[0].Content, `{"summarize": "broken`)
	})

	t.Run("gives up after max fix attempts", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`no markers at all`,
			`still broken`,
			`still broken`,
			`still broken`,
		}}
		p, err := NewWithOpts(client, newTestManager(t), Opts{MaxFixAttempts: 2})
		require.NoError(t, err)

		_, err = p.ProcessParsed(ctx, "summarize", components)
		require.ErrorContains(t, err, `repair JSON response for "summarize"`)
		// Initial request plus the bounded repair attempts.
		require.Len(t, client.requests, 4)
	})

	t.Run("repaired JSON misses the main key", func(t *testing.T) {
		client := &scriptedClient{responses: []string{
			`__json_start__ {"other": 1`,
			`__json_start__ {"__fix_json__": {"other": 1}} __json_end__`,
			`__json_start__ {"__fix_json__": {"other": 1}} __json_end__`,
			`__json_start__ {"__fix_json__": {"other": 1}} __json_end__`,
			`__json_start__ {"__fix_json__": {"other": 1}} __json_end__`,
		}}
		p, err := New(client, newTestManager(t))
		require.NoError(t, err)

		_, err = p.ProcessParsed(ctx, "summarize", components)
		require.ErrorContains(t, err, `misses the "summarize" key`)
	})
}
