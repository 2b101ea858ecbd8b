/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-llmkit/history"
	"github.com/acronis/go-llmkit/sessionlimit"
	"github.com/acronis/go-llmkit/testutil"
	"github.com/acronis/go-llmkit/throttle"
)

func TestNew(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := New("cohere", &Config{APIKey: "key"}, Opts{})
		require.ErrorContains(t, err, `unknown LLM provider "cohere"`)
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(EnvKeyOpenAIAPIKey, "")
		_, err := New(ProviderOpenAI, &Config{}, Opts{})
		require.ErrorContains(t, err, "API key is missing")
		require.ErrorContains(t, err, EnvKeyOpenAIAPIKey)
	})

	t.Run("api key from env", func(t *testing.T) {
		t.Setenv(EnvKeyAnthropicAPIKey, "sk-ant-env")
		c, err := New(ProviderAnthropic, &Config{}, Opts{})
		require.NoError(t, err)
		require.Equal(t, ProviderAnthropic, c.Provider())
		require.Equal(t, DefaultAnthropicModel, c.Model())
	})

	t.Run("azure requires endpoint", func(t *testing.T) {
		_, err := New(ProviderAzureOpenAI, &Config{APIKey: "key"}, Opts{})
		require.ErrorContains(t, err, "azure endpoint is required")
	})
}

func TestAnthropicClientChat(t *testing.T) {
	var gotReq anthropicRequest
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Hello from Claude"}],
			"usage": {"input_tokens": 12, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	c, err := New(ProviderAnthropic, &Config{APIKey: "sk-ant-test", BaseURL: server.URL}, Opts{})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
		System:   "Be terse.",
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from Claude", resp.Text)
	require.Equal(t, "claude-3-5-sonnet-20241022", resp.Model)
	require.Equal(t, Usage{InputTokens: 12, OutputTokens: 5}, resp.Usage)

	require.Equal(t, "sk-ant-test", gotHeader.Get("X-Api-Key"))
	require.Equal(t, DefaultAnthropicAPIVersion, gotHeader.Get("Anthropic-Version"))
	require.NotEmpty(t, gotHeader.Get("X-Request-ID"))
	require.Equal(t, DefaultAnthropicModel, gotReq.Model)
	require.Equal(t, DefaultMaxTokens, gotReq.MaxTokens)
	require.Equal(t, "Be terse.", gotReq.System)
	require.Equal(t, []Message{{Role: RoleUser, Content: "Hi"}}, gotReq.Messages)
}

func TestOpenAIClientChat(t *testing.T) {
	var gotReq openAIRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{
			"model": "gpt-4o-2024-11-20",
			"choices": [{"message": {"content": "Hello from GPT"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 7}
		}`))
	}))
	defer server.Close()

	c, err := New(ProviderOpenAI,
		&Config{APIKey: "sk-test", BaseURL: server.URL, MaxTokens: 256}, Opts{})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
		System:   "Be helpful.",
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from GPT", resp.Text)
	require.Equal(t, Usage{InputTokens: 20, OutputTokens: 7}, resp.Usage)

	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, 256, gotReq.MaxTokens)
	// The system prompt goes first as a system-role message.
	require.Equal(t, []Message{
		{Role: RoleSystem, Content: "Be helpful."},
		{Role: RoleUser, Content: "Hi"},
	}, gotReq.Messages)
}

func TestAzureOpenAIClientChat(t *testing.T) {
	var gotKey, gotAPIVersion string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/openai/deployments/my-deployment/chat/completions", r.URL.Path)
		gotKey = r.Header.Get("Api-Key")
		gotAPIVersion = r.URL.Query().Get("api-version")
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"choices": [{"message": {"content": "Hello from Azure"}}]}`))
	}))
	defer server.Close()

	c, err := New(ProviderAzureOpenAI, &Config{
		APIKey:          "azure-key",
		AzureEndpoint:   server.URL,
		AzureDeployment: "my-deployment",
		Model:           "gpt-4o",
	}, Opts{})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}})
	require.NoError(t, err)
	require.Equal(t, "Hello from Azure", resp.Text)
	require.Equal(t, "azure-key", gotKey)
	require.Equal(t, DefaultAzureAPIVersion, gotAPIVersion)
}

func TestGeminiClientChat(t *testing.T) {
	var gotReq geminiRequest
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-2.0-flash-exp:generateContent", r.URL.Path)
		gotKey = r.Header.Get("X-Goog-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello from Gemini"}]}}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 4}
		}`))
	}))
	defer server.Close()

	c, err := New(ProviderGemini, &Config{APIKey: "g-key", BaseURL: server.URL}, Opts{})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), Request{
		Messages: []Message{
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello"},
			{Role: RoleUser, Content: "How are you?"},
		},
		System: "Be nice.",
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from Gemini", resp.Text)
	require.Equal(t, Usage{InputTokens: 9, OutputTokens: 4}, resp.Usage)

	require.Equal(t, "g-key", gotKey)
	require.NotNil(t, gotReq.SystemInstruction)
	require.Equal(t, "Be nice.", gotReq.SystemInstruction.Parts[0].Text)
	require.Equal(t, []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: "Hi"}}},
		{Role: "model", Parts: []geminiPart{{Text: "Hello"}}},
		{Role: "user", Parts: []geminiPart{{Text: "How are you?"}}},
	}, gotReq.Contents)
}

func TestClientChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusTooManyRequests)
		_, _ = rw.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "Too many requests"}}`))
	}))
	defer server.Close()

	c, err := New(ProviderAnthropic, &Config{APIKey: "sk-ant-test", BaseURL: server.URL}, Opts{})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, ProviderAnthropic, apiErr.Provider)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "rate_limit_error", apiErr.Type)
	require.Equal(t, "Too many requests", apiErr.Message)
}

func TestClientChatWithHistory(t *testing.T) {
	var reqsCount int
	var lastMessages []Message
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqsCount++
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastMessages = req.Messages
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(fmt.Sprintf(
			`{"choices": [{"message": {"content": "answer %d"}}]}`, reqsCount)))
	}))
	defer server.Close()

	hist := history.Must(10)
	c, err := New(ProviderOpenAI,
		&Config{APIKey: "sk-test", BaseURL: server.URL}, Opts{History: hist})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.Chat(ctx, Request{
		Messages: []Message{{Role: RoleUser, Content: "first question"}},
		Metadata: map[string]interface{}{"topic": "testing"},
	})
	require.NoError(t, err)

	// The exchange is recorded as a user turn and an assistant turn.
	turns := hist.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "first question", turns[0].Content)
	require.Equal(t, map[string]interface{}{"topic": "testing"}, turns[0].Metadata)
	require.Equal(t, "answer 1", turns[1].Content)

	_, err = c.Chat(ctx, Request{
		Messages:       []Message{{Role: RoleUser, Content: "second question"}},
		IncludeHistory: true,
	})
	require.NoError(t, err)
	require.Equal(t, []Message{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "answer 1"},
		{Role: RoleUser, Content: "second question"},
	}, lastMessages)
	require.Equal(t, 4, hist.Len())
}

func TestClientChatSessionLimit(t *testing.T) {
	concurrent := atomic.NewInt32(0)
	maxConcurrent := atomic.NewInt32(0)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		cur := concurrent.Inc()
		if cur > maxConcurrent.Load() {
			maxConcurrent.Store(cur)
		}
		time.Sleep(20 * time.Millisecond)
		concurrent.Dec()
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	limiter := sessionlimit.Must(2)
	c, err := New(ProviderOpenAI,
		&Config{APIKey: "sk-test", BaseURL: server.URL}, Opts{SessionLimiter: limiter})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, chatErr := c.Chat(context.Background(), Request{
				Messages: []Message{{Role: RoleUser, Content: "Hi"}},
			})
			require.NoError(t, chatErr)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxConcurrent.Load(), int32(2))
	status := limiter.QueueStatus()
	require.Equal(t, 0, status.Occupancy)
	require.Equal(t, 0, status.WaitingCount)
}

func TestClientChatThrottled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	thr := throttle.Must([]throttle.RuleConfig{
		{Models: []string{"gpt-4o*"}, Rate: throttle.Rate{Count: 1, Duration: time.Hour}},
	})
	c, err := New(ProviderOpenAI,
		&Config{APIKey: "sk-test", BaseURL: server.URL}, Opts{Throttler: thr})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "Hi"}}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Chat(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "Hi again"}}})
	require.ErrorContains(t, err, "wait for throttling limit")
	testutil.RequireErrorIsAny(t, err, []error{context.DeadlineExceeded, context.Canceled})
}

func TestClientChatValidation(t *testing.T) {
	c, err := New(ProviderOpenAI, &Config{APIKey: "sk-test"}, Opts{})
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), Request{})
	require.EqualError(t, err, "at least one message is required")
}
