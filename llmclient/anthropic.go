/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package llmclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acronis/go-llmkit/httpclient"
)

// anthropicCaller implements the Anthropic Messages API (POST /v1/messages).
type anthropicCaller struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiVersion string
}

func newAnthropicCaller(cfg *Config, opts Opts) (*anthropicCaller, error) {
	apiKey, err := resolveAPIKey(cfg.APIKey, EnvKeyAnthropicAPIKey)
	if err != nil {
		return nil, err
	}
	httpClient, err := newProviderHTTPClient(cfg, opts, ProviderAnthropic,
		httpclient.HeaderAuthProvider{HeaderName: "X-Api-Key", Key: apiKey})
	if err != nil {
		return nil, err
	}
	c := &anthropicCaller{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultAnthropicBaseURL
	}
	if c.model == "" {
		c.model = DefaultAnthropicModel
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAnthropicAPIVersion
	}
	return c, nil
}

func (c *anthropicCaller) modelName() string {
	return c.model
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *anthropicCaller) call(
	ctx context.Context, messages []Message, system string, params genParams,
) (Response, error) {
	reqBody := anthropicRequest{
		Model:       c.model,
		MaxTokens:   params.maxTokens,
		Temperature: params.temperature,
		TopP:        params.topP,
		System:      system,
		Messages:    messages,
	}
	var respBody anthropicResponse
	headers := map[string]string{"Anthropic-Version": c.apiVersion}
	if err := postJSON(ctx, c.httpClient, ProviderAnthropic,
		c.baseURL+"/v1/messages", headers, reqBody, &respBody); err != nil {
		return Response{}, err
	}

	var text string
	for _, block := range respBody.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Response{}, fmt.Errorf("empty completion in %s response", ProviderAnthropic)
	}
	return Response{
		Text:  text,
		Model: respBody.Model,
		Usage: Usage{InputTokens: respBody.Usage.InputTokens, OutputTokens: respBody.Usage.OutputTokens},
	}, nil
}
