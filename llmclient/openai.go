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

// openAICaller implements the OpenAI Chat Completions API (POST /v1/chat/completions).
type openAICaller struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func newOpenAICaller(cfg *Config, opts Opts) (*openAICaller, error) {
	apiKey, err := resolveAPIKey(cfg.APIKey, EnvKeyOpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	httpClient, err := newProviderHTTPClient(cfg, opts, ProviderOpenAI,
		httpclient.BearerAuthProvider{Token: apiKey})
	if err != nil {
		return nil, err
	}
	c := &openAICaller{httpClient: httpClient, baseURL: cfg.BaseURL, model: cfg.Model}
	if c.baseURL == "" {
		c.baseURL = DefaultOpenAIBaseURL
	}
	if c.model == "" {
		c.model = DefaultOpenAIModel
	}
	return c, nil
}

func (c *openAICaller) modelName() string {
	return c.model
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *openAICaller) call(
	ctx context.Context, messages []Message, system string, params genParams,
) (Response, error) {
	return doOpenAIChatCompletion(ctx, c.httpClient, ProviderOpenAI,
		c.baseURL+"/v1/chat/completions", nil, c.model, messages, system, params)
}

// doOpenAIChatCompletion is shared between the OpenAI and Azure OpenAI callers,
// Azure uses the same wire format with a deployment-scoped URL.
func doOpenAIChatCompletion(
	ctx context.Context, httpClient *http.Client, providerName, url string, headers map[string]string,
	model string, messages []Message, system string, params genParams,
) (Response, error) {
	combined := messages
	if system != "" {
		combined = append([]Message{{Role: RoleSystem, Content: system}}, messages...)
	}
	reqBody := openAIRequest{
		Model:       model,
		Messages:    combined,
		MaxTokens:   params.maxTokens,
		Temperature: params.temperature,
		TopP:        params.topP,
	}
	var respBody openAIResponse
	if err := postJSON(ctx, httpClient, providerName, url, headers, reqBody, &respBody); err != nil {
		return Response{}, err
	}
	if len(respBody.Choices) == 0 || respBody.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("empty completion in %s response", providerName)
	}
	return Response{
		Text:  respBody.Choices[0].Message.Content,
		Model: respBody.Model,
		Usage: Usage{InputTokens: respBody.Usage.PromptTokens, OutputTokens: respBody.Usage.CompletionTokens},
	}, nil
}
