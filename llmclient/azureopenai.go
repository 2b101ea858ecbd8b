/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/acronis/go-llmkit/httpclient"
)

// azureOpenAICaller implements the Azure OpenAI Chat Completions API.
// The wire format matches OpenAI, but requests go to a deployment-scoped URL
// with an api-version query parameter and an "Api-Key" header.
type azureOpenAICaller struct {
	httpClient *http.Client
	url        string
	model      string
}

func newAzureOpenAICaller(cfg *Config, opts Opts) (*azureOpenAICaller, error) {
	apiKey, err := resolveAPIKey(cfg.APIKey, EnvKeyAzureOpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	if cfg.AzureEndpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	httpClient, err := newProviderHTTPClient(cfg, opts, ProviderAzureOpenAI,
		httpclient.HeaderAuthProvider{HeaderName: "Api-Key", Key: apiKey})
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAzureOpenAIModel
	}
	deployment := cfg.AzureDeployment
	if deployment == "" {
		deployment = model
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	return &azureOpenAICaller{
		httpClient: httpClient,
		model:      model,
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimSuffix(cfg.AzureEndpoint, "/"), url.PathEscape(deployment), url.QueryEscape(apiVersion)),
	}, nil
}

func (c *azureOpenAICaller) modelName() string {
	return c.model
}

func (c *azureOpenAICaller) call(
	ctx context.Context, messages []Message, system string, params genParams,
) (Response, error) {
	return doOpenAIChatCompletion(ctx, c.httpClient, ProviderAzureOpenAI,
		c.url, nil, c.model, messages, system, params)
}
