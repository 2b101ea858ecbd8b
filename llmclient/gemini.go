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

	"github.com/acronis/go-llmkit/httpclient"
)

// geminiCaller implements the Gemini generateContent API
// (POST /v1beta/models/{model}:generateContent). The API key is sent
// in the "X-Goog-Api-Key" header instead of the key query parameter,
// keeping it out of request URLs that end up in logs.
type geminiCaller struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func newGeminiCaller(cfg *Config, opts Opts) (*geminiCaller, error) {
	apiKey, err := resolveAPIKey(cfg.APIKey, EnvKeyGoogleAPIKey)
	if err != nil {
		return nil, err
	}
	httpClient, err := newProviderHTTPClient(cfg, opts, ProviderGemini,
		httpclient.HeaderAuthProvider{HeaderName: "X-Goog-Api-Key", Key: apiKey})
	if err != nil {
		return nil, err
	}
	c := &geminiCaller{httpClient: httpClient, baseURL: cfg.BaseURL, model: cfg.Model}
	if c.baseURL == "" {
		c.baseURL = DefaultGeminiBaseURL
	}
	if c.model == "" {
		c.model = DefaultGeminiModel
	}
	return c, nil
}

func (c *geminiCaller) modelName() string {
	return c.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		TopP            float64 `json:"topP"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (c *geminiCaller) call(
	ctx context.Context, messages []Message, system string, params genParams,
) (Response, error) {
	reqBody := geminiRequest{Contents: make([]geminiContent, 0, len(messages))}
	for _, msg := range messages {
		// Gemini uses "user" and "model" roles.
		role := string(msg.Role)
		if msg.Role == RoleAssistant {
			role = "model"
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	reqBody.GenerationConfig.Temperature = params.temperature
	reqBody.GenerationConfig.TopP = params.topP
	reqBody.GenerationConfig.MaxOutputTokens = params.maxTokens

	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	var respBody geminiResponse
	if err := postJSON(ctx, c.httpClient, ProviderGemini, reqURL, nil, reqBody, &respBody); err != nil {
		return Response{}, err
	}

	var text string
	if len(respBody.Candidates) > 0 {
		for _, part := range respBody.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return Response{}, fmt.Errorf("empty completion in %s response", ProviderGemini)
	}
	model := respBody.ModelVersion
	if model == "" {
		model = c.model
	}
	return Response{
		Text:  text,
		Model: model,
		Usage: Usage{
			InputTokens:  respBody.UsageMetadata.PromptTokenCount,
			OutputTokens: respBody.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}
