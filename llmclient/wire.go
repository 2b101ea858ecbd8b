/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBodySize = 16 * 1024

// APIError is returned when a provider responds with a non-2xx status code.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s API error (status %d, type %q): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// providerError is the error payload shape shared by the supported providers.
type providerError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Status  string `json:"status"` // Gemini reports status instead of type.
	} `json:"error"`
}

// postJSON sends a JSON POST request and decodes a JSON response into result.
// Non-2xx responses are returned as *APIError.
func postJSON(
	ctx context.Context, httpClient *http.Client, providerName, url string, headers map[string]string,
	reqBody, result interface{},
) error {
	bodyData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return readAPIError(providerName, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s response: %w", providerName, err)
	}
	return nil
}

func readAPIError(providerName string, resp *http.Response) error {
	apiErr := &APIError{Provider: providerName, StatusCode: resp.StatusCode}
	bodyData, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}
	var pe providerError
	if err := json.Unmarshal(bodyData, &pe); err != nil || pe.Error.Message == "" {
		apiErr.Message = string(bodyData)
		return apiErr
	}
	apiErr.Type = pe.Error.Type
	if apiErr.Type == "" {
		apiErr.Type = pe.Error.Status
	}
	apiErr.Message = pe.Error.Message
	return apiErr
}
