/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Bundle is a complete prompt ready to be sent to an LLM.
type Bundle struct {
	Key          string
	SystemPrompt string
	UserPrompt   string
	ResponseType ResponseType
	CustomSchema map[string]interface{}
	GenConfig    GenConfig
}

// BundleOption overrides prompt configuration values for a single Bundle call.
type BundleOption func(*bundleOptions)

type bundleOptions struct {
	responseType ResponseType
	customSchema map[string]interface{}
}

// WithResponseType overrides the response type from the prompt configuration.
func WithResponseType(rt ResponseType) BundleOption {
	return func(o *bundleOptions) {
		o.responseType = rt
	}
}

// WithCustomSchema overrides the custom schema from the prompt configuration.
func WithCustomSchema(schema map[string]interface{}) BundleOption {
	return func(o *bundleOptions) {
		o.customSchema = schema
	}
}

// Bundle renders the prompt under the key with the given template variables
// and assembles the system prompt with JSON response instructions and examples.
func (m *Manager) Bundle(key string, vars map[string]interface{}, options ...BundleOption) (*Bundle, error) {
	p, err := m.Get(key)
	if err != nil {
		return nil, err
	}

	var opts bundleOptions
	for _, opt := range options {
		opt(&opts)
	}
	responseType := opts.responseType
	if responseType == "" {
		responseType = p.ResponseType
	}
	if responseType == "" {
		responseType = m.defaultResponseType
	}
	customSchema := opts.customSchema
	if customSchema == nil {
		customSchema = p.CustomSchema
	}

	systemPrompt, err := renderTemplate(key+".system", p.SystemPrompt, vars)
	if err != nil {
		return nil, err
	}
	userPrompt, err := renderTemplate(key+".user", p.UserPrompt, vars)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(buildJSONInstructions(key, responseType, customSchema))
	if len(p.Examples) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(formatExamples(key, responseType, p.Examples))
	}

	return &Bundle{
		Key:          key,
		SystemPrompt: sb.String(),
		UserPrompt:   userPrompt,
		ResponseType: responseType,
		CustomSchema: customSchema,
		GenConfig:    p.GenConfig,
	}, nil
}

func renderTemplate(name, text string, vars map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return sb.String(), nil
}

// buildJSONInstructions generates the response formatting contract. LLM responses
// are always asked to wrap a single-key JSON object with the start/end markers,
// for raw string prompts the key's value is a plain string.
func buildJSONInstructions(key string, responseType ResponseType, customSchema map[string]interface{}) string {
	var responseFormat string
	switch {
	case responseType == ResponseTypeRawString:
		responseFormat = `"Your response content as a string"`
	case len(customSchema) > 0:
		responseFormat = formatSchemaExample(customSchema)
	default:
		responseFormat = "{ //Your response content as a json object here \n}"
	}
	return fmt.Sprintf(`Your task: return a valid JSON object with the format below. All valid json content should be wrapped with %[2]s and %[3]s.
- JSON object with key %[1]q:
{
  %[1]q: %[4]s
}

<expected response>
%[2]s
{
  %[1]q: <your response content here>
}
%[3]s
</expected response>`, key, JSONStartMarker, JSONEndMarker, responseFormat)
}

// formatSchemaExample formats a schema-like map as a one-line JSON example.
// Map keys are sorted to keep the output stable.
func formatSchemaExample(schema map[string]interface{}) string {
	return formatSchemaValue(schema)
}

func formatSchemaValue(value interface{}) string {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%q: %s", key, formatSchemaValue(v[key])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []interface{}:
		if len(v) == 0 {
			return "[...]"
		}
		return "[" + formatSchemaValue(v[0]) + "]"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprint(v)
	}
}

func formatExamples(key string, responseType ResponseType, examples []Example) string {
	parts := []string{"Examples:"}
	for i, ex := range examples {
		input := strings.TrimSpace(ex.Input)
		output := strings.TrimSpace(ex.Output)
		if responseType == ResponseTypeRawString {
			output = fmt.Sprintf("%q", output)
		}
		parts = append(parts,
			fmt.Sprintf("<example_%[1]d_input>\n%[2]s\n</example_%[1]d_input>", i+1, input),
			fmt.Sprintf("<example_%[1]d_output>\n%[2]s\n{ %[3]q: %[4]s }\n%[5]s\n</example_%[1]d_output>",
				i+1, JSONStartMarker, key, output, JSONEndMarker),
		)
	}
	return strings.Join(parts, "\n")
}
