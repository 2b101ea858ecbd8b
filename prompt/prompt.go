/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package prompt provides loading and management of YAML prompt templates
// with automatic JSON response formatting instructions.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ResponseType determines how an LLM response for a prompt should be treated.
type ResponseType string

// Response types.
const (
	// ResponseTypeRawString makes the response be returned as a plain string.
	ResponseTypeRawString ResponseType = "raw_string"

	// ResponseTypeParsedJSON makes the response be parsed as a structured JSON object.
	ResponseTypeParsedJSON ResponseType = "parsed_json"
)

// Markers wrapping the JSON payload in LLM responses.
const (
	JSONStartMarker = "__json_start__"
	JSONEndMarker   = "__json_end__"
)

// FixJSONKey is the key of the built-in prompt that asks the model to repair malformed JSON.
const FixJSONKey = "__fix_json__"

// Example is an input/output pair shown to the model in the system prompt.
type Example struct {
	Input  string `yaml:"input" json:"input"`
	Output string `yaml:"output" json:"output"`
}

// GenConfig carries per-prompt generation parameters and processing hints.
// Zero values mean "not set, use the client defaults".
type GenConfig struct {
	MaxTokens       int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	TopP            float64 `yaml:"top_p" json:"top_p"`
	IncludeHistory  bool    `yaml:"include_history" json:"include_history"`
	LastNTurns      int     `yaml:"last_n_turns" json:"last_n_turns"`
	MaxHistoryTurns int     `yaml:"max_history_turns" json:"max_history_turns"`
	MaxRetries      int     `yaml:"max_retries" json:"max_retries"`
}

// Prompt is a single prompt configuration as it appears in a YAML source.
type Prompt struct {
	SystemPrompt string                 `yaml:"system_prompt" json:"system_prompt"`
	UserPrompt   string                 `yaml:"user_prompt" json:"user_prompt"`
	ResponseType ResponseType           `yaml:"response_type" json:"response_type"`
	CustomSchema map[string]interface{} `yaml:"custom_schema" json:"custom_schema"`
	Examples     []Example              `yaml:"examples" json:"examples"`
	GenConfig    GenConfig              `yaml:"config" json:"config"`
}

// Manager loads prompt configurations from YAML sources and builds prompt bundles.
// Safe for concurrent use.
type Manager struct {
	mu                  sync.RWMutex
	prompts             map[string]Prompt
	defaultResponseType ResponseType
}

// Opts represents an options for the Manager.
type Opts struct {
	// DefaultResponseType is used for prompts that don't specify a response type.
	// ResponseTypeRawString is used when empty.
	DefaultResponseType ResponseType
}

// NewManager creates a new Manager preloaded with the built-in prompts.
func NewManager() *Manager {
	return NewManagerWithOpts(Opts{})
}

// NewManagerWithOpts is a more configurable version of the NewManager.
func NewManagerWithOpts(opts Opts) *Manager {
	if opts.DefaultResponseType == "" {
		opts.DefaultResponseType = ResponseTypeRawString
	}
	m := &Manager{
		prompts:             make(map[string]Prompt),
		defaultResponseType: opts.DefaultResponseType,
	}
	m.prompts[FixJSONKey] = fixJSONPrompt
	return m
}

var fixJSONPrompt = Prompt{
	SystemPrompt: "You are given a malformed JSON payload. " +
		"Fix all syntax errors (unbalanced braces, missing commas, unescaped quotes, trailing text) " +
		"without changing any keys or values. Return only the corrected JSON object.",
	UserPrompt:   "{{.input}}",
	ResponseType: ResponseTypeParsedJSON,
}

// Load loads prompt configurations from a YAML file or from all YAML files in a directory.
// Later sources override earlier ones on key collision.
func (m *Manager) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("prompt source %q not found: %w", path, err)
	}
	if info.IsDir() {
		return m.loadFromDir(path)
	}
	return m.loadFromFile(path)
}

func (m *Manager) loadFromDir(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("read prompts dir: %w", err)
	}
	var yamlFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, filepath.Join(dirPath, entry.Name()))
		}
	}
	if len(yamlFiles) == 0 {
		return fmt.Errorf("no YAML files found in directory %q", dirPath)
	}
	for _, filePath := range yamlFiles {
		if err := m.loadFromFile(filePath); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read prompts file: %w", err)
	}
	prompts := make(map[string]Prompt)
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return fmt.Errorf("unmarshal prompts file %q: %w", filePath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range prompts {
		m.prompts[key] = p
	}
	return nil
}

// Add adds or replaces a prompt configuration at runtime.
func (m *Manager) Add(key string, p Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[key] = p
}

// Get returns the prompt configuration for the key.
func (m *Manager) Get(key string) (Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[key]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt key %q not found, available: %v", key, m.sortedKeys())
	}
	return p, nil
}

// Keys returns all available prompt keys sorted alphabetically.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedKeys()
}

func (m *Manager) sortedKeys() []string {
	keys := make([]string, 0, len(m.prompts))
	for key := range m.prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Info is a summary of a prompt configuration.
type Info struct {
	HasSystemPrompt bool
	HasUserPrompt   bool
	HasExamples     bool
	HasCustomSchema bool
	ResponseType    ResponseType
}

// List returns a summary of all available prompts.
func (m *Manager) List() map[string]Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make(map[string]Info, len(m.prompts))
	for key, p := range m.prompts {
		infos[key] = Info{
			HasSystemPrompt: p.SystemPrompt != "",
			HasUserPrompt:   p.UserPrompt != "",
			HasExamples:     len(p.Examples) > 0,
			HasCustomSchema: len(p.CustomSchema) > 0,
			ResponseType:    p.ResponseType,
		}
	}
	return infos
}
