// Package prompt renders the pipeline manifest into a snippet that is
// injected into system prompts so the model knows which pipelines exist.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/Dmi3yy/webui-pipes/internal/manifest"
)

// Build renders the manifest as a YAML-like list. An empty manifest renders
// as "".
func Build(entries []manifest.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := []string{"## Available Pipelines"}
	for _, e := range entries {
		lines = append(lines, "- id: "+e.DisplayID())
		if e.Name != "" {
			lines = append(lines, "  name: "+e.Name)
		}
		lines = append(lines, "  call_via: run_pipeline")
	}
	return strings.Join(lines, "\n")
}

// Inject appends snippet to a system prompt, separated by a blank line.
func Inject(systemPrompt, snippet string) string {
	switch {
	case snippet == "":
		return systemPrompt
	case systemPrompt == "":
		return snippet
	default:
		return strings.TrimRight(systemPrompt, "\n") + "\n\n" + snippet
	}
}

// Snippet holds the rendered prompt for the current manifest.
type Snippet struct {
	mu   sync.RWMutex
	text string
}

// Init loads the manifest and renders it.
func (s *Snippet) Init(loader *manifest.Loader) {
	text := Build(loader.Load())
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

// Current returns the last rendered snippet.
func (s *Snippet) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// TokenCount returns the cl100k_base token count of text.
func TokenCount(text string) (int, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return 0, fmt.Errorf("load tokenizer: %w", codecErr)
	}
	if text == "" {
		return 0, nil
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return len(ids), nil
}
