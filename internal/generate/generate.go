// Package generate produces persona program candidates from a campaign
// brief using a text-generation model. The model only proposes; every
// candidate is validated downstream before it reaches a program.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// BriefRequest carries everything a generator needs to propose candidates
// for one program.
type BriefRequest struct {
	Brand    string
	Brief    string
	Category string

	// Pool is the allowed persona pool for the resolved category. The
	// prompt embeds a capped slice of it so the model proposes from canon.
	Pool []string

	PersonaCount   int
	HighlightCount int
	InsightCount   int
}

// PersonaCandidate is one proposed portfolio persona.
type PersonaCandidate struct {
	Name      string `json:"name"`
	Highlight string `json:"highlight,omitempty"`
}

// GenerationalCandidate is one proposed generational segment.
type GenerationalCandidate struct {
	Name   string `json:"name"`
	Cohort string `json:"cohort,omitempty"`
}

// CandidateSet is the parsed model output for one brief.
type CandidateSet struct {
	Personas     []PersonaCandidate      `json:"personas"`
	Generational []GenerationalCandidate `json:"generational"`
	Insights     []string                `json:"insights"`
}

// PersonaNames returns the proposed persona names in order.
func (c *CandidateSet) PersonaNames() []string {
	names := make([]string, 0, len(c.Personas))
	for _, p := range c.Personas {
		names = append(names, p.Name)
	}
	return names
}

// GenerationalNames returns the proposed generational segment names in order.
func (c *CandidateSet) GenerationalNames() []string {
	names := make([]string, 0, len(c.Generational))
	for _, g := range c.Generational {
		names = append(names, g.Name)
	}
	return names
}

// Generator proposes persona program candidates for a brief.
type Generator interface {
	Generate(ctx context.Context, req BriefRequest) (*CandidateSet, error)
}

// SaveCandidates writes a candidate set to a JSON file for later reuse.
func SaveCandidates(set *CandidateSet, path string) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write candidates to %s: %w", path, err)
	}
	return nil
}

// LoadCandidates reads a candidate set saved by SaveCandidates.
func LoadCandidates(path string) (*CandidateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates from %s: %w", path, err)
	}
	var set CandidateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse candidates from %s: %w", path, err)
	}
	if len(set.Personas) == 0 {
		return nil, fmt.Errorf("candidate file %s has no personas", path)
	}
	return &set, nil
}

func parseCandidates(text string) (*CandidateSet, error) {
	text = stripScratchpad(text)
	text = stripMarkdownFences(text)
	text = extractJSON(text)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no JSON content found in response")
	}

	var set CandidateSet
	if err := json.Unmarshal([]byte(text), &set); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w\nRaw text (first 500 chars): %s", err, truncate(text, 500))
	}

	if len(set.Personas) == 0 {
		return nil, fmt.Errorf("candidate set has no personas")
	}
	for i, p := range set.Personas {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona candidate %d has empty name", i)
		}
	}
	for i, g := range set.Generational {
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("generational candidate %d has empty name", i)
		}
	}

	return &set, nil
}

var scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)

func stripScratchpad(text string) string {
	return scratchpadRe.ReplaceAllString(text, "")
}

func stripMarkdownFences(text string) string {
	// Strip ```json ... ``` or ``` ... ```
	re := regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
	if matches := re.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

func extractJSON(text string) string {
	// Find the first { and last } to extract the JSON object
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
