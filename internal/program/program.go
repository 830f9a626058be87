// Package program defines the persona program result type and its JSON
// artifact format.
package program

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PortfolioEntry is one persona in the core portfolio.
type PortfolioEntry struct {
	Name   string `json:"name"`
	Phylum string `json:"phylum,omitempty"`
}

// GenerationalEntry is one generational segment in the program.
type GenerationalEntry struct {
	Name        string `json:"name"`
	Cohort      string `json:"cohort"`
	Description string `json:"description,omitempty"`
}

// Insight is one validated insight sentence and the persona it names.
type Insight struct {
	Text    string `json:"text"`
	Persona string `json:"persona,omitempty"`
	// Repaired is set when the sentence needed a persona substitution.
	Repaired bool `json:"repaired,omitempty"`
}

// Rejection records a candidate persona that governance refused.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Diversity reports the phylum spread of the portfolio.
type Diversity struct {
	Histogram     map[string]int `json:"histogram"`
	DominantRatio float64        `json:"dominantRatio"`
	DistinctPhyla int            `json:"distinctPhyla"`
}

// Program is one complete governed persona program.
type Program struct {
	Brand       string `json:"brand"`
	BriefTitle  string `json:"briefTitle,omitempty"`
	BriefSource string `json:"briefSource,omitempty"`
	Category    string `json:"category"`
	Model       string `json:"model,omitempty"`

	Portfolio    []PortfolioEntry    `json:"portfolio"`
	Anchors      []string            `json:"anchors"`
	Generational []GenerationalEntry `json:"generational"`
	Highlights   []string            `json:"highlights"`
	Insights     []Insight           `json:"insights"`

	// LocalSegment is set for briefs with DMA, state, or city targeting.
	LocalSegment string `json:"localSegment,omitempty"`
	// Lineage and Expressions are set when the brief signals a
	// multicultural audience.
	Lineage     string   `json:"lineage,omitempty"`
	Expressions []string `json:"expressions,omitempty"`

	Diversity  Diversity   `json:"diversity"`
	Rejections []Rejection `json:"rejections,omitempty"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// SegmentNames returns the full ordered segment list: portfolio, anchors,
// then generational.
func (p *Program) SegmentNames() []string {
	out := make([]string, 0, len(p.Portfolio)+len(p.Anchors)+len(p.Generational))
	for _, e := range p.Portfolio {
		out = append(out, e.Name)
	}
	out = append(out, p.Anchors...)
	for _, g := range p.Generational {
		out = append(out, g.Name)
	}
	return out
}

func Save(p *Program, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal program: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write program to %s: %w", path, err)
	}
	return nil
}

func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program from %s: %w", path, err)
	}
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse program from %s: %w", path, err)
	}
	if len(p.Portfolio) == 0 {
		return nil, fmt.Errorf("program %s has no portfolio", path)
	}
	return &p, nil
}
