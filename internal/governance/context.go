// Package governance is the single source of truth for persona selection
// rules. Every persona that reaches a generated program passes through an
// Engine, which validates names against the canon allowlist, enforces the
// hard separation between highlights and insights, applies rotation pressure
// to over-selected personas, and keeps portfolios diverse across phyla.
package governance

import (
	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
)

// Context tracks persona selection state for a single program generation.
// It guarantees that, within one program, highlights and insights never
// overlap and every list stays duplicate free.
type Context struct {
	Category string
	Brand    string
	Brief    string

	store *canon.Store

	portfolio    []string
	highlights   []string
	insights     []string
	generational []string

	portfolioSet map[string]bool
	highlightSet map[string]bool
	insightSet   map[string]bool
	phylumCounts map[string]int
}

// NewContext returns an empty selection context for one program.
func NewContext(store *canon.Store, category, brand, brief string) *Context {
	return &Context{
		Category:     category,
		Brand:        brand,
		Brief:        brief,
		store:        store,
		portfolioSet: make(map[string]bool),
		highlightSet: make(map[string]bool),
		insightSet:   make(map[string]bool),
		phylumCounts: make(map[string]int),
	}
}

// AddToPortfolio adds a persona to the portfolio. Returns false if already
// present.
func (c *Context) AddToPortfolio(name string) bool {
	if c.portfolioSet[name] {
		return false
	}
	c.portfolio = append(c.portfolio, name)
	c.portfolioSet[name] = true
	if phylum, ok := c.store.PhylumOf(name); ok {
		c.phylumCounts[phylum]++
	}
	return true
}

// AddToHighlights adds a persona to the highlights. Returns false if already
// present.
func (c *Context) AddToHighlights(name string) bool {
	if c.highlightSet[name] {
		return false
	}
	c.highlights = append(c.highlights, name)
	c.highlightSet[name] = true
	return true
}

// AddToInsights adds a persona to the insights. This is the choke point for
// highlight/insight separation: a persona already in highlights is refused.
func (c *Context) AddToInsights(name string) bool {
	if c.insightSet[name] || c.highlightSet[name] {
		return false
	}
	c.insights = append(c.insights, name)
	c.insightSet[name] = true
	return true
}

func (c *Context) addGenerational(name string) {
	c.generational = append(c.generational, name)
}

// InPortfolio reports whether a persona is in the portfolio.
func (c *Context) InPortfolio(name string) bool { return c.portfolioSet[name] }

// IsHighlight reports whether a persona is used as a highlight.
func (c *Context) IsHighlight(name string) bool { return c.highlightSet[name] }

// InInsights reports whether a persona is referenced by an insight.
func (c *Context) InInsights(name string) bool { return c.insightSet[name] }

// Portfolio returns the selected portfolio personas in selection order.
func (c *Context) Portfolio() []string { return append([]string(nil), c.portfolio...) }

// Highlights returns the selected highlight personas in selection order.
func (c *Context) Highlights() []string { return append([]string(nil), c.highlights...) }

// Insights returns the personas referenced by insights in selection order.
func (c *Context) Insights() []string { return append([]string(nil), c.insights...) }

// Generational returns the selected generational segments.
func (c *Context) Generational() []string { return append([]string(nil), c.generational...) }

// PhylumDistribution returns the phylum counts of the current portfolio.
func (c *Context) PhylumDistribution() map[string]int {
	out := make(map[string]int, len(c.phylumCounts))
	for k, v := range c.phylumCounts {
		out[k] = v
	}
	return out
}

// DominantPhylumRatio returns the share of the portfolio held by its most
// common phylum, or 0 for an empty portfolio.
func (c *Context) DominantPhylumRatio() float64 {
	if len(c.phylumCounts) == 0 || len(c.portfolio) == 0 {
		return 0
	}
	max := 0
	for _, n := range c.phylumCounts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(len(c.portfolio))
}
