package governance

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
)

// ErrPoolExhausted is returned when no eligible persona remains after all
// exclusions are applied.
var ErrPoolExhausted = errors.New("persona pool exhausted")

// Limits holds the tunable governance thresholds.
type Limits struct {
	// TargetPortfolio is the portfolio size cap.
	TargetPortfolio int
	// MinPhyla is the minimum distinct phyla before dominance is enforced.
	MinPhyla int
	// MaxPhylumDominance caps the share any single phylum may hold.
	MaxPhylumDominance float64
	// HighlightCount and InsightCount are the default selection sizes.
	HighlightCount int
	InsightCount   int
	// HotHighlightCap limits hot personas per highlight set. Categories
	// with a known hot cluster use ClusteredHotCap instead.
	HotHighlightCap int
	ClusteredHotCap int
	// HighlightRecencyPenalty is the extra weight multiplier for personas
	// that appeared in recent highlight sets.
	HighlightRecencyPenalty float64
	// MaxGenerational caps generational segments, one per cohort.
	MaxGenerational int
	// MaxAnchors caps anchor segments per program.
	MaxAnchors int
}

// DefaultLimits returns the production governance thresholds.
func DefaultLimits() Limits {
	return Limits{
		TargetPortfolio:         15,
		MinPhyla:                3,
		MaxPhylumDominance:      0.35,
		HighlightCount:          3,
		InsightCount:            2,
		HotHighlightCap:         2,
		ClusteredHotCap:         1,
		HighlightRecencyPenalty: 0.5,
		MaxGenerational:         4,
		MaxAnchors:              2,
	}
}

// hotClusterCategories are categories whose hot personas form a recognizable
// cluster that would otherwise ship together over and over.
var hotClusterCategories = map[string]bool{
	"Travel & Hospitality": true,
}

// Rejection records a persona that was refused, and why. Rejections are
// logged and reported but never abort a program.
type Rejection struct {
	Name   string
	Reason string
}

// Engine applies all governance rules for a single program generation. It is
// not safe for concurrent use; create one Engine per program.
type Engine struct {
	store   *canon.Store
	tracker *rotation.Tracker
	log     *slog.Logger
	limits  Limits
	rng     *rand.Rand

	category string
	brand    string
	brief    string

	pool      []string
	poolSet   map[string]bool
	anchors   []string
	sel       *Context
	rejected  []Rejection
	extractor MentionExtractor
}

// NewEngine builds an Engine for one program. The category must already be
// resolved; the pool is the category pool unioned with any dual-anchor
// categories for the brand.
func NewEngine(store *canon.Store, tracker *rotation.Tracker, logger *slog.Logger, category, brand, brief string, limits Limits) *Engine {
	pool := store.PoolFor(category, brand)
	poolSet := make(map[string]bool, len(pool))
	for _, name := range pool {
		poolSet[name] = true
	}
	e := &Engine{
		store:     store,
		tracker:   tracker,
		log:       logger,
		limits:    limits,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		category:  category,
		brand:     brand,
		brief:     brief,
		pool:      pool,
		poolSet:   poolSet,
		anchors:   store.AnchorsForBrand(brand, category),
		sel:       NewContext(store, category, brand, brief),
		extractor: QuoteChainExtractor{},
	}
	logger.Info("governance engine ready",
		"category", category,
		"brand", brand,
		"pool_size", len(pool),
		"anchors", e.anchors)
	return e
}

// Selection returns the engine's selection context.
func (e *Engine) Selection() *Context { return e.sel }

// Anchors returns the anchor segments for this program.
func (e *Engine) Anchors() []string { return append([]string(nil), e.anchors...) }

// Rejections returns every persona rejection recorded so far.
func (e *Engine) Rejections() []Rejection { return append([]Rejection(nil), e.rejected...) }

func (e *Engine) reject(name, reason string) {
	e.rejected = append(e.rejected, Rejection{Name: name, Reason: reason})
}

// isAllowed reports whether a persona may be selected: not deprecated, and
// either valid for the category or present in the (possibly dual-anchor)
// pool.
func (e *Engine) isAllowed(name string) bool {
	if name == "" || e.store.IsDeprecated(name) {
		return false
	}
	canonical := e.store.Canonicalize(name)
	if e.store.IsAllowed(canonical, e.category) {
		return true
	}
	return e.poolSet[canonical] || e.poolSet[name]
}

// ValidatePersona validates a single persona name. It returns the canonical
// name on success, or the rejection reason on failure. Anchors and
// generational segments are rejected here because they are selected through
// their own paths, never as core personas.
func (e *Engine) ValidatePersona(name string) (string, string, bool) {
	if name == "" {
		return name, "empty name", false
	}
	if e.store.IsAnchor(name) {
		return name, "anchor segment, not a core persona", false
	}
	if e.store.IsGenerational(name) {
		return name, "generational segment, selected separately", false
	}
	if e.store.IsDeprecated(name) {
		return name, fmt.Sprintf("%q is a sunset persona", name), false
	}
	canonical := e.store.Canonicalize(name)
	if e.store.IsDeprecated(canonical) {
		return name, fmt.Sprintf("%q is a sunset persona", canonical), false
	}
	if !e.isAllowed(canonical) {
		return name, fmt.Sprintf("not valid for category %q", e.category), false
	}
	return canonical, "", true
}

// ValidatePersonas filters a candidate list down to valid canonical names,
// preserving order and dropping duplicates. Rejections are recorded.
func (e *Engine) ValidatePersonas(names []string) []string {
	var valid []string
	seen := make(map[string]bool)
	rejectedBefore := len(e.rejected)

	for _, name := range names {
		canonical, reason, ok := e.ValidatePersona(name)
		if !ok {
			e.reject(name, reason)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		valid = append(valid, canonical)
	}

	if n := len(e.rejected) - rejectedBefore; n > 0 {
		e.log.Warn("rejected candidate personas",
			"rejected", n,
			"category", e.category)
	}
	return valid
}

type weightedCandidate struct {
	name   string
	weight float64
	phylum string
}

// SelectHighlights picks highlight personas with rotation pressure and
// diversity rules. Hot personas are capped per set so the same cluster stops
// shipping together, and a persona's phylum may not repeat until at least
// two highlights are chosen.
func (e *Engine) SelectHighlights(available []string, count int) []string {
	maxHot := e.limits.HotHighlightCap
	if hotClusterCategories[e.category] {
		maxHot = e.limits.ClusteredHotCap
	}

	var candidates []weightedCandidate
	for _, name := range available {
		if e.store.IsDeprecated(name) || !e.isAllowed(name) {
			continue
		}
		weight := e.store.RotationWeight(name, e.category, e.tracker.HighlightPosition(name))
		if e.tracker.IsRecentHighlight(name) {
			weight *= e.limits.HighlightRecencyPenalty
		}
		phylum, _ := e.store.PhylumOf(name)
		candidates = append(candidates, weightedCandidate{name: name, weight: weight, phylum: phylum})
	}

	// Random tie-break between equal weights.
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})

	var selected []string
	phylaUsed := make(map[string]bool)
	hotCount := 0
	for _, c := range candidates {
		if len(selected) >= count {
			break
		}
		if c.phylum != "" && phylaUsed[c.phylum] && len(selected) < 2 {
			continue
		}
		if e.store.IsHot(c.name, e.category) {
			if hotCount >= maxHot {
				continue
			}
		}
		if !e.sel.AddToHighlights(c.name) {
			continue
		}
		selected = append(selected, c.name)
		if c.phylum != "" {
			phylaUsed[c.phylum] = true
		}
		if e.store.IsHot(c.name, e.category) {
			hotCount++
		}
	}

	e.tracker.RegisterHighlights(selected...)
	e.log.Info("selected highlights",
		"highlights", selected,
		"hot_count", hotCount,
		"hot_cap", maxHot)
	return selected
}

// SelectForInsights picks personas for insight write-ups. A persona already
// used as a highlight, or highlighted in recent programs, is never eligible.
// Returns ErrPoolExhausted when every candidate is excluded.
func (e *Engine) SelectForInsights(available []string, count int) ([]string, error) {
	var selected []string
	eligible := 0
	for _, name := range available {
		if len(selected) >= count {
			break
		}
		if e.store.IsDeprecated(name) || !e.isAllowed(name) {
			continue
		}
		if e.sel.IsHighlight(name) {
			continue
		}
		if e.tracker.IsRecentHighlight(name) {
			continue
		}
		eligible++
		if e.sel.AddToInsights(name) {
			selected = append(selected, name)
		}
	}

	if len(selected) == 0 && eligible == 0 {
		e.log.Warn("no personas eligible for insights",
			"available", len(available),
			"highlights", len(e.sel.highlights))
		return nil, ErrPoolExhausted
	}
	e.log.Info("selected insight personas", "insights", selected)
	return selected, nil
}

// BuildPortfolio assembles the final portfolio: validated suggestions first,
// then pool personas to reach the target, preferring personas that have not
// shipped recently and skipping any that would push a phylum past the
// dominance cap once enough phyla are represented.
func (e *Engine) BuildPortfolio(suggestions []string, target int) []string {
	if target <= 0 {
		target = e.limits.TargetPortfolio
	}
	for _, name := range e.ValidatePersonas(suggestions) {
		e.sel.AddToPortfolio(name)
	}

	if len(e.sel.portfolio) < target {
		var available []string
		for _, name := range e.pool {
			if !e.sel.InPortfolio(name) {
				available = append(available, name)
			}
		}
		sort.SliceStable(available, func(i, j int) bool {
			ri, rj := e.tracker.IsRecentPersona(available[i]), e.tracker.IsRecentPersona(available[j])
			return !ri && rj
		})

		for _, name := range available {
			if len(e.sel.portfolio) >= target {
				break
			}
			if phylum, ok := e.store.PhylumOf(name); ok {
				newRatio := float64(e.sel.phylumCounts[phylum]+1) / float64(len(e.sel.portfolio)+1)
				if newRatio > e.limits.MaxPhylumDominance && len(e.sel.phylumCounts) >= e.limits.MinPhyla {
					continue
				}
			}
			e.sel.AddToPortfolio(name)
		}
	}

	e.tracker.RegisterPersonas(e.sel.portfolio...)
	e.log.Info("built portfolio",
		"size", len(e.sel.portfolio),
		"phyla", len(e.sel.phylumCounts),
		"dominance", fmt.Sprintf("%.2f", e.sel.DominantPhylumRatio()))
	return e.sel.Portfolio()
}

// SelectGenerational picks one generational segment per cohort. Valid
// suggestions claim their cohort first; missing cohorts are backfilled with
// the first segment not recently used, falling back to the cohort's first
// segment when everything is recent.
func (e *Engine) SelectGenerational(suggestions []string) []string {
	var selected []string
	covered := make(map[string]bool)

	for _, name := range suggestions {
		canonical, ok := e.store.NormalizeGenerational(name)
		if !ok {
			continue
		}
		cohort, ok := e.store.CohortOf(canonical)
		if !ok || covered[cohort] {
			continue
		}
		selected = append(selected, canonical)
		covered[cohort] = true
		e.sel.addGenerational(canonical)
	}

	for _, cohort := range e.store.Cohorts() {
		if covered[cohort] {
			continue
		}
		segments := e.store.SegmentsForCohort(cohort)
		if len(segments) == 0 {
			continue
		}
		pick := segments[0]
		for _, seg := range segments {
			if !e.tracker.IsRecentGenerational(seg) {
				pick = seg
				break
			}
		}
		selected = append(selected, pick)
		covered[cohort] = true
		e.sel.addGenerational(pick)
	}

	e.tracker.RegisterGenerational(selected...)
	if len(selected) > e.limits.MaxGenerational {
		selected = selected[:e.limits.MaxGenerational]
	}
	return selected
}

// FullPortfolio returns the complete program segment list: core portfolio,
// anchors, then generational segments, each at their cap.
func (e *Engine) FullPortfolio() []string {
	portfolio := e.sel.Portfolio()
	if len(portfolio) > e.limits.TargetPortfolio {
		portfolio = portfolio[:e.limits.TargetPortfolio]
	}
	anchors := e.anchors
	if len(anchors) > e.limits.MaxAnchors {
		anchors = anchors[:e.limits.MaxAnchors]
	}
	generational := e.sel.Generational()
	if len(generational) > e.limits.MaxGenerational {
		generational = generational[:e.limits.MaxGenerational]
	}
	out := make([]string, 0, len(portfolio)+len(anchors)+len(generational))
	out = append(out, portfolio...)
	out = append(out, anchors...)
	out = append(out, generational...)
	return out
}
