package canon

import "strings"

// InferCategory infers the advertising category for a brief using keyword
// heuristics. Keyword groups are evaluated in canonical order: B2B is checked
// first so martech and SaaS briefs never fall through to consumer categories,
// and Luxury & Fashion is checked before Retail & E-Commerce. CPG is the
// final fallback.
func (s *Store) InferCategory(text string) string {
	lowered := strings.ToLower(text)
	for _, group := range s.keywords {
		for _, kw := range group.Keywords {
			if strings.Contains(lowered, kw) {
				return group.Category
			}
		}
	}
	return "CPG"
}

// BrandOverride returns the explicit category override for a multi-category
// brand, if one is defined.
func (s *Store) BrandOverride(brand string) (string, bool) {
	category, ok := s.brandOverrides[strings.ToLower(strings.TrimSpace(brand))]
	return category, ok
}

// BrandCategories returns the dual categories for a brand that spans more
// than one category, or nil for single-category brands.
func (s *Store) BrandCategories(brand string) []string {
	return s.dualAnchors[strings.ToLower(strings.TrimSpace(brand))]
}

// IsLocalBrief reports whether a brief references DMA, state, or city level
// targeting. Local culture segments are only applied for local briefs.
func (s *Store) IsLocalBrief(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range s.local.Keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	for _, state := range s.local.States {
		if strings.Contains(lowered, state) {
			return true
		}
	}
	for _, city := range s.local.Cities {
		if strings.Contains(lowered, city) {
			return true
		}
	}
	return false
}

// LocalSegmentFor matches a DMA hint ("Austin", "the Boston market") to a
// local culture segment.
func (s *Store) LocalSegmentFor(hint string) (string, bool) {
	lowered := strings.ToLower(hint)
	for _, segment := range s.local.Segments {
		base := strings.ToLower(strings.TrimSuffix(segment, " Culture"))
		if strings.Contains(lowered, base) || strings.Contains(base, lowered) {
			return segment, true
		}
	}
	return "", false
}

// DetectLineage detects whether a brief targets a specific cultural lineage.
// Lineages are checked in canonical order.
func (s *Store) DetectLineage(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, lg := range s.lineages {
		for _, kw := range lg.Keywords {
			if strings.Contains(lowered, kw) {
				return lg.Lineage, true
			}
		}
	}
	return "", false
}

// IsHot reports whether a persona is a high-frequency "hot" persona for the
// category. Hot personas get rotation pressure so they stop dominating
// programs.
func (s *Store) IsHot(name, category string) bool {
	return s.hot[category][name]
}

// WeightFloor is the minimum rotation weight. No persona is ever fully
// suppressed.
const WeightFloor = 0.1

// RotationWeight computes the selection weight for a persona. Hot personas
// take a 40% penalty, and a non-negative recency position applies a tiered
// penalty: under 20 is heavily suppressed, under 50 moderately, under 100
// lightly. Pass recency -1 for personas with no recent use.
func (s *Store) RotationWeight(name, category string, recency int) float64 {
	weight := 1.0
	if s.IsHot(name, category) {
		weight *= 0.6
	}
	switch {
	case recency < 0:
	case recency < 20:
		weight *= 0.3
	case recency < 50:
		weight *= 0.5
	case recency < 100:
		weight *= 0.7
	}
	if weight < WeightFloor {
		return WeightFloor
	}
	return weight
}
