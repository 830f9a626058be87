// Package canon holds the RJM ingredient canon: the category and phylum
// persona maps, ad-category anchor segments, generational and multicultural
// specialty products, and the deprecation allowlist. All governance decisions
// resolve against a Store loaded from the embedded canon data.
package canon

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed data/*.json
var dataFS embed.FS

// CategoryPool is the ordered persona pool for one advertising category.
type CategoryPool struct {
	Name     string   `json:"name"`
	Personas []string `json:"personas"`
}

// PhylumGroup is the ordered persona list for one phylum.
type PhylumGroup struct {
	Name     string   `json:"name"`
	Personas []string `json:"personas"`
}

// Segment is a named specialty segment with its curated description.
type Segment struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type cohortGroup struct {
	Cohort   string    `json:"cohort"`
	Segments []Segment `json:"segments"`
}

type lineageGroup struct {
	Lineage     string    `json:"lineage"`
	Keywords    []string  `json:"keywords"`
	Expressions []Segment `json:"expressions"`
}

type anchorData struct {
	Categories map[string][]string `json:"categories"`
	All        []string            `json:"all"`
}

type brandData struct {
	Overrides  map[string]string   `json:"overrides"`
	DualAnchor map[string][]string `json:"dualAnchor"`
}

type categoryKeywords struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

type localData struct {
	Segments []string `json:"segments"`
	Keywords []string `json:"keywords"`
	States   []string `json:"states"`
	Cities   []string `json:"cities"`
}

// Store is the loaded ingredient canon. It is immutable after Load and safe
// for concurrent use.
type Store struct {
	categories    []CategoryPool
	categoryIndex map[string][]string

	phyla         []PhylumGroup
	personaPhylum map[string]string

	// normalized lower-case name -> first-seen canonical spelling
	canonical   map[string]string
	allPersonas map[string]bool

	anchors    map[string][]string
	allAnchors []string
	anchorSet  map[string]bool

	cohorts         []string
	cohortSegments  map[string][]string
	segmentCohort   map[string]string
	genDescriptions map[string]string
	genNormalized   map[string]string

	deprecated     map[string]bool
	deprecatedNorm map[string]bool

	hot map[string]map[string]bool

	brandOverrides map[string]string
	dualAnchors    map[string][]string
	keywords       []categoryKeywords

	lineages         []lineageGroup
	exprDescriptions map[string]string
	exprByLineage    map[string][]string

	local         localData
	localSegments map[string]bool
}

// Load parses the embedded canon data and builds all lookup indexes.
func Load() (*Store, error) {
	s := &Store{
		categoryIndex:    make(map[string][]string),
		personaPhylum:    make(map[string]string),
		canonical:        make(map[string]string),
		allPersonas:      make(map[string]bool),
		anchorSet:        make(map[string]bool),
		cohortSegments:   make(map[string][]string),
		segmentCohort:    make(map[string]string),
		genDescriptions:  make(map[string]string),
		genNormalized:    make(map[string]string),
		deprecated:       make(map[string]bool),
		deprecatedNorm:   make(map[string]bool),
		hot:              make(map[string]map[string]bool),
		exprDescriptions: make(map[string]string),
		exprByLineage:    make(map[string][]string),
		localSegments:    make(map[string]bool),
	}

	if err := load(&s.categories, "data/categories.json"); err != nil {
		return nil, err
	}
	if err := load(&s.phyla, "data/phyla.json"); err != nil {
		return nil, err
	}
	var anchors anchorData
	if err := load(&anchors, "data/anchors.json"); err != nil {
		return nil, err
	}
	var cohorts []cohortGroup
	if err := load(&cohorts, "data/generations.json"); err != nil {
		return nil, err
	}
	if err := load(&s.lineages, "data/multicultural.json"); err != nil {
		return nil, err
	}
	var deprecated []string
	if err := load(&deprecated, "data/deprecated.json"); err != nil {
		return nil, err
	}
	var hot map[string][]string
	if err := load(&hot, "data/hot.json"); err != nil {
		return nil, err
	}
	var brands brandData
	if err := load(&brands, "data/brands.json"); err != nil {
		return nil, err
	}
	if err := load(&s.keywords, "data/keywords.json"); err != nil {
		return nil, err
	}
	if err := load(&s.local, "data/local.json"); err != nil {
		return nil, err
	}

	// Phylum map is indexed first so its spellings win canonical status.
	// A persona listed under several phyla keeps the last phylum seen.
	for _, group := range s.phyla {
		for _, name := range group.Personas {
			s.personaPhylum[name] = group.Name
			s.registerPersona(name)
		}
	}
	for _, pool := range s.categories {
		s.categoryIndex[pool.Name] = pool.Personas
		for _, name := range pool.Personas {
			s.registerPersona(name)
		}
	}

	s.anchors = anchors.Categories
	s.allAnchors = anchors.All
	for _, a := range anchors.All {
		s.anchorSet[a] = true
	}

	for _, group := range cohorts {
		s.cohorts = append(s.cohorts, group.Cohort)
		for _, seg := range group.Segments {
			s.cohortSegments[group.Cohort] = append(s.cohortSegments[group.Cohort], seg.Name)
			s.segmentCohort[seg.Name] = group.Cohort
			s.genDescriptions[seg.Name] = seg.Description
			s.genNormalized[normalizeDashes(seg.Name)] = seg.Name
		}
	}

	for _, name := range deprecated {
		s.deprecated[name] = true
		s.deprecatedNorm[strings.ToLower(normalizeName(name))] = true
	}

	for category, names := range hot {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		s.hot[category] = set
	}

	s.brandOverrides = brands.Overrides
	s.dualAnchors = brands.DualAnchor

	for _, lg := range s.lineages {
		for _, expr := range lg.Expressions {
			s.exprDescriptions[expr.Name] = expr.Description
			s.exprByLineage[lg.Lineage] = append(s.exprByLineage[lg.Lineage], expr.Name)
		}
	}

	for _, seg := range s.local.Segments {
		s.localSegments[seg] = true
	}

	return s, nil
}

func load(dst any, path string) error {
	raw, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read canon data %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse canon data %s: %w", path, err)
	}
	return nil
}

func (s *Store) registerPersona(name string) {
	s.allPersonas[name] = true
	key := strings.ToLower(normalizeName(name))
	if _, ok := s.canonical[key]; !ok {
		s.canonical[key] = name
	}
}

// Categories returns category names in canonical order.
func (s *Store) Categories() []string {
	out := make([]string, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Name)
	}
	return out
}

// PersonasForCategory returns the ordered persona pool for a category, or nil
// for an unknown category.
func (s *Store) PersonasForCategory(category string) []string {
	return s.categoryIndex[category]
}

// PoolFor returns the persona pool for a category, unioned with the pools of
// a dual-anchor brand's other categories. Order is preserved and duplicates
// are dropped.
func (s *Store) PoolFor(category, brand string) []string {
	pool := make([]string, 0, len(s.categoryIndex[category]))
	pool = append(pool, s.categoryIndex[category]...)
	for _, dual := range s.BrandCategories(brand) {
		if dual != category {
			pool = append(pool, s.categoryIndex[dual]...)
		}
	}
	seen := make(map[string]bool, len(pool))
	deduped := pool[:0]
	for _, name := range pool {
		if !seen[name] {
			seen[name] = true
			deduped = append(deduped, name)
		}
	}
	return deduped
}

// PhylumOf returns the phylum of a persona.
func (s *Store) PhylumOf(name string) (string, bool) {
	p, ok := s.personaPhylum[name]
	return p, ok
}

// IsDeprecated reports whether a persona was sunset from the canon. Both the
// raw name and its normalized form are checked, so spelling variants of a
// retired persona are still rejected.
func (s *Store) IsDeprecated(name string) bool {
	if s.deprecated[name] {
		return true
	}
	return s.deprecatedNorm[strings.ToLower(normalizeName(name))]
}

// IsCanon reports whether a name resolves to an active canon persona.
// Deprecated personas are not canon: the canon is a strict allowlist.
func (s *Store) IsCanon(name string) bool {
	if name == "" || s.IsDeprecated(name) {
		return false
	}
	if s.allPersonas[name] {
		return true
	}
	_, ok := s.canonical[strings.ToLower(normalizeName(name))]
	return ok
}

// Canonicalize maps a persona name to its canonical spelling. Dash, quote,
// and whitespace variants all resolve to the first-seen canon form. Unknown
// names are returned unchanged, so the call is idempotent.
func (s *Store) Canonicalize(name string) string {
	if name == "" || s.allPersonas[name] {
		return name
	}
	if canonical, ok := s.canonical[strings.ToLower(normalizeName(name))]; ok {
		return canonical
	}
	return name
}

// IsAllowed reports whether a persona may appear in programs for a category.
// Membership is decided against the category's persona pool.
func (s *Store) IsAllowed(name, category string) bool {
	if name == "" || category == "" {
		return false
	}
	pool := s.categoryIndex[category]
	if len(pool) == 0 {
		return s.IsCanon(name)
	}
	canonical := s.Canonicalize(name)
	for _, p := range pool {
		if p == canonical || p == name {
			return true
		}
		if strings.EqualFold(p, canonical) || strings.EqualFold(normalizeName(p), normalizeName(canonical)) {
			return true
		}
	}
	return false
}

// AnchorsFor returns the anchor segments for a category. Every category has
// at least one anchor; QSR carries a dual anchor.
func (s *Store) AnchorsFor(category string) []string {
	if anchors, ok := s.anchors[category]; ok {
		return anchors
	}
	return []string{"RJM Persona Anchor"}
}

// AnchorsForBrand returns up to two anchors for a brand, using the brand's
// dual categories when defined and the primary category otherwise.
func (s *Store) AnchorsForBrand(brand, category string) []string {
	cats := s.BrandCategories(brand)
	if len(cats) == 0 {
		anchors := s.AnchorsFor(category)
		if len(anchors) > 2 {
			anchors = anchors[:2]
		}
		return anchors
	}
	var out []string
	seen := make(map[string]bool)
	for _, cat := range cats {
		for _, a := range s.anchors[cat] {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	if len(out) > 2 {
		out = out[:2]
	}
	return out
}

// IsAnchor reports whether a name is an anchor segment. Anchors use the
// reserved "RJM " prefix and are never core personas.
func (s *Store) IsAnchor(name string) bool {
	return s.anchorSet[name] || strings.HasPrefix(name, "RJM ")
}

// Cohorts returns the generational cohorts in canonical order.
func (s *Store) Cohorts() []string {
	return s.cohorts
}

// SegmentsForCohort returns the generational segments for a cohort.
func (s *Store) SegmentsForCohort(cohort string) []string {
	return s.cohortSegments[cohort]
}

// CohortOf returns the cohort a generational segment belongs to.
func (s *Store) CohortOf(segment string) (string, bool) {
	c, ok := s.segmentCohort[segment]
	return c, ok
}

// IsGenerational reports whether a name is a canonical generational segment.
func (s *Store) IsGenerational(name string) bool {
	_, ok := s.segmentCohort[name]
	return ok
}

// NormalizeGenerational resolves dash and case variants of a generational
// segment name ("Gen-Z Prompted", "gen z prompted") to the canonical form.
func (s *Store) NormalizeGenerational(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if _, ok := s.segmentCohort[name]; ok {
		return name, true
	}
	canonical, ok := s.genNormalized[normalizeDashes(name)]
	return canonical, ok
}

// GenerationalDescription returns the curated description for a segment.
func (s *Store) GenerationalDescription(name string) (string, bool) {
	d, ok := s.genDescriptions[name]
	return d, ok
}

// Lineages returns the multicultural lineages in canonical order.
func (s *Store) Lineages() []string {
	out := make([]string, 0, len(s.lineages))
	for _, lg := range s.lineages {
		out = append(out, lg.Lineage)
	}
	return out
}

// ExpressionsForLineage returns the multicultural expression names for a
// cultural lineage.
func (s *Store) ExpressionsForLineage(lineage string) []string {
	return s.exprByLineage[lineage]
}

// ExpressionDescription returns the curated description for a multicultural
// expression.
func (s *Store) ExpressionDescription(name string) (string, bool) {
	d, ok := s.exprDescriptions[name]
	return d, ok
}

// LocalSegments returns all local culture DMA segments.
func (s *Store) LocalSegments() []string {
	return s.local.Segments
}

// normalizeName flattens dash variants to spaces, strips quotes and
// apostrophes, and collapses whitespace. Case is preserved.
func normalizeName(name string) string {
	r := strings.NewReplacer("-", " ", "–", " ", "—", " ", "'", "", "’", "", `"`, "")
	return strings.Join(strings.Fields(r.Replace(name)), " ")
}

// normalizeDashes lower-cases and flattens dash variants, for generational
// segment matching where apostrophes are significant.
func normalizeDashes(name string) string {
	r := strings.NewReplacer("–", " ", "-", " ", "—", " ")
	return strings.Join(strings.Fields(strings.ToLower(r.Replace(name))), " ")
}
