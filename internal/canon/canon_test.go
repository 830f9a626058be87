package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T) *Store {
	t.Helper()
	s, err := Load()
	require.NoError(t, err)
	return s
}

func TestLoadCounts(t *testing.T) {
	s := mustLoad(t)

	assert.Len(t, s.Categories(), 15)
	assert.Len(t, s.phyla, 22)
	assert.Len(t, s.allAnchors, 15)
	assert.Len(t, s.Cohorts(), 4)
	for _, cohort := range s.Cohorts() {
		assert.Len(t, s.SegmentsForCohort(cohort), 8, "cohort %s", cohort)
	}
	assert.Len(t, s.Lineages(), 6)
	for _, lineage := range s.Lineages() {
		assert.Len(t, s.ExpressionsForLineage(lineage), 5, "lineage %s", lineage)
	}
	assert.NotEmpty(t, s.LocalSegments())
}

func TestCanonicalize(t *testing.T) {
	s := mustLoad(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exact name unchanged", "Romantic Voyager", "Romantic Voyager"},
		{"missing apostrophe", "Food Truckin", "Food Truckin'"},
		{"dash variant", "budget-minded", "Budget Minded"},
		{"case variant", "romantic voyager", "Romantic Voyager"},
		{"unknown returned as-is", "Quantum Shopper", "Quantum Shopper"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Canonicalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, s.Canonicalize(got), "canonicalize must be idempotent")
		})
	}
}

func TestPhylumOf(t *testing.T) {
	s := mustLoad(t)

	// Personas listed under several phyla resolve to the last group listed.
	phylum, ok := s.PhylumOf("Digital Nomad")
	require.True(t, ok)
	assert.Equal(t, "Tech & Innovation", phylum)

	phylum, ok = s.PhylumOf("Pizza Night")
	require.True(t, ok)
	assert.Equal(t, "Moments & Holidays", phylum)

	phylum, ok = s.PhylumOf("Morning Stroll")
	require.True(t, ok)
	assert.Equal(t, "Outdoors & Nature", phylum)

	_, ok = s.PhylumOf("Not A Persona")
	assert.False(t, ok)
}

func TestDeprecated(t *testing.T) {
	s := mustLoad(t)

	assert.True(t, s.IsDeprecated("Soccer Mom"))
	assert.True(t, s.IsDeprecated("soccer-mom"), "normalized variants of sunset personas are rejected")
	assert.False(t, s.IsDeprecated("Romantic Voyager"))

	assert.False(t, s.IsCanon("Foodie"), "deprecated personas are not canon")
	assert.True(t, s.IsCanon("Caffeine Fiend"))
	assert.False(t, s.IsCanon(""))
}

func TestIsAllowed(t *testing.T) {
	s := mustLoad(t)

	assert.True(t, s.IsAllowed("Bargain Hunter", "Retail & E-Commerce"))
	assert.False(t, s.IsAllowed("Bargain Hunter", "Luxury & Fashion"))
	assert.True(t, s.IsAllowed("food truckin", "QSR"), "normalized names match the pool")
	assert.False(t, s.IsAllowed("", "QSR"))
	assert.False(t, s.IsAllowed("Bargain Hunter", ""))
}

func TestAnchors(t *testing.T) {
	s := mustLoad(t)

	assert.Equal(t, []string{"RJM QSR", "RJM Culinary & Dining"}, s.AnchorsFor("QSR"))
	assert.Equal(t, []string{"RJM Auto"}, s.AnchorsFor("Auto"))
	assert.Equal(t, []string{"RJM Persona Anchor"}, s.AnchorsFor("Unknown Category"))

	assert.Equal(t, []string{"RJM CPG", "RJM Luxury & Fashion"}, s.AnchorsForBrand("L'Oréal", "CPG"))
	assert.Equal(t, []string{"RJM Auto"}, s.AnchorsForBrand("Ford", "Auto"))

	assert.True(t, s.IsAnchor("RJM Travel & Hospitality"))
	assert.True(t, s.IsAnchor("RJM Something New"), "RJM prefix is reserved for anchors")
	assert.False(t, s.IsAnchor("Romantic Voyager"))
}

func TestNormalizeGenerational(t *testing.T) {
	s := mustLoad(t)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Gen Z–Prompted", "Gen Z–Prompted", true},
		{"Gen-Z Prompted", "Gen Z–Prompted", true},
		{"gen z - prompted", "Gen Z–Prompted", true},
		{"Millennial-Growth-Minded", "Millennial–Growth-Minded", true},
		{"Boomer Suburbia", "Boomer–Suburbia", true},
		{"Gen Z–Quantum", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := s.NormalizeGenerational(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	cohort, ok := s.CohortOf("Millennial–Wanderlust")
	require.True(t, ok)
	assert.Equal(t, "Millennial", cohort)

	desc, ok := s.GenerationalDescription("Boomer–Camelot")
	require.True(t, ok)
	assert.NotEmpty(t, desc)
}

func TestPoolForDualAnchorBrand(t *testing.T) {
	s := mustLoad(t)

	base := s.PoolFor("Sports & Fitness", "some brand")
	assert.Equal(t, s.PersonasForCategory("Sports & Fitness"), base)

	union := s.PoolFor("Sports & Fitness", "Nike")
	assert.Greater(t, len(union), len(base))
	assert.Contains(t, union, "Vintage Stylist", "retail pool personas join via the dual anchor")

	seen := map[string]int{}
	for _, name := range union {
		seen[name]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, "duplicate %q in pool", name)
	}
}
