package program

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgram() *Program {
	return &Program{
		Brand:    "Delta",
		Category: "Travel & Hospitality",
		Portfolio: []PortfolioEntry{
			{Name: "Backpacker", Phylum: "Travel & Exploration"},
			{Name: "Planner", Phylum: "Education & Growth"},
		},
		Anchors: []string{"RJM Travel & Hospitality"},
		Generational: []GenerationalEntry{
			{Name: "Millennial–Wanderlust", Cohort: "Millennial"},
		},
		Highlights: []string{"Backpacker"},
		Insights: []Insight{
			{Text: "Their itineraries read like a 'Planner' wrote them.", Persona: "Planner"},
		},
		Diversity: Diversity{
			Histogram:     map[string]int{"Travel & Exploration": 1, "Education & Growth": 1},
			DominantRatio: 0.5,
			DistinctPhyla: 2,
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func TestSegmentNames(t *testing.T) {
	p := sampleProgram()
	assert.Equal(t, []string{
		"Backpacker", "Planner",
		"RJM Travel & Hospitality",
		"Millennial–Wanderlust",
	}, p.SegmentNames())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.json")
	p := sampleProgram()

	require.NoError(t, Save(p, path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, p.Brand, loaded.Brand)
	assert.Equal(t, p.Portfolio, loaded.Portfolio)
	assert.Equal(t, p.Insights, loaded.Insights)
	assert.Equal(t, p.Diversity.DistinctPhyla, loaded.Diversity.DistinctPhyla)
}

func TestLoadRejectsEmptyPortfolio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.json")
	require.NoError(t, Save(&Program{Brand: "Delta"}, path))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no portfolio")
}
