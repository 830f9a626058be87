package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteChainExtractor(t *testing.T) {
	ex := QuoteChainExtractor{}

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"single quoted at end", "They always plan ahead: 'Planner'.", "Planner", true},
		{"double quoted at end", `Their weekends belong to the "Beach Bum".`, "Beach Bum", true},
		{"quoted with descriptor", "They embody the 'Planner' mindset.", "Planner", true},
		{"quoted mid sentence", "The 'Planner' side of them never rests.", "Planner", true},
		{"no quotes", "They love to travel light.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ex.Extract(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func insightTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")
	portfolio := e.BuildPortfolio([]string{"Backpacker", "Planner", "Bourdain Mode"}, 3)
	require.Equal(t, []string{"Backpacker", "Planner", "Bourdain Mode"}, portfolio)
	highlights := e.SelectHighlights([]string{"Backpacker"}, 1)
	require.Equal(t, []string{"Backpacker"}, highlights)
	return e
}

func TestValidateInsightText(t *testing.T) {
	e := insightTestEngine(t)

	tests := []struct {
		name       string
		text       string
		wantValid  bool
		reasonPart string
	}{
		{"portfolio persona", "They research every stop: 'Planner'.", true, ""},
		{"plural mention resolves", "They are compulsive 'Planners'.", true, ""},
		{"no quoted persona", "They book flights months out.", true, ""},
		{"highlight reuse", "Adventure defines them: 'Backpacker'.", false, "highlights"},
		{"not in portfolio", "They find peace through 'Faith'.", false, "not in portfolio"},
		{"wrong category", "They live like a 'Caffeine Fiend'.", false, "not valid for category"},
		{"sunset persona", "They chase thrills: 'Adventure Seeker'.", false, "sunset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, _, reason := e.ValidateInsightText(tt.text)
			assert.Equal(t, tt.wantValid, valid)
			if !tt.wantValid {
				assert.Contains(t, reason, tt.reasonPart)
			}
		})
	}
}

func TestFixInsightText(t *testing.T) {
	t.Run("valid text unchanged", func(t *testing.T) {
		e := insightTestEngine(t)
		text := "They research every stop: 'Planner'."
		assert.Equal(t, text, e.FixInsightText(text))
	})

	t.Run("highlight mention replaced", func(t *testing.T) {
		e := insightTestEngine(t)
		fixed := e.FixInsightText("Adventure defines them: 'Backpacker'.")
		assert.Equal(t, "Adventure defines them: 'Planner'.", fixed)
		assert.True(t, e.Selection().InInsights("Planner"))
	})

	t.Run("replacement avoids used insights", func(t *testing.T) {
		e := insightTestEngine(t)
		first := e.FixInsightText("Adventure defines them: 'Backpacker'.")
		assert.Contains(t, first, "'Planner'")
		second := e.FixInsightText("They live like a 'Caffeine Fiend'.")
		assert.Contains(t, second, "'Bourdain Mode'")
	})

	t.Run("double quoted mention replaced", func(t *testing.T) {
		e := insightTestEngine(t)
		fixed := e.FixInsightText(`Offbeat food drives their trips: "Caffeine Fiend".`)
		assert.Equal(t, `Offbeat food drives their trips: "Planner".`, fixed)
	})
}

func TestResolveInsight(t *testing.T) {
	t.Run("valid insight claims persona", func(t *testing.T) {
		e := insightTestEngine(t)
		text := "They research every stop: 'Planner'."
		fixed, persona, repaired, ok := e.ResolveInsight(text)
		assert.True(t, ok)
		assert.False(t, repaired)
		assert.Equal(t, text, fixed)
		assert.Equal(t, "Planner", persona)
		assert.True(t, e.Selection().InInsights("Planner"))
	})

	t.Run("plural mention resolves to canon form", func(t *testing.T) {
		e := insightTestEngine(t)
		_, persona, repaired, ok := e.ResolveInsight("They are compulsive 'Planners'.")
		assert.True(t, ok)
		assert.False(t, repaired)
		assert.Equal(t, "Planner", persona)
	})

	t.Run("highlight mention repaired", func(t *testing.T) {
		e := insightTestEngine(t)
		fixed, persona, repaired, ok := e.ResolveInsight("Adventure defines them: 'Backpacker'.")
		assert.True(t, ok)
		assert.True(t, repaired)
		assert.Equal(t, "Adventure defines them: 'Planner'.", fixed)
		assert.Equal(t, "Planner", persona)
	})

	t.Run("no quoted persona passes through", func(t *testing.T) {
		e := insightTestEngine(t)
		text := "They book flights months out."
		fixed, persona, repaired, ok := e.ResolveInsight(text)
		assert.True(t, ok)
		assert.False(t, repaired)
		assert.Equal(t, text, fixed)
		assert.Empty(t, persona)
	})
}
