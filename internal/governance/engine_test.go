package governance

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, category, brand string) (*Engine, *rotation.Tracker) {
	t.Helper()
	store, err := canon.Load()
	require.NoError(t, err)
	tracker := rotation.NewTracker()
	return NewEngine(store, tracker, testLogger(), category, brand, "test brief", DefaultLimits()), tracker
}

func TestValidatePersona(t *testing.T) {
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")

	tests := []struct {
		name       string
		in         string
		wantOK     bool
		wantCanon  string
		reasonPart string
	}{
		{"valid pool persona", "Backpacker", true, "Backpacker", ""},
		{"canonicalized variant", "romantic voyager", true, "Romantic Voyager", ""},
		{"anchor rejected", "RJM Travel & Hospitality", false, "", "anchor"},
		{"rjm prefix rejected", "RJM Made Up", false, "", "anchor"},
		{"generational rejected", "Gen Z–Prompted", false, "", "generational"},
		{"deprecated rejected", "Adventure Seeker", false, "", "sunset"},
		{"wrong category rejected", "Takeout Guru", false, "", "not valid for category"},
		{"empty rejected", "", false, "", "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, reason, ok := e.ValidatePersona(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantCanon, canonical)
			} else {
				assert.Contains(t, reason, tt.reasonPart)
			}
		})
	}
}

func TestValidatePersonasDedupes(t *testing.T) {
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")

	valid := e.ValidatePersonas([]string{
		"Backpacker",
		"backpacker",
		"Adventure Seeker",
		"Planner",
	})
	assert.Equal(t, []string{"Backpacker", "Planner"}, valid)

	rejections := e.Rejections()
	require.Len(t, rejections, 1)
	assert.Equal(t, "Adventure Seeker", rejections[0].Name)
}

func TestDualAnchorBrandWidensPool(t *testing.T) {
	e, _ := newTestEngine(t, "Sports & Fitness", "Nike")

	// Retail pool personas are allowed for Nike even in the Sports category.
	canonical, _, ok := e.ValidatePersona("Bargain Hunter")
	require.True(t, ok)
	assert.Equal(t, "Bargain Hunter", canonical)

	assert.Equal(t, []string{"RJM Sports & Fitness", "RJM Retail & E-Commerce"}, e.Anchors())
}

func TestSelectHighlightsHotCap(t *testing.T) {
	t.Run("clustered category caps at one", func(t *testing.T) {
		e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")
		available := []string{"Romantic Voyager", "Retreat Seeker", "Island Hopper", "Bourdain Mode", "Planner"}

		selected := e.SelectHighlights(available, 4)
		require.Len(t, selected, 3)

		hot := 0
		for _, name := range selected {
			if name == "Romantic Voyager" || name == "Retreat Seeker" || name == "Island Hopper" {
				hot++
			}
		}
		assert.Equal(t, 1, hot)
	})

	t.Run("default cap is two", func(t *testing.T) {
		e, _ := newTestEngine(t, "QSR", "Wendy's")
		available := []string{"Takeout Guru", "Food Truckin'", "Caffeine Fiend", "Gamer", "Sneakerhead"}

		selected := e.SelectHighlights(available, 5)
		require.Len(t, selected, 4)

		hot := 0
		for _, name := range selected {
			if name == "Takeout Guru" || name == "Food Truckin'" || name == "Caffeine Fiend" {
				hot++
			}
		}
		assert.Equal(t, 2, hot)
	})
}

func TestSelectHighlightsPrefersFresh(t *testing.T) {
	e, tracker := newTestEngine(t, "Travel & Hospitality", "Delta")
	tracker.RegisterHighlights("Bourdain Mode")

	selected := e.SelectHighlights([]string{"Bourdain Mode", "Planner"}, 1)
	require.Len(t, selected, 1)
	assert.Equal(t, "Planner", selected[0])
}

func TestInsightsNeverOverlapHighlights(t *testing.T) {
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")
	pool := []string{"Backpacker", "Planner", "Bourdain Mode", "Faith", "Stargazer", "Nature Lover"}

	highlights := e.SelectHighlights(pool, 3)
	insights, err := e.SelectForInsights(pool, 2)
	require.NoError(t, err)

	for _, h := range highlights {
		assert.NotContains(t, insights, h)
	}
	assert.NotEmpty(t, insights)
}

func TestSelectForInsightsPoolExhausted(t *testing.T) {
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")
	e.SelectHighlights([]string{"Bourdain Mode", "Planner"}, 2)

	_, err := e.SelectForInsights([]string{"Bourdain Mode", "Planner"}, 2)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestBuildPortfolio(t *testing.T) {
	e, _ := newTestEngine(t, "Travel & Hospitality", "Delta")

	portfolio := e.BuildPortfolio([]string{"Backpacker", "Adventure Seeker", "RJM Auto", "Backpacker"}, 0)
	assert.Len(t, portfolio, 15)
	assert.Equal(t, "Backpacker", portfolio[0])

	seen := map[string]bool{}
	for _, name := range portfolio {
		assert.False(t, seen[name], "duplicate %q", name)
		seen[name] = true
		assert.False(t, e.store.IsDeprecated(name))
		assert.False(t, e.store.IsAnchor(name))
	}
	assert.GreaterOrEqual(t, len(e.Selection().PhylumDistribution()), 3)
}

func TestBuildPortfolioPrefersFresh(t *testing.T) {
	store, err := canon.Load()
	require.NoError(t, err)
	tracker := rotation.NewTracker()

	first := NewEngine(store, tracker, testLogger(), "Travel & Hospitality", "Delta", "brief", DefaultLimits()).
		BuildPortfolio(nil, 0)
	second := NewEngine(store, tracker, testLogger(), "Travel & Hospitality", "Delta", "brief", DefaultLimits()).
		BuildPortfolio(nil, 0)

	assert.NotEqual(t, first, second, "back-to-back portfolios should rotate")
}

func TestSelectGenerational(t *testing.T) {
	e, _ := newTestEngine(t, "CPG", "Tide")

	selected := e.SelectGenerational([]string{"Gen-Z Prompted", "Millennial Wanderlust", "not a segment"})
	require.Len(t, selected, 4)
	assert.Contains(t, selected, "Gen Z–Prompted")
	assert.Contains(t, selected, "Millennial–Wanderlust")

	cohorts := map[string]bool{}
	for _, seg := range selected {
		cohort, ok := e.store.CohortOf(seg)
		require.True(t, ok, "unknown segment %q", seg)
		assert.False(t, cohorts[cohort], "cohort %q repeated", cohort)
		cohorts[cohort] = true
	}
	assert.Len(t, cohorts, 4)
}

func TestSelectGenerationalRotates(t *testing.T) {
	store, err := canon.Load()
	require.NoError(t, err)
	tracker := rotation.NewTracker()

	first := NewEngine(store, tracker, testLogger(), "CPG", "Tide", "brief", DefaultLimits()).
		SelectGenerational(nil)
	second := NewEngine(store, tracker, testLogger(), "CPG", "Tide", "brief", DefaultLimits()).
		SelectGenerational(nil)

	for i := range first {
		assert.NotEqual(t, first[i], second[i], "cohort slot %d should rotate", i)
	}
}

func TestFullPortfolio(t *testing.T) {
	e, _ := newTestEngine(t, "QSR", "Wendy's")

	portfolio := e.BuildPortfolio(nil, 0)
	generational := e.SelectGenerational(nil)
	full := e.FullPortfolio()

	assert.Len(t, full, len(portfolio)+2+len(generational))
	assert.Contains(t, full, "RJM QSR")
	assert.Contains(t, full, "RJM Culinary & Dining")
}
