package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/generate"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/program"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
)

type fakeGenerator struct {
	set     *generate.CandidateSet
	err     error
	lastReq generate.BriefRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req generate.BriefRequest) (*generate.CandidateSet, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type fakeClassifier struct {
	category string
	err      error
}

func (f *fakeClassifier) ClassifyCategory(ctx context.Context, brand, brief string, categories []string) (string, error) {
	return f.category, f.err
}

func travelCandidates() *generate.CandidateSet {
	return &generate.CandidateSet{
		Personas: []generate.PersonaCandidate{
			{Name: "Backpacker"},
			{Name: "Planner"},
			{Name: "Bourdain Mode"},
			{Name: "Adventure Seeker"},
		},
		Generational: []generate.GenerationalCandidate{
			{Name: "Millennial–Wanderlust", Cohort: "Millennial"},
		},
		Insights: []string{
			"Their itineraries read like a 'Planner' wrote them.",
			"Food is the reason they travel: 'Bourdain Mode'.",
		},
	}
}

func baseOptions(t *testing.T, gen generate.Generator) Options {
	t.Helper()
	store, err := canon.Load()
	require.NoError(t, err)
	return Options{
		Brand:     "Delta",
		Brief:     "Summer campaign for long-haul leisure routes to the Mediterranean and beyond.",
		Category:  "Travel & Hospitality",
		Generator: gen,
		Store:     store,
		Tracker:   rotation.NewTracker(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRunProducesProgram(t *testing.T) {
	gen := &fakeGenerator{set: travelCandidates()}
	opts := baseOptions(t, gen)

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "Delta", p.Brand)
	assert.Equal(t, "Travel & Hospitality", p.Category)
	assert.Len(t, p.Portfolio, 15)
	assert.Equal(t, "Backpacker", p.Portfolio[0].Name)
	assert.Equal(t, []string{"RJM Travel & Hospitality"}, p.Anchors)
	assert.Len(t, p.Generational, 4)
	assert.Len(t, p.Highlights, 3)
	assert.Len(t, p.Insights, 2)
	assert.GreaterOrEqual(t, p.Diversity.DistinctPhyla, 3)
	assert.False(t, p.GeneratedAt.IsZero())

	// "Adventure Seeker" is sunset and must surface as a rejection.
	require.NotEmpty(t, p.Rejections)
	assert.Equal(t, "Adventure Seeker", p.Rejections[0].Name)

	// The generator saw the category pool, capped for the prompt upstream.
	assert.NotEmpty(t, gen.lastReq.Pool)
	assert.Equal(t, "Travel & Hospitality", gen.lastReq.Category)
}

func TestRunInsightsNeverNameHighlights(t *testing.T) {
	gen := &fakeGenerator{set: travelCandidates()}
	opts := baseOptions(t, gen)

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)

	highlightSet := map[string]bool{}
	for _, h := range p.Highlights {
		highlightSet[h] = true
	}
	for _, ins := range p.Insights {
		if ins.Persona != "" {
			assert.False(t, highlightSet[ins.Persona], "insight persona %q is a highlight", ins.Persona)
		}
	}
}

func TestRunBriefTooShort(t *testing.T) {
	opts := baseOptions(t, &fakeGenerator{set: travelCandidates()})
	opts.Brief = "Too short"

	_, err := Run(context.Background(), opts)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ingest", perr.Stage)
}

func TestRunGeneratorFailure(t *testing.T) {
	genErr := errors.New("model unavailable")
	opts := baseOptions(t, &fakeGenerator{err: genErr})

	_, err := Run(context.Background(), opts)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "generate", perr.Stage)
	assert.True(t, errors.Is(err, genErr))
}

func TestRunUnknownCategory(t *testing.T) {
	opts := baseOptions(t, &fakeGenerator{set: travelCandidates()})
	opts.Category = "Interpretive Dance"

	_, err := Run(context.Background(), opts)
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "category", perr.Stage)
}

func TestResolveCategory(t *testing.T) {
	store, err := canon.Load()
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("explicit flag is case insensitive", func(t *testing.T) {
		cat, err := resolveCategory(context.Background(), Options{Category: "qsr", Store: store}, "any brief", log)
		require.NoError(t, err)
		assert.Equal(t, "QSR", cat)
	})

	t.Run("brand override wins over classifier", func(t *testing.T) {
		opts := Options{Brand: "Whole Foods", Store: store, Classifier: &fakeClassifier{category: "CPG"}}
		cat, err := resolveCategory(context.Background(), opts, "organic grocery campaign", log)
		require.NoError(t, err)
		assert.Equal(t, "Retail & E-Commerce", cat)
	})

	t.Run("classifier result used", func(t *testing.T) {
		opts := Options{Brand: "Acme Getaways", Store: store, Classifier: &fakeClassifier{category: "Travel & Hospitality"}}
		cat, err := resolveCategory(context.Background(), opts, "island resort launch", log)
		require.NoError(t, err)
		assert.Equal(t, "Travel & Hospitality", cat)
	})

	t.Run("classifier failure falls back to keywords", func(t *testing.T) {
		opts := Options{Brand: "Acme", Store: store, Classifier: &fakeClassifier{err: errors.New("api down")}}
		cat, err := resolveCategory(context.Background(), opts, "resort hotel getaway for vacation travelers", log)
		require.NoError(t, err)
		assert.Equal(t, "Travel & Hospitality", cat)
	})
}

func TestRunLocalOverlay(t *testing.T) {
	gen := &fakeGenerator{set: travelCandidates()}
	opts := baseOptions(t, gen)
	opts.Brief = "Regional awareness push targeting the Austin DMA with airport and transit placements."

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "Austin Culture", p.LocalSegment)
}

func TestRunSavesArtifact(t *testing.T) {
	gen := &fakeGenerator{set: travelCandidates()}
	opts := baseOptions(t, gen)
	opts.Output = filepath.Join(t.TempDir(), "program.json")

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)

	loaded, err := program.Load(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, p.Brand, loaded.Brand)
	assert.Len(t, loaded.Portfolio, len(p.Portfolio))
}

func TestRunCandidatesOnly(t *testing.T) {
	gen := &fakeGenerator{set: travelCandidates()}
	opts := baseOptions(t, gen)
	opts.CandidatesOnly = true
	opts.Output = filepath.Join(t.TempDir(), "candidates.json")

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Nil(t, p)

	set, err := generate.LoadCandidates(opts.Output)
	require.NoError(t, err)
	assert.Equal(t, []string{"Backpacker", "Planner", "Bourdain Mode", "Adventure Seeker"}, set.PersonaNames())
}

func TestRunFromCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, generate.SaveCandidates(travelCandidates(), path))

	opts := baseOptions(t, nil)
	opts.FromCandidates = path

	p, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, p.Portfolio, 15)
}
