// Package pipeline runs a brief through ingestion, category resolution,
// candidate generation, and governance to produce a persona program.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/brief"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/generate"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/governance"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/program"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/progress"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
)

// minBriefWords guards against briefs too thin to ground persona selection.
const minBriefWords = 5

type Options struct {
	Brand    string
	Brief    string
	Category string
	Model    string

	PersonaCount   int
	HighlightCount int
	InsightCount   int

	Output         string
	CandidatesOnly bool
	FromCandidates string

	Generator  generate.Generator
	Classifier generate.CategoryClassifier
	Store      *canon.Store
	Tracker    *rotation.Tracker
	Logger     *slog.Logger
	Progress   progress.Callback

	Verbose bool
}

type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Run produces a governed persona program for one brief. With
// CandidatesOnly set it saves the raw candidate set to Output and returns a
// nil program.
func Run(ctx context.Context, opts Options) (*program.Program, error) {
	start := time.Now()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	report := opts.Progress
	if report == nil {
		report = progress.NopCallback
	}
	if opts.PersonaCount <= 0 {
		opts.PersonaCount = governance.DefaultLimits().TargetPortfolio
	}
	if opts.HighlightCount <= 0 {
		opts.HighlightCount = governance.DefaultLimits().HighlightCount
	}
	if opts.InsightCount <= 0 {
		opts.InsightCount = governance.DefaultLimits().InsightCount
	}

	// Stage 1: ingest the brief.
	report(progress.NewEvent(progress.StageIngest, "Reading brief...", 0.05, start))
	b, err := brief.Load(ctx, opts.Brief)
	if err != nil {
		return nil, &PipelineError{Stage: "ingest", Message: "failed to read brief", Err: err}
	}
	if b.WordCount < minBriefWords {
		return nil, &PipelineError{
			Stage:   "ingest",
			Message: fmt.Sprintf("brief too short (%d words), need at least %d words to select personas", b.WordCount, minBriefWords),
		}
	}
	log.Info("brief ingested",
		"source", b.Source,
		"words", b.WordCount,
		"title", b.Title)

	// Stage 2: resolve the category.
	report(progress.NewEvent(progress.StageCategory, "Resolving category...", 0.15, start))
	category, err := resolveCategory(ctx, opts, b.Text, log)
	if err != nil {
		return nil, &PipelineError{Stage: "category", Message: "failed to resolve category", Err: err}
	}
	log.Info("category resolved", "category", category, "brand", opts.Brand)

	// Overlay detection happens on the raw brief, before generation.
	var localSegment string
	if opts.Store.IsLocalBrief(b.Text) {
		if seg, ok := opts.Store.LocalSegmentFor(b.Text); ok {
			localSegment = seg
		}
	}
	var lineage string
	var expressions []string
	if l, ok := opts.Store.DetectLineage(b.Text); ok {
		lineage = l
		expressions = append(expressions, opts.Store.ExpressionsForLineage(l)...)
	}

	// Stage 3: candidate generation.
	report(progress.NewEvent(progress.StageGenerate, "Generating candidates...", 0.30, start))
	set, err := obtainCandidates(ctx, opts, b, category)
	if err != nil {
		return nil, &PipelineError{Stage: "generate", Message: "failed to generate candidates", Err: err}
	}
	log.Info("candidates ready",
		"personas", len(set.Personas),
		"generational", len(set.Generational),
		"insights", len(set.Insights))

	if opts.CandidatesOnly {
		if err := generate.SaveCandidates(set, opts.Output); err != nil {
			return nil, &PipelineError{Stage: "generate", Message: "failed to save candidates", Err: err}
		}
		report(progress.Event{Stage: progress.StageComplete, Message: "Candidates saved", OutputFile: opts.Output})
		return nil, nil
	}

	// Stage 4: governance.
	report(progress.NewEvent(progress.StageGovern, "Applying governance...", 0.60, start))
	engine := governance.NewEngine(opts.Store, opts.Tracker, log, category, opts.Brand, b.Text, governance.DefaultLimits())

	portfolio := engine.BuildPortfolio(set.PersonaNames(), opts.PersonaCount)
	generational := engine.SelectGenerational(set.GenerationalNames())
	highlights := engine.SelectHighlights(portfolio, opts.HighlightCount)
	insights, err := resolveInsights(engine, set.Insights, portfolio, opts.InsightCount, log)
	if err != nil {
		return nil, &PipelineError{Stage: "govern", Message: "could not produce insights; retry with a broader brief or a different category", Err: err}
	}

	p := assembleProgram(opts, engine, b, category, portfolio, generational, highlights, insights, localSegment, lineage, expressions)

	// Stage 5: save the artifact.
	if opts.Output != "" {
		report(progress.NewEvent(progress.StageSave, "Saving program...", 0.90, start))
		if err := program.Save(p, opts.Output); err != nil {
			return nil, &PipelineError{Stage: "save", Message: "failed to save program", Err: err}
		}
	}

	report(progress.Event{
		Stage:      progress.StageComplete,
		Message:    fmt.Sprintf("Program ready: %d personas, %d highlights, %d insights", len(p.Portfolio), len(p.Highlights), len(p.Insights)),
		Category:   category,
		OutputFile: opts.Output,
		Elapsed:    time.Since(start),
	})
	log.Info("program complete",
		"brand", opts.Brand,
		"category", category,
		"portfolio", len(p.Portfolio),
		"rejections", len(p.Rejections),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return p, nil
}

// resolveCategory picks the program category: explicit flag, brand override,
// model classifier, then keyword inference.
func resolveCategory(ctx context.Context, opts Options, briefText string, log *slog.Logger) (string, error) {
	if opts.Category != "" {
		for _, cat := range opts.Store.Categories() {
			if strings.EqualFold(cat, opts.Category) {
				return cat, nil
			}
		}
		return "", fmt.Errorf("unknown category %q", opts.Category)
	}

	if cat, ok := opts.Store.BrandOverride(opts.Brand); ok {
		return cat, nil
	}

	if opts.Classifier != nil {
		cat, err := opts.Classifier.ClassifyCategory(ctx, opts.Brand, briefText, opts.Store.Categories())
		if err == nil {
			return cat, nil
		}
		log.Warn("category classifier failed, falling back to keyword inference", "error", err)
	}

	return opts.Store.InferCategory(opts.Brand + " " + briefText), nil
}

func obtainCandidates(ctx context.Context, opts Options, b *brief.Brief, category string) (*generate.CandidateSet, error) {
	if opts.FromCandidates != "" {
		return generate.LoadCandidates(opts.FromCandidates)
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	return opts.Generator.Generate(ctx, generate.BriefRequest{
		Brand:          opts.Brand,
		Brief:          b.Text,
		Category:       category,
		Pool:           opts.Store.PoolFor(category, opts.Brand),
		PersonaCount:   opts.PersonaCount,
		HighlightCount: opts.HighlightCount,
		InsightCount:   opts.InsightCount,
	})
}

// resolveInsights validates and repairs the proposed insight sentences,
// then backfills missing slots with governed persona picks. A program with
// zero producible insights is a failure.
func resolveInsights(engine *governance.Engine, proposed, portfolio []string, count int, log *slog.Logger) ([]program.Insight, error) {
	var insights []program.Insight
	for _, text := range proposed {
		if len(insights) >= count {
			break
		}
		fixed, persona, repaired, ok := engine.ResolveInsight(text)
		if !ok {
			log.Warn("dropped unrepairable insight", "text", text)
			continue
		}
		insights = append(insights, program.Insight{Text: fixed, Persona: persona, Repaired: repaired})
	}

	if len(insights) < count {
		picks, err := engine.SelectForInsights(portfolio, count-len(insights))
		if err != nil {
			if len(insights) == 0 && errors.Is(err, governance.ErrPoolExhausted) {
				return nil, err
			}
		}
		for _, name := range picks {
			insights = append(insights, program.Insight{
				Text:    fmt.Sprintf("Signals in this brief cluster around the '%s' persona.", name),
				Persona: name,
			})
		}
	}
	return insights, nil
}

func assembleProgram(opts Options, engine *governance.Engine, b *brief.Brief, category string, portfolio, generational, highlights []string, insights []program.Insight, localSegment, lineage string, expressions []string) *program.Program {
	entries := make([]program.PortfolioEntry, 0, len(portfolio))
	for _, name := range portfolio {
		phylum, _ := opts.Store.PhylumOf(name)
		entries = append(entries, program.PortfolioEntry{Name: name, Phylum: phylum})
	}

	genEntries := make([]program.GenerationalEntry, 0, len(generational))
	for _, name := range generational {
		cohort, _ := opts.Store.CohortOf(name)
		desc, _ := opts.Store.GenerationalDescription(name)
		genEntries = append(genEntries, program.GenerationalEntry{
			Name:        name,
			Cohort:      cohort,
			Description: desc,
		})
	}

	var rejections []program.Rejection
	for _, r := range engine.Rejections() {
		rejections = append(rejections, program.Rejection{Name: r.Name, Reason: r.Reason})
	}

	sel := engine.Selection()
	return &program.Program{
		Brand:        opts.Brand,
		BriefTitle:   b.Title,
		BriefSource:  b.Source,
		Category:     category,
		Model:        opts.Model,
		Portfolio:    entries,
		Anchors:      engine.Anchors(),
		Generational: genEntries,
		Highlights:   highlights,
		Insights:     insights,
		LocalSegment: localSegment,
		Lineage:      lineage,
		Expressions:  expressions,
		Diversity: program.Diversity{
			Histogram:     sel.PhylumDistribution(),
			DominantRatio: sel.DominantPhylumRatio(),
			DistinctPhyla: len(sel.PhylumDistribution()),
		},
		Rejections:  rejections,
		GeneratedAt: time.Now().UTC(),
	}
}
