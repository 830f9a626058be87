package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/generate"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/pipeline"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/program"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/progress"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
	"github.com/spf13/cobra"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "rjm",
	Short: "Generate governed persona programs from brand briefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		flagTUI = true
		return runGenerate(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rjm %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a persona program from a brand brief",
	RunE:  runGenerate,
}

var canonCmd = &cobra.Command{
	Use:   "canon",
	Short: "Inspect the persona canon: categories, pools, generational segments",
	RunE:  runCanon,
}

var (
	flagBrand           string
	flagBrief           string
	flagCategory        string
	flagModel           string
	flagCount           int
	flagHighlights      int
	flagInsights        int
	flagOutput          string
	flagCandidatesOnly  bool
	flagFromCandidates  string
	flagVerbose         bool
	flagTUI             bool
	flagAnthropicAPIKey string
	flagGeminiAPIKey    string

	flagCanonCategory string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(canonCmd)
	generateCmd.Flags().StringVarP(&flagBrand, "brand", "b", "", "Brand the brief is for")
	generateCmd.Flags().StringVarP(&flagBrief, "brief", "i", "", "Campaign brief (URL, PDF path, text file path, or inline text)")
	generateCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Brand category override (auto-detected when omitted)")
	generateCmd.Flags().StringVarP(&flagModel, "model", "m", "haiku", "Candidate generation model: haiku, sonnet, gemini-flash, gemini-pro, nova-lite")
	generateCmd.Flags().IntVarP(&flagCount, "count", "n", 0, "Portfolio size (default 15)")
	generateCmd.Flags().IntVar(&flagHighlights, "highlights", 0, "Number of highlighted personas (default 3)")
	generateCmd.Flags().IntVar(&flagInsights, "insights", 0, "Number of brief insights (default 2)")
	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (JSON)")
	generateCmd.Flags().BoolVarP(&flagCandidatesOnly, "candidates-only", "S", false, "Output raw candidate JSON only, skip governance")
	generateCmd.Flags().StringVarP(&flagFromCandidates, "from-candidates", "f", "", "Govern an existing candidate JSON file instead of calling a model")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
	generateCmd.Flags().BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard for generation options")
	generateCmd.Flags().StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY env var)")
	generateCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
	canonCmd.Flags().StringVarP(&flagCanonCategory, "category", "c", "", "Show the persona pool for one category")
}

func Execute() error {
	return rootCmd.Execute()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Run interactive setup if requested
	if flagTUI {
		if err := runInteractiveSetup(); err != nil {
			return err
		}
	}

	// Validate flags
	if flagBrand == "" {
		return fmt.Errorf("--brand (-b) is required")
	}
	if flagBrief == "" {
		return fmt.Errorf("--brief (-i) is required")
	}
	if flagCandidatesOnly && flagFromCandidates != "" {
		return fmt.Errorf("--candidates-only and --from-candidates are mutually exclusive")
	}
	if flagCandidatesOnly && flagOutput == "" {
		return fmt.Errorf("--candidates-only requires --output (-o)")
	}

	// Validate model
	validModels := map[string]bool{"haiku": true, "sonnet": true, "gemini-flash": true, "gemini-pro": true, "nova-lite": true}
	if !validModels[flagModel] {
		return fmt.Errorf("invalid model %q: must be haiku, sonnet, gemini-flash, gemini-pro, or nova-lite", flagModel)
	}

	// Validate counts
	if flagCount < 0 || flagCount > 50 {
		return fmt.Errorf("invalid count %d: must be between 1 and 50", flagCount)
	}
	if flagCount > 0 && flagHighlights > flagCount {
		return fmt.Errorf("--highlights (%d) cannot exceed --count (%d)", flagHighlights, flagCount)
	}

	if flagFromCandidates == "" {
		if err := checkAPIKeys(flagModel); err != nil {
			return err
		}
	}

	store, err := canon.Load()
	if err != nil {
		return fmt.Errorf("load canon: %w", err)
	}

	opts := pipeline.Options{
		Brand:          flagBrand,
		Brief:          flagBrief,
		Category:       flagCategory,
		Model:          flagModel,
		PersonaCount:   flagCount,
		HighlightCount: flagHighlights,
		InsightCount:   flagInsights,
		Output:         flagOutput,
		CandidatesOnly: flagCandidatesOnly,
		FromCandidates: flagFromCandidates,
		Store:          store,
		Tracker:        rotation.NewTracker(),
		Logger:         newLogger(flagVerbose),
		Verbose:        flagVerbose,
	}

	if flagFromCandidates == "" {
		gen, err := newGenerator(flagModel)
		if err != nil {
			return err
		}
		opts.Generator = gen
		if c, ok := gen.(generate.CategoryClassifier); ok {
			opts.Classifier = c
		}
	}

	// Wire up progress bar when not in verbose mode
	if !flagVerbose {
		r := progress.NewBarRenderer(os.Stdout)
		defer r.Finish()
		opts.Progress = r.Handle
	}

	prog, err := pipeline.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if prog != nil && flagOutput == "" {
		printProgram(os.Stdout, prog)
	}
	return nil
}

func runCanon(cmd *cobra.Command, args []string) error {
	store, err := canon.Load()
	if err != nil {
		return fmt.Errorf("load canon: %w", err)
	}

	if flagCanonCategory != "" {
		var category string
		for _, cat := range store.Categories() {
			if strings.EqualFold(cat, flagCanonCategory) {
				category = cat
				break
			}
		}
		if category == "" {
			return fmt.Errorf("unknown category %q: must be one of %s", flagCanonCategory, strings.Join(store.Categories(), ", "))
		}

		fmt.Printf("\n%s\n%s\n", category, strings.Repeat("─", 50))
		fmt.Printf("%-28s %s\n", "PERSONA", "PHYLUM")
		for _, name := range store.PersonasForCategory(category) {
			phylum, _ := store.PhylumOf(name)
			fmt.Printf("%-28s %s\n", name, phylum)
		}
		fmt.Printf("\nAnchors: %s\n\n", strings.Join(store.AnchorsFor(category), ", "))
		return nil
	}

	fmt.Println("\nCategories:")
	for _, cat := range store.Categories() {
		fmt.Printf("  %-26s %d personas\n", cat, len(store.PersonasForCategory(cat)))
	}

	fmt.Println("\nGenerational segments:")
	for _, cohort := range store.Cohorts() {
		fmt.Printf("  %-14s %s\n", cohort, strings.Join(store.SegmentsForCohort(cohort), ", "))
	}

	fmt.Println("\nLineages:")
	for _, lineage := range store.Lineages() {
		fmt.Printf("  %-14s %s\n", lineage, strings.Join(store.ExpressionsForLineage(lineage), ", "))
	}
	fmt.Println()
	return nil
}

// printProgram renders a program summary to the terminal when no output file
// was requested.
func printProgram(w io.Writer, p *program.Program) {
	fmt.Fprintf(w, "\n%s (%s)\n%s\n", p.Brand, p.Category, strings.Repeat("─", 50))

	highlighted := make(map[string]bool, len(p.Highlights))
	for _, h := range p.Highlights {
		highlighted[h] = true
	}

	fmt.Fprintln(w, "Portfolio:")
	for _, entry := range p.Portfolio {
		marker := "  "
		if highlighted[entry.Name] {
			marker = "* "
		}
		fmt.Fprintf(w, "  %s%-26s %s\n", marker, entry.Name, entry.Phylum)
	}

	fmt.Fprintf(w, "\nAnchors: %s\n", strings.Join(p.Anchors, ", "))

	fmt.Fprintln(w, "\nGenerational:")
	for _, g := range p.Generational {
		fmt.Fprintf(w, "    %-26s %s\n", g.Name, g.Cohort)
	}

	fmt.Fprintln(w, "\nInsights:")
	for _, ins := range p.Insights {
		fmt.Fprintf(w, "    %s\n", ins.Text)
	}

	if p.LocalSegment != "" {
		fmt.Fprintf(w, "\nLocal segment: %s\n", p.LocalSegment)
	}
	if p.Lineage != "" {
		fmt.Fprintf(w, "Lineage: %s (%s)\n", p.Lineage, strings.Join(p.Expressions, ", "))
	}
	fmt.Fprintln(w)
}

func newGenerator(model string) (generate.Generator, error) {
	switch model {
	case "haiku", "sonnet":
		if flagAnthropicAPIKey != "" {
			return generate.NewClaudeGeneratorWithKey(model, flagAnthropicAPIKey), nil
		}
		return generate.NewClaudeGenerator(model), nil
	case "gemini-flash", "gemini-pro":
		if flagGeminiAPIKey != "" {
			return generate.NewGeminiGeneratorWithKey(model, flagGeminiAPIKey), nil
		}
		return generate.NewGeminiGenerator(model), nil
	default:
		return generate.NewNovaGenerator(model)
	}
}

func newLogger(verbose bool) *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func checkAPIKeys(model string) error {
	hasKey := func(envVar, flagVal string) bool {
		return flagVal != "" || os.Getenv(envVar) != ""
	}

	switch model {
	case "haiku", "sonnet":
		if !hasKey("ANTHROPIC_API_KEY", flagAnthropicAPIKey) {
			return fmt.Errorf("missing required environment variable ANTHROPIC_API_KEY\nYou can also pass it via --anthropic-api-key")
		}
	case "gemini-flash", "gemini-pro":
		if !hasKey("GEMINI_API_KEY", flagGeminiAPIKey) {
			return fmt.Errorf("missing required environment variable GEMINI_API_KEY\nYou can also pass it via --gemini-api-key")
		}
	case "nova-lite":
		// Uses AWS credentials (env vars, profile, or instance role)
	}
	return nil
}
