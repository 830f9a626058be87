package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/brief"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/generate"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/observability"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/pipeline"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/progress"
	"github.com/Usmanfawad/rjm-backend-sub000/internal/rotation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GenerateRequest holds parameters for a program generation task.
type GenerateRequest struct {
	Brand    string
	Brief    string // inline text, URL, or file path
	Category string // explicit category override (empty = auto-detect)
	Model    string
	Owner    string
	UserID   string // authenticated user ID (empty for anonymous)

	PersonaCount   int
	HighlightCount int
	InsightCount   int

	// Per-request API key overrides (BYOK). Empty = use server defaults.
	AnthropicAPIKey string
	GeminiAPIKey    string
}

// TaskManager manages async program generation tasks.
type TaskManager struct {
	store   *Store
	storage *Storage
	canon   *canon.Store
	tracker *rotation.Tracker
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	maxTasks int
	running  int
}

// NewTaskManager creates a task manager. All tasks share one canon store and
// one rotation tracker so repeat-brand requests rotate personas across jobs.
// baseCtx should be cancelled on SIGTERM so pipeline goroutines can clean up.
func NewTaskManager(store *Store, storage *Storage, canonStore *canon.Store, tracker *rotation.Tracker, maxTasks int, logger *slog.Logger, baseCtx context.Context) *TaskManager {
	if maxTasks <= 0 {
		maxTasks = 5
	}
	return &TaskManager{
		store:    store,
		storage:  storage,
		canon:    canonStore,
		tracker:  tracker,
		log:      logger,
		baseCtx:  baseCtx,
		cancels:  make(map[string]context.CancelFunc),
		maxTasks: maxTasks,
	}
}

// StartTask creates a DynamoDB record and starts pipeline.Run in a goroutine.
// Returns the program ID immediately.
func (tm *TaskManager) StartTask(ctx context.Context, req GenerateRequest) (string, error) {
	id, err := NewProgramID()
	if err != nil {
		return "", err
	}

	tm.mu.Lock()
	if tm.running >= tm.maxTasks {
		tm.mu.Unlock()
		return "", fmt.Errorf("max concurrent tasks reached (%d)", tm.maxTasks)
	}
	tm.running++

	// Derive goroutine context from baseCtx (cancelled on SIGTERM) rather than
	// the HTTP request context (cancelled when the response is sent).
	// Carry trace span from the HTTP request for observability linking.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithCancel(taskCtx)
	tm.cancels[id] = cancel
	tm.mu.Unlock()

	if err := tm.store.CreateJob(ctx, id, req.Owner, req.Brand, briefSourceLabel(req.Brief), req.Category, req.Model); err != nil {
		cancel()
		tm.mu.Lock()
		delete(tm.cancels, id)
		tm.running--
		tm.mu.Unlock()
		return "", fmt.Errorf("create job: %w", err)
	}

	go tm.runPipeline(taskCtx, id, req)

	return id, nil
}

// CancelTask cancels a running task.
func (tm *TaskManager) CancelTask(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
	}
}

func (tm *TaskManager) runPipeline(ctx context.Context, id string, req GenerateRequest) {
	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("program_id", id)),
	)
	defer span.End()

	defer func() {
		// On shutdown (SIGTERM), mark any in-progress job as failed so it doesn't
		// appear stuck in "generating" forever.
		if ctx.Err() != nil {
			failCtx, failCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer failCancel()
			tm.store.FailJob(failCtx, id, "server shutdown during processing")
			tm.log.Info("Marked job as failed due to shutdown", "program_id", id)
		}
		tm.mu.Lock()
		delete(tm.cancels, id)
		tm.running--
		tm.mu.Unlock()
	}()

	log := tm.log.With("program_id", id)

	// Throttle DynamoDB writes: max 1 per 2 seconds except on stage transitions.
	var lastWrite time.Time
	var lastStage progress.Stage

	progressCb := func(evt progress.Event) {
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		throttled := now.Sub(lastWrite) < 2*time.Second

		if throttled && !stageChanged {
			return
		}

		if stageChanged {
			fmt.Fprintf(os.Stderr, "[%s] stage=%s msg=%s pct=%.2f\n", id, evt.Stage, evt.Message, evt.Percent)
			span.AddEvent("stage_transition",
				trace.WithAttributes(
					attribute.String("stage", evt.Message),
					attribute.Float64("percent", evt.Percent),
				),
			)
		}

		status := mapStage(evt.Stage)
		if err := tm.store.UpdateProgress(ctx, id, status, evt.Percent, evt.Message); err != nil {
			log.WarnContext(ctx, "Update progress failed", "error", err)
		}
		lastWrite = now
		lastStage = evt.Stage
	}

	// Set up a temp working directory for this task
	workDir, err := os.MkdirTemp("", "rjm-mcp-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create work dir failed")
		tm.store.FailJob(ctx, id, fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	if req.Brand == "" {
		span.SetStatus(codes.Error, "no brand")
		tm.store.FailJob(ctx, id, "no brand provided")
		return
	}
	if req.Brief == "" {
		span.SetStatus(codes.Error, "no brief")
		tm.store.FailJob(ctx, id, "no brief provided")
		return
	}

	model := req.Model
	if model == "" {
		model = "haiku"
	}

	gen, err := newGenerator(model, req.AnthropicAPIKey, req.GeminiAPIKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generator init failed")
		tm.store.FailJob(ctx, id, err.Error())
		return
	}

	outputPath := workDir + "/" + id + ".json"

	opts := pipeline.Options{
		Brand:          req.Brand,
		Brief:          req.Brief,
		Category:       req.Category,
		Model:          model,
		PersonaCount:   req.PersonaCount,
		HighlightCount: req.HighlightCount,
		InsightCount:   req.InsightCount,
		Output:         outputPath,
		Generator:      gen,
		Classifier:     newClassifier(gen),
		Store:          tm.canon,
		Tracker:        tm.tracker,
		Logger:         log,
		Progress:       progressCb,
	}

	// Run the pipeline
	pipelineStart := time.Now()
	fmt.Fprintf(os.Stderr, "[%s] Pipeline starting: brand=%s model=%s category=%s\n",
		id, req.Brand, model, req.Category)
	log.InfoContext(ctx, "Pipeline starting",
		"brand", req.Brand, "model", model, "category", req.Category)
	prog, err := pipeline.Run(ctx, opts)
	if err != nil {
		elapsed := time.Since(pipelineStart).Round(time.Second)
		fmt.Fprintf(os.Stderr, "[%s] Pipeline FAILED after %s: %v\n", id, elapsed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		log.ErrorContext(ctx, "Pipeline failed", "error", err, "elapsed", elapsed.String())
		tm.store.FailJob(ctx, id, err.Error())
		return
	}

	// Upload to S3
	tm.store.UpdateProgress(ctx, id, JobStatusUploading, 0.95, "Uploading to S3...")
	programKey, programURL, err := tm.storage.Upload(ctx, id, outputPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		log.ErrorContext(ctx, "S3 upload failed", "error", err)
		tm.store.FailJob(ctx, id, fmt.Sprintf("upload to S3: %v", err))
		return
	}

	// Mark complete
	if err := tm.store.CompleteJob(ctx, id, prog.BriefTitle, prog.Category, programKey, programURL, len(prog.Portfolio), len(prog.Insights)); err != nil {
		log.ErrorContext(ctx, "Complete job failed", "error", err)
	}

	// Record usage metrics if authenticated
	if req.UserID != "" {
		inputChars := len(req.Brief)
		if err := tm.store.RecordUsage(ctx, id, req.UserID, model, inputChars, len(prog.Portfolio)); err != nil {
			log.WarnContext(ctx, "Record usage failed", "error", err)
		} else {
			cost := EstimateCost(model, inputChars)
			log.InfoContext(ctx, "Usage recorded", "user_id", req.UserID, "cost_usd", cost)
		}
	}

	elapsed := time.Since(pipelineStart).Round(time.Second)
	fmt.Fprintf(os.Stderr, "[%s] Pipeline COMPLETE in %s: category=%s personas=%d url=%s\n",
		id, elapsed, prog.Category, len(prog.Portfolio), programURL)
	span.SetAttributes(
		attribute.String("category", prog.Category),
		attribute.Int("persona_count", len(prog.Portfolio)),
		attribute.String("program_url", programURL),
	)
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Pipeline complete", "category", prog.Category, "program_url", programURL)
}

// newGenerator builds a candidate generator for the given model alias,
// applying per-request key overrides when present.
func newGenerator(model, anthropicKey, geminiKey string) (generate.Generator, error) {
	switch model {
	case "haiku", "sonnet":
		if anthropicKey != "" {
			return generate.NewClaudeGeneratorWithKey(model, anthropicKey), nil
		}
		return generate.NewClaudeGenerator(model), nil
	case "gemini-flash", "gemini-pro":
		if geminiKey != "" {
			return generate.NewGeminiGeneratorWithKey(model, geminiKey), nil
		}
		return generate.NewGeminiGenerator(model), nil
	case "nova-lite":
		return generate.NewNovaGenerator(model)
	default:
		return nil, fmt.Errorf("unknown model %q", model)
	}
}

// newClassifier returns the generator itself when it can classify briefs,
// otherwise nil so the pipeline falls back to keyword inference.
func newClassifier(gen generate.Generator) generate.CategoryClassifier {
	if c, ok := gen.(generate.CategoryClassifier); ok {
		return c
	}
	return nil
}

// briefSourceLabel reports how the brief will be ingested, for the job record.
func briefSourceLabel(input string) string {
	return string(brief.DetectSource(input))
}

// mapStage maps a pipeline progress stage to a job status.
func mapStage(stage progress.Stage) JobStatus {
	switch stage {
	case progress.StageIngest, progress.StageCategory:
		return JobStatusIngesting
	case progress.StageGenerate:
		return JobStatusGenerating
	case progress.StageGovern:
		return JobStatusGoverning
	case progress.StageSave:
		return JobStatusUploading
	case progress.StageComplete:
		return JobStatusComplete
	default:
		return JobStatusSubmitted
	}
}
