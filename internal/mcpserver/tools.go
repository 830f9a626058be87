package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rjm-personas-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "generate_program",
			Description: "Generate a governed persona program for a brand brief. Starts an async task and returns a program ID. Use get_program to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"brand": map[string]any{
						"type":        "string",
						"description": "Brand name the brief is for",
					},
					"brief": map[string]any{
						"type":        "string",
						"description": "Campaign brief: inline text, a URL, or a PDF/text file path",
					},
					"category": map[string]any{
						"type":        "string",
						"description": "Brand category override (e.g. 'Travel & Hospitality', 'QSR'). Auto-detected when omitted.",
					},
					"model": map[string]any{
						"type":        "string",
						"description": "Candidate generation model: haiku, sonnet, gemini-flash, gemini-pro, nova-lite",
						"default":     "haiku",
					},
					"persona_count": map[string]any{
						"type":        "integer",
						"description": "Number of personas in the portfolio (default 15)",
					},
					"highlight_count": map[string]any{
						"type":        "integer",
						"description": "Number of highlighted personas (default 3)",
					},
					"insight_count": map[string]any{
						"type":        "integer",
						"description": "Number of brief insights (default 2)",
					},
					"anthropic_api_key": map[string]any{
						"type":        "string",
						"description": "Your Anthropic API key (required for haiku/sonnet models if server has no default key)",
					},
					"gemini_api_key": map[string]any{
						"type":        "string",
						"description": "Your Gemini API key (required for gemini-flash/pro models if server has no default key)",
					},
				},
				Required: []string{"brand", "brief"},
			},
		},
		{
			Name:        "get_program",
			Description: "Get the status and details of a persona program by ID. Use this to check on a running generation or retrieve a completed program's artifact URL.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"program_id": map[string]any{
						"type":        "string",
						"description": "The program ID returned from generate_program",
					},
				},
				Required: []string{"program_id"},
			},
		},
		{
			Name:        "list_programs",
			Description: "List all generated persona programs, newest first. Returns program IDs, brands, status, and artifact URLs.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_programs call",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks *TaskManager
	store *Store
	log   *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(tasks *TaskManager, store *Store, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: store, log: logger}
}

// HandleGenerateProgram starts a program generation task.
func (h *Handlers) HandleGenerateProgram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_program")
	defer span.End()

	genReq := GenerateRequest{
		Brand:           mcp.ParseString(req, "brand", ""),
		Brief:           mcp.ParseString(req, "brief", ""),
		Category:        mcp.ParseString(req, "category", ""),
		Model:           mcp.ParseString(req, "model", "haiku"),
		PersonaCount:    parseIntParam(req, "persona_count", 0),
		HighlightCount:  parseIntParam(req, "highlight_count", 0),
		InsightCount:    parseIntParam(req, "insight_count", 0),
		AnthropicAPIKey: mcp.ParseString(req, "anthropic_api_key", ""),
		GeminiAPIKey:    mcp.ParseString(req, "gemini_api_key", ""),
		Owner:           "mcp-server",
	}

	span.SetAttributes(
		attribute.String("brand", genReq.Brand),
		attribute.String("model", genReq.Model),
		attribute.String("category", genReq.Category),
	)

	if genReq.Brand == "" {
		span.SetStatus(codes.Error, "missing brand")
		return mcp.NewToolResultError("brand is required"), nil
	}
	if genReq.Brief == "" {
		span.SetStatus(codes.Error, "missing brief")
		return mcp.NewToolResultError("brief is required"), nil
	}

	id, err := h.tasks.StartTask(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	span.SetAttributes(attribute.String("program_id", id))
	h.log.InfoContext(ctx, "Program generation started", "program_id", id, "brand", genReq.Brand, "model", genReq.Model)

	result := map[string]any{
		"program_id": id,
		"status":     "submitted",
		"message":    "Program generation started. Use get_program with this program_id to check progress.",
	}
	return jsonResult(result)
}

// HandleGetProgram returns program details.
func (h *Handlers) HandleGetProgram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_program")
	defer span.End()

	id := mcp.ParseString(req, "program_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing program_id")
		return mcp.NewToolResultError("program_id is required"), nil
	}

	span.SetAttributes(attribute.String("program_id", id))

	item, err := h.store.GetProgram(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get program failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get program: %v", err)), nil
	}
	if item == nil {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("program %s not found", id)), nil
	}

	result := map[string]any{
		"program_id":       item.ProgramID,
		"brand":            item.Brand,
		"status":           item.Status,
		"progress_percent": item.ProgressPercent,
		"stage_message":    item.StageMessage,
		"created_at":       item.CreatedAt,
	}

	if item.BriefTitle != "" {
		result["brief_title"] = item.BriefTitle
	}
	if item.Category != "" {
		result["category"] = item.Category
	}
	if item.ProgramURL != "" {
		result["program_url"] = item.ProgramURL
	}
	if item.PersonaCount > 0 {
		result["persona_count"] = item.PersonaCount
	}
	if item.InsightCount > 0 {
		result["insight_count"] = item.InsightCount
	}
	if item.ErrorMessage != "" {
		result["error"] = item.ErrorMessage
	}
	if item.Model != "" {
		result["model"] = item.Model
	}
	if item.ViewCount > 0 {
		result["view_count"] = item.ViewCount
	}

	return jsonResult(result)
}

// HandleListPrograms returns a paginated list of programs.
func (h *Handlers) HandleListPrograms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_programs")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	cursor := mcp.ParseString(req, "cursor", "")

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, nextCursor, err := h.store.ListPrograms(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list programs failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list programs: %v", err)), nil
	}

	span.SetAttributes(attribute.Int("result_count", len(items)))

	programs := make([]map[string]any, 0, len(items))
	for _, item := range items {
		p := map[string]any{
			"program_id": item.ProgramID,
			"brand":      item.Brand,
			"status":     item.Status,
			"created_at": item.CreatedAt,
		}
		if item.Category != "" {
			p["category"] = item.Category
		}
		if item.ProgramURL != "" {
			p["program_url"] = item.ProgramURL
		}
		if item.PersonaCount > 0 {
			p["persona_count"] = item.PersonaCount
		}
		if item.ViewCount > 0 {
			p["view_count"] = item.ViewCount
		}
		programs = append(programs, p)
	}

	result := map[string]any{
		"programs": programs,
		"count":    len(programs),
	}
	if nextCursor != "" {
		result["next_cursor"] = nextCursor
	}

	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}
