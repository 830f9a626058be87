package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

const (
	temperature    = 0.7
	maxTokens      = 4096
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
)

type ClaudeGenerator struct {
	model  string
	apiKey string
}

func NewClaudeGenerator(model string) *ClaudeGenerator {
	return &ClaudeGenerator{model: model}
}

// NewClaudeGeneratorWithKey creates a generator with a per-request API key
// override instead of the process environment.
func NewClaudeGeneratorWithKey(model, apiKey string) *ClaudeGenerator {
	return &ClaudeGenerator{model: model, apiKey: apiKey}
}

func (g *ClaudeGenerator) newClient() anthropic.Client {
	if g.apiKey != "" {
		return anthropic.NewClient(option.WithAPIKey(g.apiKey))
	}
	return anthropic.NewClient()
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req BriefRequest) (*CandidateSet, error) {
	client := g.newClient()

	userPrompt := buildUserPrompt(req)

	modelID := claudeModels[g.model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(modelID),
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(temperature),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("Claude API error (attempt %d/%d): %w", attempt, maxRetries, err)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= time.Duration(backoffMult)
			}
			continue
		}

		text := extractText(message)
		if text == "" {
			lastErr = fmt.Errorf("empty response from Claude (attempt %d/%d)", attempt, maxRetries)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= time.Duration(backoffMult)
			}
			continue
		}

		set, err := parseCandidates(text)
		if err != nil {
			lastErr = fmt.Errorf("failed to parse candidate JSON (attempt %d/%d): %w", attempt, maxRetries, err)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= time.Duration(backoffMult)
			}
			continue
		}

		return set, nil
	}

	return nil, lastErr
}

// ClassifyCategory asks the model to pick the advertising category for a
// brand and brief from the canonical list. Responses that match a category
// exactly or by substring are accepted; anything else is an error so the
// caller can fall back to keyword inference.
func (g *ClaudeGenerator) ClassifyCategory(ctx context.Context, brand, brief string, categories []string) (string, error) {
	client := g.newClient()

	modelID := claudeModels[g.model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}

	sys := "You classify advertising briefs into exactly one category from this list:\n" +
		strings.Join(categories, "\n") +
		"\n\nRESPOND WITH ONLY THE CATEGORY NAME, nothing else."
	user := fmt.Sprintf("Brand: %s\nBrief: %s\n\nWhat is the correct advertising category for this brand?", brand, brief)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   50,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: sys},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude classify error: %w", err)
	}

	return matchCategory(extractText(message), categories)
}

func matchCategory(response string, categories []string) (string, error) {
	response = strings.TrimSpace(response)
	lowered := strings.ToLower(response)
	for _, cat := range categories {
		if strings.EqualFold(cat, response) {
			return cat, nil
		}
	}
	for _, cat := range categories {
		if strings.Contains(lowered, strings.ToLower(cat)) {
			return cat, nil
		}
	}
	return "", fmt.Errorf("unexpected category response %q", truncate(response, 100))
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
