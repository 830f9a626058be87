package generate

import "context"

// CategoryClassifier resolves a brand and brief to one canonical category.
// Callers fall back to keyword inference when classification errors.
type CategoryClassifier interface {
	ClassifyCategory(ctx context.Context, brand, brief string, categories []string) (string, error)
}
