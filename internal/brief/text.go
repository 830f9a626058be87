package brief

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InlineLoader wraps raw brief prose passed directly on the command line or
// in a request body.
type InlineLoader struct{}

func (l *InlineLoader) Load(ctx context.Context, source string) (*Brief, error) {
	text := strings.TrimSpace(source)
	if text == "" {
		return nil, fmt.Errorf("brief text is empty")
	}
	return &Brief{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    "inline",
		WordCount: wordCount(text),
	}, nil
}

type FileLoader struct{}

func (l *FileLoader) Load(ctx context.Context, source string) (*Brief, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", source, err)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %s is empty", source)
	}

	return &Brief{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    filepath.Base(source),
		WordCount: wordCount(text),
	}, nil
}
