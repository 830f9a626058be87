// Package brief turns a campaign brief source into plain text. A brief may
// arrive as a URL, a PDF path, a text file path, or inline prose.
package brief

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type SourceType string

const (
	SourceURL    SourceType = "url"
	SourcePDF    SourceType = "pdf"
	SourceFile   SourceType = "file"
	SourceInline SourceType = "inline"

	// maxBriefSize is the maximum allowed size for a brief source (25 MB).
	maxBriefSize = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

// Brief is the ingested campaign brief.
type Brief struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

type Loader interface {
	Load(ctx context.Context, source string) (*Brief, error)
}

// DetectSource classifies a brief input. Anything that is not a URL, a PDF
// path, or an existing file is treated as inline brief text.
func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return SourceFile
	}
	return SourceInline
}

// NewLoader returns the loader for an input's detected source type.
func NewLoader(input string) Loader {
	switch DetectSource(input) {
	case SourceURL:
		return &URLLoader{}
	case SourcePDF:
		return &PDFLoader{}
	case SourceFile:
		return &FileLoader{}
	default:
		return &InlineLoader{}
	}
}

// Load ingests a brief from any supported source.
func Load(ctx context.Context, input string) (*Brief, error) {
	return NewLoader(input).Load(ctx, input)
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxBriefSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxBriefSize/(1024*1024))
	}
	return nil
}
