package brief

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSource(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "brief.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("launch brief"), 0644))

	tests := []struct {
		name  string
		input string
		want  SourceType
	}{
		{"https url", "https://example.com/brief", SourceURL},
		{"http url", "http://example.com/brief", SourceURL},
		{"pdf path", "campaign.pdf", SourcePDF},
		{"pdf path uppercase", "CAMPAIGN.PDF", SourcePDF},
		{"existing file", textPath, SourceFile},
		{"inline prose", "Launch the new summer menu across the Southeast.", SourceInline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSource(tt.input))
		})
	}
}

func TestInlineLoader(t *testing.T) {
	b, err := Load(context.Background(), "Back to school push for value-focused parents.\nSecondary detail.")
	require.NoError(t, err)

	assert.Equal(t, "inline", b.Source)
	assert.Equal(t, "Back to school push for value-focused parents.", b.Title)
	assert.Equal(t, 9, b.WordCount)
}

func TestInlineLoaderRejectsEmpty(t *testing.T) {
	_, err := Load(context.Background(), "   \n  ")
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.txt")
	content := "Regional rollout brief\n\nTarget the Austin market with outdoor placements."
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	b, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "brief.txt", b.Source)
	assert.Equal(t, "Regional rollout brief", b.Title)
	assert.Equal(t, content, b.Text)
}

func TestFileLoaderRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	// A directory path with no extension detects as inline, so call the
	// loader directly.
	_, err := (&FileLoader{}).Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestTitleFromText(t *testing.T) {
	long := strings.Repeat("x", 100)
	assert.Equal(t, long[:80]+"...", titleFromText(long, 80))
	assert.Equal(t, "Untitled", titleFromText("\n\n", 80))
	assert.Equal(t, "First line", titleFromText("First line\nsecond line", 80))
}
