package generate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCandidateJSON = `{
  "personas": [
    {"name": "Backpacker"},
    {"name": "Planner", "highlight": "They research every leg of the trip."}
  ],
  "generational": [
    {"name": "Millennial–Wanderlust", "cohort": "Millennial"}
  ],
  "insights": [
    "Their itineraries read like a 'Planner' wrote them."
  ]
}`

func TestParseCandidates(t *testing.T) {
	set, err := parseCandidates(validCandidateJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"Backpacker", "Planner"}, set.PersonaNames())
	assert.Equal(t, []string{"Millennial–Wanderlust"}, set.GenerationalNames())
	assert.Equal(t, "They research every leg of the trip.", set.Personas[1].Highlight)
	assert.Len(t, set.Insights, 1)
}

func TestParseCandidatesStripsWrapping(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"markdown fences", "```json\n" + validCandidateJSON + "\n```"},
		{"bare fences", "```\n" + validCandidateJSON + "\n```"},
		{"scratchpad prefix", "<scratchpad>\nplan the program here\n</scratchpad>\n" + validCandidateJSON},
		{"surrounding prose", "Here is the program:\n" + validCandidateJSON + "\nLet me know if you need changes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := parseCandidates(tt.text)
			require.NoError(t, err)
			assert.Equal(t, []string{"Backpacker", "Planner"}, set.PersonaNames())
		})
	}
}

func TestParseCandidatesErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		errPart string
	}{
		{"empty input", "", "no JSON content"},
		{"not json", "sorry, I can't produce that", "no JSON content"},
		{"malformed json", `{"personas": [}`, "invalid JSON"},
		{"no personas", `{"personas": [], "insights": []}`, "no personas"},
		{"blank persona name", `{"personas": [{"name": "  "}]}`, "empty name"},
		{"blank generational name", `{"personas": [{"name": "Planner"}], "generational": [{"name": ""}]}`, "empty name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCandidates(tt.text)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestBuildUserPromptCapsPool(t *testing.T) {
	pool := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		pool = append(pool, fmt.Sprintf("Persona %02d", i))
	}

	prompt := buildUserPrompt(BriefRequest{
		Brand:          "Delta",
		Brief:          "Summer routes to the Mediterranean",
		Category:       "Travel & Hospitality",
		Pool:           pool,
		PersonaCount:   15,
		HighlightCount: 3,
		InsightCount:   2,
	})

	assert.Contains(t, prompt, "Persona 29")
	assert.NotContains(t, prompt, "Persona 30")
	assert.Contains(t, prompt, "BRAND: Delta")
	assert.Contains(t, prompt, "15 personas, 3 marked as highlights, 2 insights")
}

func TestMatchCategory(t *testing.T) {
	categories := []string{"Travel & Hospitality", "QSR", "CPG"}

	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"exact", "QSR", "QSR", false},
		{"case insensitive", "qsr", "QSR", false},
		{"embedded in prose", "The category is Travel & Hospitality.", "Travel & Hospitality", false},
		{"whitespace", "  CPG \n", "CPG", false},
		{"unknown", "Fast Casual Dining", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchCategory(tt.response, categories)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystemPromptRequestsRawJSON(t *testing.T) {
	assert.True(t, strings.Contains(systemPrompt, "raw JSON only"))
	assert.True(t, strings.Contains(systemPrompt, "ALLOWED PERSONAS"))
}
