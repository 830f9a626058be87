package rotation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterDedupes(t *testing.T) {
	tr := NewTracker()

	tr.RegisterPersonas("Backpacker", "Backpacker", "Chef")
	assert.True(t, tr.IsRecentPersona("Backpacker"))
	assert.True(t, tr.IsRecentPersona("Chef"))
	assert.Equal(t, 0, tr.PersonaPosition("Backpacker"))
	assert.Equal(t, 1, tr.PersonaPosition("Chef"))

	// Re-registering an existing name keeps its position.
	tr.RegisterPersonas("Backpacker")
	assert.Equal(t, 0, tr.PersonaPosition("Backpacker"))
}

func TestEvictsOldestWhenFull(t *testing.T) {
	tr := NewTracker()

	for i := 0; i < HighlightCapacity; i++ {
		tr.RegisterHighlights(fmt.Sprintf("persona-%d", i))
	}
	assert.True(t, tr.IsRecentHighlight("persona-0"))

	tr.RegisterHighlights("one-more")
	assert.False(t, tr.IsRecentHighlight("persona-0"))
	assert.True(t, tr.IsRecentHighlight("persona-1"))
	assert.True(t, tr.IsRecentHighlight("one-more"))
	assert.Equal(t, HighlightCapacity-1, tr.HighlightPosition("one-more"))
}

func TestLogsAreIndependent(t *testing.T) {
	tr := NewTracker()

	tr.RegisterHighlights("Romantic Voyager")
	assert.True(t, tr.IsRecentHighlight("Romantic Voyager"))
	assert.False(t, tr.IsRecentPersona("Romantic Voyager"))
	assert.False(t, tr.IsRecentGenerational("Romantic Voyager"))

	tr.RegisterGenerational("Gen Z–Prompted")
	assert.True(t, tr.IsRecentGenerational("Gen Z–Prompted"))
	assert.False(t, tr.IsRecentHighlight("Gen Z–Prompted"))
}

func TestPositionAbsent(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, -1, tr.HighlightPosition("nobody"))
	assert.Equal(t, -1, tr.PersonaPosition("nobody"))
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.RegisterPersonas("Chef")
	tr.RegisterGenerational("Boomer–Camelot")
	tr.RegisterHighlights("Chef")

	tr.Reset()
	assert.False(t, tr.IsRecentPersona("Chef"))
	assert.False(t, tr.IsRecentGenerational("Boomer–Camelot"))
	assert.False(t, tr.IsRecentHighlight("Chef"))

	// Usable after reset.
	tr.RegisterPersonas("Chef")
	assert.Equal(t, 0, tr.PersonaPosition("Chef"))
}
