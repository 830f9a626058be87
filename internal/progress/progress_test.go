package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[....................]", renderBar(0, 20))
	assert.Equal(t, "[##########..........]", renderBar(0.5, 20))
	assert.Equal(t, "[####################]", renderBar(1, 20))

	// Out-of-range percents clamp
	assert.Equal(t, "[....................]", renderBar(-0.3, 20))
	assert.Equal(t, "[####################]", renderBar(1.7, 20))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", formatElapsed(0))
	assert.Equal(t, "0:09", formatElapsed(9*time.Second))
	assert.Equal(t, "1:05", formatElapsed(65*time.Second))
	assert.Equal(t, "12:00", formatElapsed(12*time.Minute))
}

func TestNewEvent(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	e := NewEvent(StageGenerate, "Generating candidates", 0.4, start)
	assert.Equal(t, StageGenerate, e.Stage)
	assert.Equal(t, "Generating candidates", e.Message)
	assert.InDelta(t, 0.4, e.Percent, 1e-9)
	assert.GreaterOrEqual(t, e.Elapsed, 2*time.Second)
}
