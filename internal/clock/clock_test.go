package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Minute), c.Advance(time.Minute))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	deadline := start.Add(30 * time.Second)

	assert.Equal(t, 30*time.Second, Remaining(c, deadline))
	c.Advance(45 * time.Second)
	assert.Equal(t, time.Duration(0), Remaining(c, deadline))
}

func TestSystemIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System{}.Now().Location())
}
