package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(StageIDTrain, 4)
	assert.Equal(t, "calculating...", p.GetETA())

	p.StartTime = time.Now().Add(-2 * time.Second)
	p.Update(2, "Epoch 2/4")

	current, total, pct, msg := p.GetProgress()
	assert.Equal(t, 2, current)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 50.0, pct, 1e-9)
	assert.Equal(t, "Epoch 2/4", msg)
	assert.Equal(t, "2 seconds", p.GetETA())
	assert.False(t, p.IsComplete())

	p.Update(4, "")
	assert.True(t, p.IsComplete())
}

func TestCalculateRetryDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateRetryDelay(1, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateRetryDelay(2, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateRetryDelay(3, cfg))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "30 seconds", formatSeconds(30))
	assert.Equal(t, "1.5 minutes", formatSeconds(90))
	assert.Equal(t, "2.0 hours", formatSeconds(7200))
}
