package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEstimate(t *testing.T) {
	tests := []struct {
		name          string
		parallel      time.Duration
		workers       int
		segments      int
		wantSeq       float64
		wantSpeedup   float64
		wantEffective int
	}{
		{"workers capped by segments", 2 * time.Second, 8, 3, 6, 3, 3},
		{"segments exceed workers", 2 * time.Second, 4, 10, 8, 4, 4},
		{"single segment", 1500 * time.Millisecond, 8, 1, 1.5, 1, 1},
		{"zero duration", 0, 4, 4, 0, 1, 4},
		{"zero workers", time.Second, 0, 4, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := NewEstimate(tt.parallel, tt.workers, tt.segments)
			assert.InDelta(t, tt.parallel.Seconds(), est.ParallelSeconds, 1e-9)
			assert.InDelta(t, tt.wantSeq, est.EstimatedSequentialSeconds, 1e-9)
			assert.InDelta(t, tt.wantSpeedup, est.SpeedupRatio, 1e-9)
			assert.Equal(t, tt.wantEffective, est.EffectiveWorkers)
			assert.True(t, est.SequentialIsEstimate)
		})
	}
}

func TestEstimateSpeedupNeverBelowOne(t *testing.T) {
	for w := 1; w <= 16; w++ {
		for s := 1; s <= 16; s++ {
			for _, p := range []time.Duration{time.Millisecond, 37 * time.Millisecond, 3 * time.Second} {
				est := NewEstimate(p, w, s)
				assert.GreaterOrEqual(t, est.EstimatedSequentialSeconds, est.ParallelSeconds)
				assert.GreaterOrEqual(t, est.SpeedupRatio, 1.0)
			}
		}
	}
}
