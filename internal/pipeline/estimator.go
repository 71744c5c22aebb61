package pipeline

import "time"

// Estimate compares a measured parallel run with an estimated sequential
// one. The sequential figure is derived, never measured: it assumes each of
// the effective workers would have taken the full parallel duration on its
// own, so EstimatedSequentialSeconds = ParallelSeconds * EffectiveWorkers.
type Estimate struct {
	ParallelSeconds            float64 `json:"parallel_duration_seconds"`
	EstimatedSequentialSeconds float64 `json:"estimated_sequential_duration_seconds"`
	SpeedupRatio               float64 `json:"speedup_ratio"`
	EffectiveWorkers           int     `json:"effective_workers"`
	SequentialIsEstimate       bool    `json:"sequential_is_estimate"`
}

// NewEstimate derives the sequential estimate from a parallel duration, the
// pool width and the number of segments. Width is capped at the segment
// count. The speedup is 1.0 when the parallel duration is zero.
func NewEstimate(parallel time.Duration, workers, segments int) Estimate {
	effective := workers
	if segments < effective {
		effective = segments
	}
	if effective < 1 {
		effective = 1
	}

	p := parallel.Seconds()
	if p < 0 {
		p = 0
	}
	seq := p * float64(effective)

	speedup := 1.0
	if p > 0 {
		speedup = seq / p
	}

	return Estimate{
		ParallelSeconds:            p,
		EstimatedSequentialSeconds: seq,
		SpeedupRatio:               speedup,
		EffectiveWorkers:           effective,
		SequentialIsEstimate:       true,
	}
}
