package logging

import "strings"

// ProgressSampler decides which progress updates are worth a log line.
// Transfers report several times per second; the sampler lets through the
// first update of each stage and the first update in each new bucket of
// percent. Negative percents mean unknown and only count as a stage change.
type ProgressSampler struct {
	step   int
	stage  string
	bucket int
}

// NewProgressSampler returns a sampler with buckets of step percent. A step
// outside 1..100 falls back to 10.
func NewProgressSampler(step int) *ProgressSampler {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog reports whether an update at percent within stage should be
// logged. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(percent int, stage string) bool {
	if s == nil {
		return true
	}
	emit := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.bucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := min(percent, 100) / s.step
	if bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Reset forgets the current stage and bucket, for a new run.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage = ""
	s.bucket = -1
}
