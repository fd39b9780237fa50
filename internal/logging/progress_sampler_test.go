package logging

import "testing"

func TestNewProgressSamplerStep(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, 10}, {-5, 10}, {101, 10}, {5, 5}, {1, 1}} {
		if got := NewProgressSampler(tc.in).step; got != tc.want {
			t.Fatalf("NewProgressSampler(%d).step = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "transfer") {
		t.Fatal("nil sampler should log everything")
	}
	s.Reset()
}

func TestProgressSamplerSequence(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent int
		stage   string
		want    bool
	}{
		{0, "transfer", true},
		{3, "transfer", false},
		{9, "transfer", false},
		{10, "transfer", true},
		{15, "  transfer ", false},
		{42, "transfer", true},
		{41, "transfer", false},
		{100, "transfer", true},
		{130, "transfer", false},
		{0, "extract", true},
		{-1, "extract", false},
		{5, "extract", false},
		{20, "extract", true},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Fatalf("step %d ShouldLog(%d, %q) = %v, want %v", i, step.percent, step.stage, got, step.want)
		}
	}
}

func TestProgressSamplerUnknownPercentOnlyOnStageChange(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "extract") {
		t.Fatal("first update of a stage should log")
	}
	if s.ShouldLog(-1, "extract") {
		t.Fatal("repeated unknown percent should not log")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(55, "transfer")
	if s.ShouldLog(56, "transfer") {
		t.Fatal("same bucket should not log")
	}
	s.Reset()
	if !s.ShouldLog(56, "transfer") {
		t.Fatal("reset should allow the next update through")
	}
}
