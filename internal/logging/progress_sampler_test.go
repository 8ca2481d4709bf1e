package logging

import "testing"

func TestProgressSamplerDefaults(t *testing.T) {
	if got := NewProgressSampler(0).bucketSize; got != 10 {
		t.Fatalf("bucketSize = %v, want 10", got)
	}
	if got := NewProgressSampler(-3).bucketSize; got != 10 {
		t.Fatalf("bucketSize = %v, want 10", got)
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(50, "download") {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}

func TestProgressSamplerSequence(t *testing.T) {
	type step struct {
		percent float64
		phase   string
		want    bool
	}
	tests := []struct {
		name   string
		bucket float64
		steps  []step
	}{
		{
			name:   "buckets",
			bucket: 10,
			steps: []step{
				{0, "download", true},
				{4, "download", false},
				{10, "download", true},
				{19.9, "download", false},
				{35, "download", true},
			},
		},
		{
			name:   "phase change resets bucket",
			bucket: 10,
			steps: []step{
				{80, "download", true},
				{0, "merge", true},
				{10, "merge", true},
				{10, " merge ", false},
			},
		},
		{
			name:   "unknown percent",
			bucket: 10,
			steps: []step{
				{-1, "probe", true},
				{-1, "probe", false},
			},
		},
		{
			name:   "caps at 100",
			bucket: 25,
			steps: []step{
				{95, "download", true},
				{100, "download", true},
				{140, "download", false},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucket)
			for i, st := range tt.steps {
				if got := s.ShouldLog(st.percent, st.phase); got != st.want {
					t.Fatalf("step %d ShouldLog(%v, %q) = %v, want %v", i, st.percent, st.phase, got, st.want)
				}
			}
		})
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "download")
	s.Reset()
	if s.lastPhase != "" || s.lastBucket != -1 {
		t.Fatalf("reset left state %q/%d", s.lastPhase, s.lastBucket)
	}
	if !s.ShouldLog(50, "download") {
		t.Fatal("expected log after reset")
	}
}
