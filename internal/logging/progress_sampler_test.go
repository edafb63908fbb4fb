package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		want       float64
	}{
		{"zero", 0, 10},
		{"negative", -1, 10},
		{"custom", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.want {
				t.Fatalf("bucketSize = %v, want %v", s.bucketSize, tt.want)
			}
			if s.lastBucket != -1 {
				t.Fatalf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("t1", 1, 2) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		key   string
		done  int64
		total int64
		want  bool
	}{
		{"t1", 0, 100, true},
		{"t1", 10, 100, false},
		{"t1", 26, 100, true},
		{"t1", 30, 100, false},
		{"t1", 100, 100, true},
		{"t1", 100, 100, false},
		{"t2", 0, 100, true},
		{"t3", 5, 0, true},
		{"t3", 50, 0, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.key, step.done, step.total); got != step.want {
			t.Fatalf("step %d (%s %d/%d): got %v want %v", i, step.key, step.done, step.total, got, step.want)
		}
	}
}
