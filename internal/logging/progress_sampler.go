package logging

// ProgressSampler suppresses repetitive transfer progress logs. It emits once
// per percentage bucket and again whenever the tracked key (usually a task id)
// changes.
type ProgressSampler struct {
	bucketSize float64
	lastKey    string
	lastBucket int
}

// NewProgressSampler constructs a sampler; non-positive bucket sizes default to 10%.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether progress for key at done/total bytes crosses a new
// bucket. An unknown total (<= 0) only logs on key changes.
func (s *ProgressSampler) ShouldLog(key string, done, total int64) bool {
	if s == nil {
		return true
	}
	emit := false
	if key != s.lastKey {
		s.lastKey = key
		s.lastBucket = -1
		emit = true
	}
	if total <= 0 {
		return emit
	}
	percent := float64(done) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}
	if bucket := int(percent / s.bucketSize); bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastKey = ""
	s.lastBucket = -1
}
