package replay

// RateLimiter decides whether a sample may be served given the running
// insert and sample counts and the current table size. Inserts are never
// blocked; only sampling is throttled.
type RateLimiter interface {
	// CanSample reports whether serving batch more items is admissible
	// after inserts items have been inserted and samples items sampled.
	CanSample(inserts, samples int64, size, batch int) bool
}

// minSizeLimiter admits samples purely on table occupancy. It is the
// limiter used when no samples-per-insert target is configured.
type minSizeLimiter struct {
	minSize int
}

// NewMinSize returns a RateLimiter that only requires minSize resident
// items before sampling.
func NewMinSize(minSize int) RateLimiter {
	return &minSizeLimiter{minSize: minSize}
}

func (m *minSizeLimiter) CanSample(_, _ int64, size, _ int) bool {
	return size >= m.minSize
}

// sampleToInsertRatio keeps the running samples:inserts ratio within
// errorBuffer of samplesPerInsert, on top of the minimum-size gate.
type sampleToInsertRatio struct {
	minSize          int
	samplesPerInsert float64
	errorBuffer      float64
}

// NewSampleToInsertRatio returns a RateLimiter targeting the given
// samples-per-insert ratio. The errorBuffer is the number of samples the
// running count may run ahead of the target before sampling blocks.
func NewSampleToInsertRatio(minSize int, samplesPerInsert,
	errorBuffer float64) RateLimiter {
	return &sampleToInsertRatio{
		minSize:          minSize,
		samplesPerInsert: samplesPerInsert,
		errorBuffer:      errorBuffer,
	}
}

func (s *sampleToInsertRatio) CanSample(inserts, samples int64, size,
	batch int) bool {
	if size < s.minSize {
		return false
	}
	allowed := float64(inserts)*s.samplesPerInsert + s.errorBuffer
	return float64(samples+int64(batch)) <= allowed
}
