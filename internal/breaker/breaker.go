// Package breaker implements the consecutive-rollback circuit breaker that
// halts the iteration loop after too many rollbacks with no intervening
// successful iteration.
package breaker

// DefaultThreshold is the number of consecutive rollbacks that trips the
// breaker when no explicit threshold is configured.
const DefaultThreshold = 3

// Breaker is a pure counter state machine, scoped to a single run.
type Breaker struct {
	threshold   int
	consecutive int
}

// New returns a Breaker with the given threshold. Non-positive thresholds
// fall back to DefaultThreshold.
func New(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Breaker{threshold: threshold}
}

// RecordRollback increments the consecutive rollback count and returns the
// new value.
func (b *Breaker) RecordRollback() int {
	b.consecutive++
	return b.consecutive
}

// Reset clears the counter. Called when an iteration completes without a
// rollback.
func (b *Breaker) Reset() {
	b.consecutive = 0
}

// Tripped reports whether the count has reached the threshold.
func (b *Breaker) Tripped() bool {
	return b.consecutive >= b.threshold
}

// Count returns the current consecutive rollback count.
func (b *Breaker) Count() int {
	return b.consecutive
}

// Threshold returns the configured trip threshold.
func (b *Breaker) Threshold() int {
	return b.threshold
}
