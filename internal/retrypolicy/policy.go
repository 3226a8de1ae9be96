// Package retrypolicy decides whether a failed attempt is worth repeating.
// Only transient classifications retry; everything else would fail the same
// way again and wastes a worker slot.
package retrypolicy

import (
	"time"

	"fetchd/internal/queue"
)

// Outcome is the kind of decision the policy returns.
type Outcome int

const (
	// OutcomeRetry re-arms the job after Decision.Delay.
	OutcomeRetry Outcome = iota
	// OutcomeSkip finalizes immediately: the classification is not retryable.
	OutcomeSkip
	// OutcomeExhausted finalizes because the retry budget is spent.
	OutcomeExhausted
)

// Decision is the result of evaluating a failure.
type Decision struct {
	Outcome Outcome
	Delay   time.Duration
}

// Policy computes retry decisions from a failure classification and the
// job's retry budget.
type Policy struct {
	maxRetries   int
	backoffTiers []time.Duration
}

// New builds a policy. Tiers are successive delays indexed by retry count;
// the last tier repeats for any further attempts.
func New(maxRetries int, tierSeconds []int) *Policy {
	tiers := make([]time.Duration, 0, len(tierSeconds))
	for _, s := range tierSeconds {
		tiers = append(tiers, time.Duration(s)*time.Second)
	}
	if len(tiers) == 0 {
		tiers = []time.Duration{30 * time.Second}
	}
	return &Policy{maxRetries: maxRetries, backoffTiers: tiers}
}

// MaxRetries returns the configured retry budget.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

var retryableTypes = map[queue.ErrorType]struct{}{
	queue.ErrorTypeNetwork:   {},
	queue.ErrorTypeHTTP:      {},
	queue.ErrorTypeTimeout:   {},
	queue.ErrorTypeRateLimit: {},
}

// Retryable reports whether a classification is ever worth retrying.
func Retryable(errType queue.ErrorType) bool {
	_, ok := retryableTypes[errType]
	return ok
}

// Evaluate returns the decision for a failure with the given classification
// and current retry count.
func (p *Policy) Evaluate(errType queue.ErrorType, retryCount int) Decision {
	if !Retryable(errType) {
		return Decision{Outcome: OutcomeSkip}
	}
	if retryCount >= p.maxRetries {
		return Decision{Outcome: OutcomeExhausted}
	}
	return Decision{Outcome: OutcomeRetry, Delay: p.Backoff(retryCount)}
}

// Backoff returns the delay for a given retry count. Monotonically
// non-decreasing by construction (config validation enforces tier ordering).
func (p *Policy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(p.backoffTiers) {
		return p.backoffTiers[len(p.backoffTiers)-1]
	}
	return p.backoffTiers[retryCount]
}
