// Package retry computes jittered backoff delays and per-error-class retry
// budgets. The policy is pure computation: no I/O, no clock.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Params is the retry budget for one error class.
type Params struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Default budgets. Errors signaling eventual-consistency lag on the target
// ("not indexed yet") get a long window; ordinary transient errors a short
// one; an unclassified error gets exactly one conservative retry.
var defaultParams = map[domain.ErrorClass]Params{
	domain.ErrorClassNotIndexed:   {Base: 30 * time.Second, Cap: 600 * time.Second, MaxRetries: 12},
	domain.ErrorClassRateLimited:  {Base: 10 * time.Second, Cap: 300 * time.Second, MaxRetries: 8},
	domain.ErrorClassNetwork:      {Base: 5 * time.Second, Cap: 80 * time.Second, MaxRetries: 5},
	domain.ErrorClassTimeout:      {Base: 5 * time.Second, Cap: 80 * time.Second, MaxRetries: 5},
	domain.ErrorClassServer:       {Base: 5 * time.Second, Cap: 80 * time.Second, MaxRetries: 5},
	domain.ErrorClassUnclassified: {Base: 5 * time.Second, Cap: 80 * time.Second, MaxRetries: 1},
}

// Policy computes full-jitter backoff delays. Safe for concurrent use.
type Policy struct {
	mu     sync.Mutex
	rng    *rand.Rand
	params map[domain.ErrorClass]Params
}

// NewPolicy returns a policy with default budgets and a time-seeded RNG.
func NewPolicy() *Policy {
	return NewPolicyWithSeed(time.Now().UnixNano())
}

// NewPolicyWithSeed returns a deterministic policy for tests.
func NewPolicyWithSeed(seed int64) *Policy {
	params := make(map[domain.ErrorClass]Params, len(defaultParams))
	for class, p := range defaultParams {
		params[class] = p
	}
	return &Policy{
		rng:    rand.New(rand.NewSource(seed)),
		params: params,
	}
}

// SetParams overrides the budget for one error class.
func (p *Policy) SetParams(class domain.ErrorClass, params Params) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params[class] = params
}

// Params returns the retry budget for the given class. Unknown classes fall
// back to the short transient window.
func (p *Policy) Params(class domain.ErrorClass) Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	if params, ok := p.params[class]; ok {
		return params
	}
	return p.params[domain.ErrorClassNetwork]
}

// Delay returns uniform(0, min(cap, base*2^retryCount)): full jitter. Drawing
// from the whole window prevents synchronized retry storms when many jobs
// resume after an outage.
func (p *Policy) Delay(class domain.ErrorClass, retryCount int) time.Duration {
	params := p.Params(class)

	ceiling := float64(params.Base) * math.Pow(2, float64(retryCount))
	if ceiling > float64(params.Cap) {
		ceiling = float64(params.Cap)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.Float64() * ceiling)
}
