package resilience

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryPolicy bounds how often and how slowly one call is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy configures the per-operation circuit breaker.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
	// Services overrides Retry for operations named "<service>.<op>". Zero
	// fields inherit from Retry.
	Services map[string]RetryPolicy
}

// DefaultConfig retries reranking only once because retrieval falls back to
// vector order, and keeps generation retries short so a chat request is not
// held for several completion timeouts.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		Services: map[string]RetryPolicy{
			"reranker":   {MaxAttempts: 1},
			"generation": {MaxAttempts: 2},
			"ocr":        {InitialBackoff: 500 * time.Millisecond, MaxBackoff: 2 * time.Second},
		},
	}
}

// Validate rejects values that are set but meaningless. Zero values are
// allowed and replaced by defaults.
func (c Config) Validate() error {
	var errs []error
	check := func(name string, p RetryPolicy) {
		if p.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("%s: retry attempts must not be negative", name))
		}
		if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
			errs = append(errs, fmt.Errorf("%s: retry backoff must not be negative", name))
		}
		if p.Multiplier != 0 && p.Multiplier < 1 {
			errs = append(errs, fmt.Errorf("%s: retry multiplier must be >= 1", name))
		}
	}
	check("retry", c.Retry)
	for service, p := range c.Services {
		check("retry."+service, p)
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		errs = append(errs, errors.New("breaker failure ratio must be within [0,1]"))
	}
	if c.Breaker.OpenTimeout < 0 {
		errs = append(errs, errors.New("breaker open timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := Config{
		Retry:    c.Retry.inherit(def.Retry),
		Breaker:  c.Breaker,
		Services: make(map[string]RetryPolicy, len(c.Services)),
	}
	for service, p := range c.Services {
		out.Services[service] = p.inherit(out.Retry)
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

// retryFor picks the policy for an operation by its service prefix.
func (c Config) retryFor(operation string) RetryPolicy {
	service, _, _ := strings.Cut(operation, ".")
	if p, ok := c.Services[service]; ok {
		return p
	}
	return c.Retry
}

func (p RetryPolicy) inherit(base RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = base.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = base.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = base.Multiplier
	}
	return p
}

// backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.InitialBackoff
	for i := 1; i < attempt && wait < p.MaxBackoff; i++ {
		wait = time.Duration(float64(wait) * p.Multiplier)
	}
	return min(wait, p.MaxBackoff)
}
