package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the initial connect: MaxAttempts tries, waiting
// Delay(i) after the i-th failure.
type RetryPolicy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// LinearDelay waits attempt*step: 1s, 2s, 3s for a one-second step.
func LinearDelay(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: LinearDelay(time.Second)}
}

// policyBackOff feeds a RetryPolicy to backoff.Retry.
type policyBackOff struct {
	delay   func(int) time.Duration
	attempt int
}

var _ backoff.BackOff = (*policyBackOff)(nil)

func (p RetryPolicy) backOff() *policyBackOff {
	delay := p.Delay
	if delay == nil {
		delay = LinearDelay(time.Second)
	}
	return &policyBackOff{delay: delay}
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }
