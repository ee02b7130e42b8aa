// Package main - retry.go
//
// Bounded fixed-delay retry policy shared by capture, navigation and
// execution paths. Delays are fixed rather than exponential: everything the
// bot waits on (UI transitions, screencap round trips) settles on a scale of
// seconds.
package main

import (
	"errors"
	"time"
)

// ErrRetryExhausted is returned when an operation did not succeed within the
// configured attempt budget.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy runs an operation up to Attempts times with Delay between
// attempts. The sleep function is replaceable so tests can run without real
// timing.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration

	sleep func(time.Duration)
}

// NewRetryPolicy creates a policy backed by time.Sleep.
func NewRetryPolicy(attempts int, delay time.Duration) RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return RetryPolicy{
		Attempts: attempts,
		Delay:    delay,
		sleep:    time.Sleep,
	}
}

// Do invokes op until it reports done, a non-nil error other than a transient
// one, or the attempt budget runs out. op returns (done, err): done with a
// nil error stops the loop successfully; an error is remembered and retried.
// After the final attempt the last error is returned, wrapped so callers can
// errors.Is against ErrRetryExhausted.
func (p RetryPolicy) Do(op func(attempt int) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		done, err := op(attempt)
		if done && err == nil {
			return nil
		}
		lastErr = err
		if attempt < p.Attempts && p.Delay > 0 && p.sleep != nil {
			p.sleep(p.Delay)
		}
	}
	if lastErr != nil {
		return errors.Join(ErrRetryExhausted, lastErr)
	}
	return ErrRetryExhausted
}
