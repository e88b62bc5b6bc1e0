package utils

import (
	"context"
	"sync"
	"time"
)

var (
	sleepFunc func(time.Duration)
	mu        sync.Mutex // mutex to make the setting of the sleepFunc thread-safe
)

func init() {
	ResetSleepFunc() // Initialize sleepFunc with the default sleep function
}

// Sleep calls the current sleep function.
func Sleep(d time.Duration) {
	mu.Lock()
	f := sleepFunc
	mu.Unlock()
	f(d)
}

// SetSleepFunc allows for overriding the default sleep function, primarily for testing.
func SetSleepFunc(f func(time.Duration)) {
	mu.Lock()
	sleepFunc = f
	mu.Unlock()
}

// ResetSleepFunc resets the sleep function to the default time.Sleep.
func ResetSleepFunc() {
	SetSleepFunc(time.Sleep)
}

// SleepContext waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was interrupted.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the exponential backoff for the given zero-based attempt,
// capped at max.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
