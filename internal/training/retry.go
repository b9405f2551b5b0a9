package training

import (
	"fmt"
	"time"
)

// tryRun attempts to run a function maxRetries time. If any time the function f succeeds,
// it will return with no error straightaway. Otherwise, it will return the error
func tryRun(maxRetries int, delay time.Duration, f func() error) (numAttempts int, lastErr error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	for attempts := 1; attempts <= maxRetries; attempts++ {
		err := f()
		if err == nil {
			return attempts, nil
		}
		lastErr = err
		if attempts < maxRetries {
			time.Sleep(time.Duration(attempts) * delay) // linear backoff
		}
	}

	if maxRetries == 1 {
		return 1, lastErr
	}
	return maxRetries, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}
