package live

import (
	"context"
	"errors"
	"time"
)

// StatusFunc checks an async operation once. done reports a terminal
// success; message describes it. A *OperationFailed error is a
// terminal failure and stops the loop; any other error is a failed
// check but not necessarily terminal, so polling continues until done
// or the attempt budget runs out.
type StatusFunc func(ctx context.Context) (done bool, message string, err error)

// pollStatus drives a bounded fixed-interval poll loop. It
// self-terminates after maxAttempts and returns *PollingTimeout, so a
// stuck operation yields a notification instead of an immortal
// goroutine.
func pollStatus(ctx context.Context, interval time.Duration, maxAttempts int, fn StatusFunc) (string, error) {
	if fn == nil {
		return "", &PollingTimeout{Operation: "unknown", Attempts: 0}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		done, message, err := fn(ctx)
		if err != nil {
			var failed *OperationFailed
			if errors.As(err, &failed) {
				return "", err
			}
			lastErr = err
			continue
		}
		if done {
			return message, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", &PollingTimeout{Attempts: maxAttempts}
}
