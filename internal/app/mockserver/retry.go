package mockserver

import (
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

var errNotYet = errors.New("retry")

// retryFor calls do with the time left until it returns true or duration has elapsed. It
// reports whether do succeeded.
func retryFor(do func(timeLeft time.Duration) bool, delay, duration time.Duration) bool {
	start := time.Now()
	err := retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errNotYet
		}
		return nil
	},
		retry.Attempts(0),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}),
	)
	return err == nil
}
