package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Config struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
	// Interval clears the closed-state counts; zero never clears.
	Interval time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 1,
		Interval:         time.Minute,
	}
}

// New creates a breaker. Errors matching one of passThrough (errors.Is) are
// business outcomes and do not count as failures.
func New[T any](cfg Config, log *slog.Logger, passThrough ...error) *gobreaker.CircuitBreaker[T] {
	if log == nil {
		log = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			for _, e := range passThrough {
				if errors.Is(err, e) {
					return true
				}
			}
			return false
		},
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
