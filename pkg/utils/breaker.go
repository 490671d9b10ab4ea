package utils

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewBreaker trips after at least 5 requests in an interval with a failure ratio of 60% or more.
func NewBreaker(name string, logger *zap.Logger, isSuccessful func(err error) bool) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	}

	return gobreaker.NewCircuitBreaker(settings)
}

func ExecuteWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}
