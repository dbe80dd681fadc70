package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed reports that no entry in a [FallbackGroup] could serve the
// call, whether by failing outright or by having an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the breaker settings applied to every entry of a
// [FallbackGroup]. The per-entry breaker name is always overridden with the
// entry's provider name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup orders one primary and any number of fallback providers of
// the same type. Each entry gets its own [CircuitBreaker]; calls go to the
// first entry whose breaker admits them and which does not fail.
//
// Entries are registered at startup. Execute may run concurrently.
type FallbackGroup[T any] struct {
	names    []string
	values   []T
	breakers []*CircuitBreaker
	cfg      FallbackConfig
}

// NewFallbackGroup builds a group with primary as its only entry. Use
// [FallbackGroup.AddFallback] for additional providers.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider. Order of registration is the failover
// order.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.names = append(fg.names, name)
	fg.values = append(fg.values, value)
	fg.breakers = append(fg.breakers, NewCircuitBreaker(cbCfg))
}

// Execute runs fn against entries in failover order until one succeeds.
// Entries with an open breaker are skipped. When everything fails the last
// error is wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It is a free function because methods cannot introduce the result
// type parameter.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i, value := range fg.values {
		var result R
		err := fg.breakers[i].Execute(func() error {
			var callErr error
			result, callErr = fn(value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", fg.names[i])
		} else {
			slog.Warn("provider failed, trying next",
				"provider", fg.names[i], "error", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
