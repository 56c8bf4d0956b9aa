package domain

import "errors"

var (
	// ErrNoEligiblePositions aborts a single run; the next tick retries.
	ErrNoEligiblePositions = errors.New("no eligible positions")

	// ErrBreakerOpen short-circuits a call to a failing provider.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrDataUnavailable means every provider was exhausted.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAutomation enforces one active guard per (user, account).
	ErrDuplicateAutomation = errors.New("active automation already exists for account")
)
