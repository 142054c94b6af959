package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than creating
// new error instances in Validate(). Callers can use errors.Is() for
// programmatic handling while the messages stay human-readable.
var (
	// ErrNoSoftware is returned when no federated software was selected.
	ErrNoSoftware = errors.New("no software specified: provide a software name or \"all\"")

	// ErrUnknownSoftware is returned when the selected software has no
	// registered crawler variant.
	ErrUnknownSoftware = errors.New("unknown software: no crawler registered for it")

	// ErrInvalidConcurrency is returned when the concurrency cap is not
	// positive. A cap of zero would block every network operation forever.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the per-request timeout is not
	// positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTopUsers is returned when the per-host user target of a
	// user-interaction crawl is not positive.
	ErrInvalidTopUsers = errors.New("invalid top-users count: must be positive")

	// ErrInvalidActivityScope is returned when the community activity
	// window is not one of TopDay, TopWeek, TopMonth.
	ErrInvalidActivityScope = errors.New("invalid activity scope: must be TopDay, TopWeek, or TopMonth")

	// ErrInvalidMinActiveUsers is returned when the minimum active user
	// threshold for communities is negative.
	ErrInvalidMinActiveUsers = errors.New("invalid minimum active users: must be non-negative")
)
