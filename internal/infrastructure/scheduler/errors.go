package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrRefreshInProgress is returned by a manual refresh while another one runs
	ErrRefreshInProgress = errors.New("registry refresh already in progress")
)
