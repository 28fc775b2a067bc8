package common

import (
	"errors"
)

// Common error constants
var (
	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotConfigured is returned when an optional collaborator was not set up
	ErrNotConfigured = errors.New("collaborator not configured")
)
