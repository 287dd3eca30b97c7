package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrNotReady        = errors.New("layout not ready")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
