package mixer

import "errors"

var (
	// ErrNotFound reports an unknown channel, route endpoint or preset.
	ErrNotFound = errors.New("not found")

	// ErrInvalidValue reports a value outside its accepted range when it is
	// rejected rather than clamped.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInitialization reports that the audio backend could not be opened.
	ErrInitialization = errors.New("audio initialization failed")
)
