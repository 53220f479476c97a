package domain

import "errors"

var (
	// ErrInvalidConfiguration is fatal to the call that hits it: an unknown
	// period selector, a malformed weight map, a bad driver name.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMissingData means a raw or flagged dataset does not exist.
	ErrMissingData = errors.New("missing data")

	// ErrEmptyAfterFilter means no records survived flag or date filtering.
	ErrEmptyAfterFilter = errors.New("no records after filtering")

	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
