package model

import "errors"

// Failure kinds surfaced by the export pipeline.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMissingColumn    = errors.New("missing column")
	ErrEmptyInput       = errors.New("empty input")
	ErrIOFailure        = errors.New("io failure")
	ErrUnknownProfile   = errors.New("unknown profile")
	ErrShapeMismatch    = errors.New("shape mismatch")
)
