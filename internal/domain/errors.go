package domain

import "errors"

// Errors raised by the feature pipeline. Callers wrap them with the offending
// row, column or parameter and match with errors.Is.
var (
	ErrSchema           = errors.New("raw row does not match the kline schema")
	ErrTimeParse        = errors.New("timestamp could not be parsed")
	ErrMissingColumn    = errors.New("required column is missing")
	ErrDegenerateWindow = errors.New("rolling window is degenerate")
	ErrConfiguration    = errors.New("invalid or missing configuration")
)
