package aggregation

import "errors"

var (
	// ErrUnsupportedDataType is returned when no strategy serves a data-type tag.
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrDivisionByZero is returned when a ratio has an empty or zero denominator.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrInvalidDomain is returned for a domain definition that cannot be evaluated.
	ErrInvalidDomain = errors.New("invalid domain")
)
