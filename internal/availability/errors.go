package availability

import "errors"

var (
	ErrInvalidWindow     = errors.New("availability: start must be before end")
	ErrInvalidWeekday    = errors.New("availability: weekday must be between 0 (sunday) and 6 (saturday)")
	ErrInvalidException  = errors.New("availability: exception must set both start and end or neither")
	ErrMissingProvider   = errors.New("availability: provider id required")
	ErrRuleNotFound      = errors.New("availability: weekly rule not found")
	ErrExceptionNotFound = errors.New("availability: exception not found")
)
