package descriptor

import "fmt"

// ParseReason classifies what went wrong with a single descriptor field.
type ParseReason int

const (
	ReasonMissingField ParseReason = iota
	ReasonWrongArity
	ReasonBadLiteral
	ReasonBadType
	ReasonRangeOverflow
	ReasonUnsupportedVersion
)

func (r ParseReason) String() string {
	switch r {
	case ReasonMissingField:
		return "missing-field"
	case ReasonWrongArity:
		return "wrong-arity"
	case ReasonBadLiteral:
		return "bad-literal"
	case ReasonBadType:
		return "bad-type"
	case ReasonRangeOverflow:
		return "range-overflow"
	case ReasonUnsupportedVersion:
		return "unsupported-version"
	default:
		return "unknown"
	}
}

// ParseError describes one malformed field. A single Parse call can report
// many of these; none is recoverable.
type ParseError struct {
	Field  string
	Reason ParseReason
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("field %q: %s", e.Field, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
