package binding

import (
	"errors"
	"fmt"
)

// Precondition failures. These are detected before any foreign call.
var (
	ErrUnterminated     = errors.New("record is not sentinel-terminated")
	ErrEmbeddedSentinel = errors.New("record contains an embedded sentinel")
	ErrCountMismatch    = errors.New("quality count does not match sequence count")
	ErrInvalidMode      = errors.New("invalid alignment mode")
)

// Engine-side failures.
var (
	ErrEngineFailure     = errors.New("alignment engine failure")
	ErrEngineUnavailable = errors.New("native alignment engine not linked")
	ErrInvalidCapacity   = errors.New("bounded result capacity must be positive")
)

// PreconditionError reports input rejected by the binding itself.
// Err is one of the precondition sentinels above.
type PreconditionError struct {
	Err    error
	Record RecordKind
	// Index is the offending record, or -1 when the failure is not tied to one record.
	Index  int
	Detail string
}

func (e *PreconditionError) Error() string {
	msg := "binding: "
	if e.Record != RecordNone && e.Index >= 0 {
		msg += fmt.Sprintf("%s %d: ", e.Record, e.Index)
	}
	msg += e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// EngineError reports an abnormal outcome of the foreign call.
type EngineError struct {
	Records int
	Detail  string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("binding: %v on %d records: %s", ErrEngineFailure, e.Records, e.Detail)
}

func (e *EngineError) Unwrap() error { return ErrEngineFailure }

// IsPrecondition reports whether err is a binding-side input rejection.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
