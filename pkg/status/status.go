// Package status is the error taxonomy of the driver boundary. Every gateway
// failure is an *Error whose Kind tells callers what went wrong and, for
// argument failures, which parameter.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed driver call
type Kind int

const (
	// KindRange means a caller-supplied number was outside its documented bounds
	KindRange Kind = iota + 1
	// KindInvalidParameter means a value of the wrong kind, an unknown attribute
	// or an access violation (e.g. writing a read-only attribute)
	KindInvalidParameter
	// KindInvalidParameterValue means an enumerated value has no mapping
	KindInvalidParameterValue
	// KindDeviceRejected means the instrument error queue reported a problem
	KindDeviceRejected
	// KindTransportFailure means the I/O channel failed (timeout, disconnect)
	KindTransportFailure
	// KindNoData means the instrument returned an empty or malformed reply
	KindNoData
	// KindTruncatedResult means the destination was smaller than the available data
	KindTruncatedResult
	// KindInvalidSession means the session is closed or the lock is not held
	KindInvalidSession
	// KindNotSupported means the instrument lacks an option or capability
	KindNotSupported
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindRange:
		return "RangeError"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindInvalidParameterValue:
		return "InvalidParameterValue"
	case KindDeviceRejected:
		return "DeviceRejected"
	case KindTransportFailure:
		return "TransportFailure"
	case KindNoData:
		return "NoData"
	case KindTruncatedResult:
		return "TruncatedResult"
	case KindInvalidSession:
		return "InvalidSession"
	case KindNotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// Error is the failure half of a gateway status result.
//
// ParamIndex is 1-based and counts the session handle as parameter 1, so the
// first location argument of a wrapper is parameter 2. It is zero when the
// failure is not tied to a caller parameter. Code carries the instrument's
// native error code for KindDeviceRejected.
type Error struct {
	Kind       Kind
	ParamIndex int
	ParamName  string
	Code       int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.ParamIndex > 0 {
		fmt.Fprintf(&b, ": parameter %d (%s)", e.ParamIndex, e.ParamName)
	}
	if e.Kind == KindDeviceRejected && e.Code != 0 {
		fmt.Fprintf(&b, ": instrument error %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ParseKind maps a kind name back to its Kind
func ParseKind(name string) (Kind, bool) {
	for k := KindRange; k <= KindNotSupported; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Range builds a range failure for a caller parameter
func Range(paramIndex int, paramName string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       KindRange,
		ParamIndex: paramIndex,
		ParamName:  paramName,
		Message:    fmt.Sprintf(format, args...),
	}
}

// InvalidParameter builds a kind/access failure
func InvalidParameter(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// InvalidValue builds an unmapped-enumeration failure for a caller parameter
func InvalidValue(paramIndex int, paramName string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       KindInvalidParameterValue,
		ParamIndex: paramIndex,
		ParamName:  paramName,
		Message:    fmt.Sprintf(format, args...),
	}
}

// DeviceRejected builds an instrument error-queue failure
func DeviceRejected(code int, message string) *Error {
	return &Error{Kind: KindDeviceRejected, Code: code, Message: message}
}

// Transport wraps an I/O failure
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransportFailure, Message: op, Err: err}
}

// NoData builds an empty or malformed reply failure
func NoData(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNoData, Message: fmt.Sprintf(format, args...)}
}

// Truncated builds a truncation report; callers that treat truncation as
// fatal can return it, the gateway itself never does
func Truncated(written, available int) *Error {
	return &Error{
		Kind:    KindTruncatedResult,
		Message: fmt.Sprintf("%d of %d values written", written, available),
	}
}

// InvalidSession builds a closed or unlocked session failure
func InvalidSession(message string) *Error {
	return &Error{Kind: KindInvalidSession, Message: message}
}

// NotSupported builds a missing capability failure
func NotSupported(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotSupported, Message: fmt.Sprintf(format, args...)}
}
