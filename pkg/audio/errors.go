package audio

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindInput         ErrorKind = "input"
	KindConfiguration ErrorKind = "configuration"
	KindProcessing    ErrorKind = "processing"
	KindStorage       ErrorKind = "storage"
)

// Common error codes
const (
	ErrCodeInvalidRate      = "INVALID_RATE"
	ErrCodeInvalidChannels  = "INVALID_CHANNELS"
	ErrCodeEmptyBuffer      = "EMPTY_BUFFER"
	ErrCodeNonFinite        = "NON_FINITE_SAMPLE"
	ErrCodeMismatched       = "MISMATCHED_CHANNELS"
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeUnknownGenre     = "UNKNOWN_GENRE"
	ErrCodeMissingConfig    = "MISSING_CONFIGURATION"
	ErrCodeStorage          = "STORAGE_UNAVAILABLE"
	ErrCodeNotFound         = "NOT_FOUND"
)

var (
	ErrInvalidRate        = errors.New("invalid sample rate")
	ErrInvalidChannels    = errors.New("invalid channel count")
	ErrEmptyBuffer        = errors.New("empty buffer")
	ErrNonFiniteSample    = errors.New("non-finite sample")
	ErrMismatchedChannels = errors.New("mismatched channel counts")
	ErrWidthOutOfRange    = errors.New("width factor out of range")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrUnknownGenre       = errors.New("unknown genre")
	ErrNotFound           = errors.New("not found")

	// ErrSilentBuffer is recoverable: the operation returned a usable buffer.
	ErrSilentBuffer = &Warning{Code: "SILENT_BUFFER", Message: "buffer is silent, normalization skipped"}
)

// MixError represents a typed pipeline error
type MixError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *MixError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *MixError) Unwrap() error {
	return e.Cause
}

// NewMixError creates a new typed pipeline error
func NewMixError(kind ErrorKind, code, message string, cause error) *MixError {
	return &MixError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInputError creates an error for malformed, empty or mismatched buffers
func NewInputError(code, message string, cause error) *MixError {
	return NewMixError(KindInput, code, message, cause)
}

// NewConfigurationError creates an error for unknown genres or missing configurations
func NewConfigurationError(code, message string, cause error) *MixError {
	return NewMixError(KindConfiguration, code, message, cause)
}

// NewProcessingError creates an error for numeric instability mid-pipeline
func NewProcessingError(code, message string, cause error) *MixError {
	return NewMixError(KindProcessing, code, message, cause)
}

// NewStorageError creates an error for an unavailable store or index
func NewStorageError(message string, cause error) *MixError {
	return NewMixError(KindStorage, ErrCodeStorage, message, cause)
}

// KindOf returns the kind of the first MixError in the chain, or "" if none
func KindOf(err error) ErrorKind {
	var mixErr *MixError
	if errors.As(err, &mixErr) {
		return mixErr.Kind
	}
	return ""
}

// IsKind reports whether err carries a MixError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Warning is a recoverable condition reported alongside a valid result
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w *Warning) Error() string {
	return w.Message
}

// IsWarning reports whether err is only a recoverable warning
func IsWarning(err error) bool {
	var w *Warning
	return errors.As(err, &w)
}

func invalidParam(format string, args ...any) error {
	return NewInputError(ErrCodeInvalidParameter, fmt.Sprintf(format, args...), ErrInvalidParameter)
}
