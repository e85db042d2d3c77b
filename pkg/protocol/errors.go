package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrame indicates there is nothing to decode.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrMissingField indicates a required tag is absent.
	ErrMissingField = errors.New("missing field")
	// ErrMalformedField indicates a field can't be parsed.
	ErrMalformedField = errors.New("malformed field")
	// ErrChecksumMismatch indicates the transmitted CRC doesn't match.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrChannelCountMismatch indicates a field carries a wrong number of channels.
	ErrChannelCountMismatch = errors.New("channel count mismatch")
	// ErrInvalidArgument indicates the caller supplied wrongly sized vectors.
	ErrInvalidArgument = errors.New("invalid argument")
)

// MissingFieldError lists absent tags.
type MissingFieldError struct {
	Tags  []string
	Frame string
}

// Error implements error.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing fields %v in %q", e.Tags, e.Frame)
}

// Unwrap returns ErrMissingField.
func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// ChecksumError carries both checksums of a rejected frame.
type ChecksumError struct {
	Transmitted uint8
	Calculated  uint8
	Frame       string
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: transmitted %d, calculated %d for %q",
		e.Transmitted, e.Calculated, e.Frame)
}

// Unwrap returns ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// CountError reports a channel count mismatch of a vector.
type CountError struct {
	Field    string
	Expected int
	Actual   int
	base     error
}

// Error implements error.
func (e *CountError) Error() string {
	return fmt.Sprintf("%s: expect %d channels, got %d", e.Field, e.Expected, e.Actual)
}

// Unwrap returns ErrChannelCountMismatch or ErrInvalidArgument.
func (e *CountError) Unwrap() error { return e.base }
