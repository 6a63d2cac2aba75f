package datapoint

import "errors"

// Errors returned by the datapoint package.
var (
	// ErrTruncatedPayload is returned when a record's declared length exceeds
	// the remaining bytes.
	ErrTruncatedPayload = errors.New("datapoint: truncated payload")

	// ErrUnknownType is returned for an unrecognized type tag.
	// Skip-vs-abort policy is the device layer's call, not this package's.
	ErrUnknownType = errors.New("datapoint: unknown type tag")

	// ErrLengthMismatch is returned when a fixed-width type declares the
	// wrong value length.
	ErrLengthMismatch = errors.New("datapoint: value length does not match type")

	// ErrTypeMismatch is returned by typed accessors when the stored type
	// tag disagrees with the requested one.
	ErrTypeMismatch = errors.New("datapoint: value type mismatch")

	// ErrValueTooLong is returned on encode when a value exceeds the 16-bit
	// length field.
	ErrValueTooLong = errors.New("datapoint: value exceeds maximum length")
)
