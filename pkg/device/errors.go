package device

import "errors"

// Errors returned by the device package.
var (
	// ErrInvalidPosition is returned for a program step position outside
	// 0–100 or not numeric.
	ErrInvalidPosition = errors.New("device: invalid program step position")

	// ErrInvalidTime is returned for a program step hold time that is
	// non-numeric or negative.
	ErrInvalidTime = errors.New("device: invalid program step time")

	// ErrUnknownCategory is returned by NewMapper for a category outside
	// the supported set.
	ErrUnknownCategory = errors.New("device: unknown device category")

	// ErrNoProgramSupport is returned when a program operation targets a
	// product without a program datapoint.
	ErrNoProgramSupport = errors.New("device: product has no program support")

	// ErrBadProgramPayload is returned for a malformed program datapoint.
	ErrBadProgramPayload = errors.New("device: malformed program payload")

	// ErrPositionRange is returned for command positions outside 0–100.
	ErrPositionRange = errors.New("device: position outside 0–100")
)
