package tuyable

import "errors"

// Errors returned by the tuyable package.
var (
	// ErrClosed is returned for operations on a closed device.
	ErrClosed = errors.New("tuyable: device closed")

	// ErrNotFingerbot is returned by actuator operations on a device whose
	// category is not the actuator family.
	ErrNotFingerbot = errors.New("tuyable: device is not an actuator")

	// ErrNotLock is returned by lock operations on a non-lock device.
	ErrNotLock = errors.New("tuyable: device is not a lock")
)
