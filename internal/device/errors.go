package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when no device is registered under a name.
	ErrNotFound = errors.New("device: not found")

	// ErrDuplicateKey is returned when inserting a device whose name or MAC is taken.
	ErrDuplicateKey = errors.New("device: duplicate key")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty, too long or contains control characters.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidMAC is returned when a MAC contains characters that would break message framing.
	ErrInvalidMAC = errors.New("device: invalid mac")
)
