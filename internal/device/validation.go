package device

import (
	"fmt"
	"strings"
	"unicode"
)

// Validation constants.
const (
	maxNameLength = 64

	// framingChars are the bytes a field cannot carry without changing
	// how the message splits on the wire.
	framingChars = "\t\r\n"
)

// ValidateName checks if a device name is usable as a registry key and wire field.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: name contains control characters", ErrInvalidName)
	}
	return nil
}

// ValidatePassphrase checks a passphrase supplied at registration.
// Any string that survives framing is accepted, including the empty one.
func ValidatePassphrase(passphrase string) error {
	if strings.ContainsAny(passphrase, framingChars) {
		return fmt.Errorf("%w: passphrase contains framing characters", ErrInvalidDevice)
	}
	return nil
}

// NormalizeMAC trims surrounding whitespace from mac. The identifier is
// otherwise opaque: it is stored and compared exactly as sent.
//
// Example: " AA:BB:CC:DD:EE:01 " -> "AA:BB:CC:DD:EE:01"
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if strings.ContainsAny(mac, framingChars) {
		return "", fmt.Errorf("%w: %q contains framing characters", ErrInvalidMAC, mac)
	}
	return mac, nil
}

// ValidateDevice checks a record before insertion and trims its MAC in place.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidatePassphrase(d.Passphrase); err != nil {
		return err
	}
	mac, err := NormalizeMAC(d.MAC)
	if err != nil {
		return err
	}
	d.MAC = mac
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidDevice, d.Port)
	}
	return nil
}
