package client

import (
	"crypto/rand"
	"fmt"
)

// macPrefix is the locally used OUI for generated addresses.
const macPrefix = "00:16:3e"

// GenerateMAC returns a random address under macPrefix.
func GenerateMAC() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating mac: %w", err)
	}
	return fmt.Sprintf("%s:%02x:%02x:%02x", macPrefix, b[0], b[1], b[2]), nil
}
