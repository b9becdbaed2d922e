package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AckBuilder builds acknowledgements. It is safe for concurrent use.
type AckBuilder struct {
	now func() time.Time
}

// NewAckBuilder returns a builder stamped with the wall clock.
func NewAckBuilder() *AckBuilder {
	return &AckBuilder{now: time.Now}
}

// NewAckBuilderWithClock returns a builder using now for timestamps.
func NewAckBuilderWithClock(now func() time.Time) *AckBuilder {
	return &AckBuilder{now: now}
}

// Build returns the acknowledgement of request. The digest is computed
// fresh from request on every call.
func (b *AckBuilder) Build(code Code, name string, request []byte) Ack {
	return Ack{
		Code:      code,
		Name:      name,
		Timestamp: b.now().Unix(),
		Digest:    Digest(request),
	}
}

// Digest returns the hex SHA-256 of request.
func Digest(request []byte) string {
	sum := sha256.Sum256(request)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether a echoes request.
func (a Ack) Matches(request []byte) bool {
	return a.Digest == Digest(request)
}

// Text returns the human-readable line for the acknowledgement.
func (a Ack) Text() string {
	return a.Code.Text(a.Name)
}
