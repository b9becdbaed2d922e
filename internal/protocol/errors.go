package protocol

import "errors"

var (
	// ErrMalformedMessage is returned by Parse for unknown tags, short field
	// lists and non-numeric numeric fields.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrTransportClosed is returned when the peer disconnected or a send or
	// receive on the connection failed.
	ErrTransportClosed = errors.New("protocol: transport closed")
)
