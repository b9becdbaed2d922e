package client

import "errors"

var (
	// ErrPeerNotActive is returned when a peer is registered but not logged on.
	ErrPeerNotActive = errors.New("client: peer not active")

	// ErrPeerUnreachable is returned when a peer has no recorded endpoint.
	ErrPeerUnreachable = errors.New("client: peer has no endpoint")

	// ErrNoDirectory is returned by peer operations when no Directory is configured.
	ErrNoDirectory = errors.New("client: no peer directory configured")
)
