package server

import "errors"

var (
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server: closed")

	// ErrDeviceNotActive is returned when querying a device that is not logged on.
	ErrDeviceNotActive = errors.New("server: device not active")

	// ErrNoEndpoint is returned when an active device has neither a live
	// session nor a recorded endpoint.
	ErrNoEndpoint = errors.New("server: device unreachable")
)
