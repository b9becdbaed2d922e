package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/protocol"
)

// RequesterName identifies the server in QUERY messages it originates.
const RequesterName = "Server"

// ActiveDevices returns the devices that can be queried, ordered by name.
func (s *Server) ActiveDevices() []device.Device {
	return s.registry.ListActive()
}

// Query asks target for a sensor reading. The device answers with DATA on
// its server connection, which is acknowledged and relayed like any other.
//
// Parameters:
//   - ctx: Bounds the datagram fallback dial
//   - target: Name of an active device
//
// Returns:
//   - error: device.ErrNotFound, ErrDeviceNotActive, ErrNoEndpoint or a transport error
func (s *Server) Query(ctx context.Context, target string) error {
	msg := protocol.Query{
		Code:      protocol.QuerySensor,
		Requester: RequesterName,
		Timestamp: time.Now().Unix(),
		Target:    target,
	}
	if err := s.deliver(ctx, target, protocol.Marshal(msg)); err != nil {
		return err
	}
	s.logger.Info("query sent", "device", target)
	return nil
}

// deliver sends b to an active device over its live session, falling back
// to a datagram to the endpoint recorded at login.
func (s *Server) deliver(ctx context.Context, target string, b []byte) error {
	d, err := s.registry.LookupByName(target)
	if err != nil {
		return fmt.Errorf("device %s: %w", target, err)
	}
	if !d.Active {
		return fmt.Errorf("device %s: %w", target, ErrDeviceNotActive)
	}

	if sess := s.sessions.Get(target); sess != nil {
		err := sess.Write(b)
		if err == nil {
			return nil
		}
		s.logger.Debug("session write failed, trying endpoint", "device", target, "error", err)
	}

	if !d.HasEndpoint() {
		return fmt.Errorf("device %s: %w", target, ErrNoEndpoint)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", d.Endpoint())
	if err != nil {
		return fmt.Errorf("dialing %s: %w", d.Endpoint(), err)
	}
	defer conn.Close()

	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransportClosed, err)
	}
	return nil
}
