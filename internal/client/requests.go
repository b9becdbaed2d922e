package client

import (
	"context"
	"fmt"
	"net"

	"github.com/nerrad567/devicelink/internal/protocol"
)

// Fixed payloads. Sensing is outside the client; every query gets the same reading.
const (
	SensorPayload   = "Sensor Data"
	LoopbackPayload = "Test Data"
	StatusMessage   = "Checking Status"
)

// Register asks the server to register this device.
func (c *Client) Register() error {
	return c.sendServer(protocol.Register{Name: c.name, Passphrase: c.passphrase, MAC: c.mac})
}

// Deregister asks the server to remove this device.
func (c *Client) Deregister() error {
	return c.sendServer(protocol.Deregister{Name: c.name, Passphrase: c.passphrase, MAC: c.mac})
}

// Login starts a session, advertising the peer endpoint.
func (c *Client) Login() error {
	addr := c.PeerAddr()
	if addr == nil {
		return fmt.Errorf("%w: peer endpoint has no address", protocol.ErrTransportClosed)
	}
	return c.sendServer(protocol.Login{
		Name:       c.name,
		Passphrase: c.passphrase,
		IP:         addr.IP.String(),
		Port:       addr.Port,
	})
}

// Logoff ends the session.
func (c *Client) Logoff() error {
	return c.sendServer(protocol.Logoff{Name: c.name})
}

// SendData sends a DATA message to the server.
func (c *Client) SendData(code, payload string) error {
	return c.sendServer(c.data(code, payload))
}

// QueryPeer sends a QUERY with code to peer over the peer channel.
func (c *Client) QueryPeer(ctx context.Context, peer, code string) error {
	return c.sendPeerByName(ctx, peer, protocol.Query{
		Code:      code,
		Requester: c.name,
		Timestamp: c.now().Unix(),
		Target:    peer,
	})
}

// SendStatus sends a liveness STATUS to peer over the peer channel.
func (c *Client) SendStatus(ctx context.Context, peer string) error {
	return c.sendPeerByName(ctx, peer, protocol.Status{
		Code:      protocol.StatusCheck,
		Name:      c.name,
		Timestamp: c.now().Unix(),
		Length:    len(StatusMessage),
		Message:   StatusMessage,
	})
}

func (c *Client) data(code, payload string) protocol.Data {
	return protocol.Data{
		Code:      code,
		Name:      c.name,
		Timestamp: c.now().Unix(),
		Length:    len(payload),
		Payload:   payload,
	}
}

// sendServer writes one message on the server connection.
func (c *Client) sendServer(msg protocol.Message) error {
	raw := protocol.Marshal(msg)
	c.remember(raw)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.server.Write(raw); err != nil {
		return fmt.Errorf("%w: sending %s: %w", protocol.ErrTransportClosed, msg.Type(), err)
	}
	return nil
}

// sendPeerByName resolves peer through the directory and sends msg to it.
func (c *Client) sendPeerByName(ctx context.Context, peer string, msg protocol.Message) error {
	if c.directory == nil {
		return ErrNoDirectory
	}
	endpoint, err := c.directory.Lookup(ctx, peer)
	if err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err == nil {
		err = c.sendPeer(addr, msg)
	} else {
		err = fmt.Errorf("resolving %s endpoint %s: %w", peer, endpoint, err)
	}
	if err != nil {
		if f, ok := c.directory.(forgetter); ok {
			f.Forget(peer)
		}
		return err
	}
	return nil
}

// sendPeer writes one datagram to addr.
func (c *Client) sendPeer(addr net.Addr, msg protocol.Message) error {
	raw := protocol.Marshal(msg)
	c.remember(raw)

	if _, err := c.peer.WriteTo(raw, addr); err != nil {
		return fmt.Errorf("%w: sending %s to %s: %w", protocol.ErrTransportClosed, msg.Type(), addr, err)
	}
	return nil
}
