package client

import (
	"context"
	"net"

	"github.com/nerrad567/devicelink/internal/protocol"
)

// handleServer dispatches one message received from the server.
func (c *Client) handleServer(ctx context.Context, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		c.log().Debug("dropping malformed server message", "error", err)
		return
	}

	ev := Event{Channel: ChannelServer, From: c.server.RemoteAddr().String(), Message: msg, Text: describe(msg)}
	switch m := msg.(type) {
	case protocol.Ack:
		ev.Verified = c.settle(m)
		c.emit(ctx, ev)
	case protocol.Query:
		c.emit(ctx, ev)
		c.processQuery(ctx, m, nil)
	case protocol.Data:
		c.emit(ctx, ev)
	default:
		c.log().Debug("ignoring server message", "type", string(msg.Type()))
	}
}

// handlePeer dispatches one datagram received from a peer.
func (c *Client) handlePeer(ctx context.Context, raw []byte, from net.Addr) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		c.log().Debug("dropping malformed peer message", "from", from.String(), "error", err)
		return
	}

	ev := Event{Channel: ChannelPeer, From: from.String(), Message: msg, Text: describe(msg)}
	switch m := msg.(type) {
	case protocol.Ack:
		ev.Verified = c.settle(m)
		c.emit(ctx, ev)
	case protocol.Query:
		c.emit(ctx, ev)
		c.processQuery(ctx, m, from)
	case protocol.Data:
		c.emit(ctx, ev)
		c.ackPeer(from, protocol.CodeDataReceived, raw)
	case protocol.Status:
		c.emit(ctx, ev)
		c.ackPeer(from, protocol.CodeStatusReceived, raw)
	default:
		c.log().Debug("ignoring peer message", "type", string(msg.Type()), "from", from.String())
	}
}

// processQuery answers a QUERY. A sensor query is answered with DATA over
// the server connection. A loopback query is answered over the peer
// channel, to the sender if it came from a peer, otherwise to the
// requester resolved through the directory.
func (c *Client) processQuery(ctx context.Context, q protocol.Query, from net.Addr) {
	var err error
	switch q.Code {
	case protocol.QuerySensor:
		err = c.SendData(protocol.DataSensor, SensorPayload)
	case protocol.QueryLoopback:
		reply := c.data(protocol.DataSensor, LoopbackPayload)
		if from != nil {
			err = c.sendPeer(from, reply)
		} else {
			err = c.sendPeerByName(ctx, q.Requester, reply)
		}
	default:
		c.log().Debug("ignoring query", "code", q.Code, "requester", q.Requester)
		return
	}
	if err != nil {
		c.log().Warn("query reply failed", "code", q.Code, "requester", q.Requester, "error", err)
	}
}

// ackPeer acknowledges a peer message back to its sender.
func (c *Client) ackPeer(to net.Addr, code protocol.Code, raw []byte) {
	ack := c.acks.Build(code, c.name, raw)
	if _, err := c.peer.WriteTo(protocol.Marshal(ack), to); err != nil {
		c.log().Warn("peer ack failed", "to", to.String(), "code", string(code), "error", err)
	}
}
