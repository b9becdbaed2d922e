package client

import (
	"fmt"

	"github.com/nerrad567/devicelink/internal/protocol"
)

// Channel identifies where a message arrived.
type Channel int

// Channels.
const (
	ChannelServer Channel = iota
	ChannelPeer
)

func (ch Channel) String() string {
	if ch == ChannelPeer {
		return "peer"
	}
	return "server"
}

// Event is one received message.
type Event struct {
	Channel Channel
	// From is the sender's address.
	From    string
	Message protocol.Message
	// Verified is set on an ACK whose digest echoes a request this client sent.
	Verified bool
	// Text is the human-readable line for the message.
	Text string
}

// describe returns the display line for a received message.
func describe(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.Ack:
		return m.Text()
	case protocol.Query:
		return fmt.Sprintf("Query %s from %s", m.Code, m.Requester)
	case protocol.Data:
		return fmt.Sprintf("Data from %s: %s", m.Name, m.Payload)
	case protocol.Status:
		return fmt.Sprintf("Status from %s: %s", m.Name, m.Message)
	default:
		return string(msg.Type())
	}
}
