// Package protocol implements the device wire protocol.
//
// Messages are ASCII fields joined by a single tab with no terminator. One
// transport write carries one message. Field 0 is the type tag:
//
//	REGISTER    name, passphrase, mac
//	DEREGISTER  name, passphrase, mac
//	LOGIN       name, passphrase, ip, port
//	LOGOFF      name
//	DATA        code, name, timestamp, length, payload
//	QUERY       code, requester, timestamp, target
//	STATUS      code, name, timestamp, length, message
//	ACK         code, name, timestamp, digest
//
// The codec does no escaping. Field values must not contain a tab.
//
// An ACK digest is the hex SHA-256 of the exact request bytes it answers.
// It lets a sender match replies to requests. It is not keyed and proves
// nothing about who sent the reply.
package protocol
