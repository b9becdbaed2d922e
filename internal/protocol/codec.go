package protocol

import (
	"bytes"
	"strings"
)

// Separator is the field delimiter.
const Separator = "\t"

// DefaultReadBuffer is the size of one receive. A message must fit in it.
const DefaultReadBuffer = 2048

// Encode joins fields with a tab. No terminator is appended.
func Encode(fields ...string) []byte {
	return []byte(strings.Join(fields, Separator))
}

// Decode splits b on tabs. It never fails; missing fields are the caller's concern.
func Decode(b []byte) []string {
	return strings.Split(string(b), Separator)
}

// trimLineEnding drops a trailing CR/LF so line-oriented tools can talk to the server.
func trimLineEnding(b []byte) []byte {
	return bytes.TrimRight(b, "\r\n")
}
