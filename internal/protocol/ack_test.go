package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func TestAckBuilder_Build(t *testing.T) {
	b := NewAckBuilderWithClock(fixedClock(1767225600))
	request := []byte("REGISTER\talice\tpw1\tAA:BB:CC:DD:EE:01")

	ack := b.Build(CodeRegistered, "alice", request)

	sum := sha256.Sum256(request)
	assert.Equal(t, Ack{
		Code:      CodeRegistered,
		Name:      "alice",
		Timestamp: 1767225600,
		Digest:    hex.EncodeToString(sum[:]),
	}, ack)
	assert.True(t, ack.Matches(request))
	assert.False(t, ack.Matches([]byte("REGISTER\talice\tpw1\tAA:BB:CC:DD:EE:02")))
	assert.Equal(t, "Device alice registered", ack.Text())
}

func TestAckBuilder_DigestIsFreshPerCall(t *testing.T) {
	b := NewAckBuilder()
	request := []byte("LOGOFF\talice")

	first := b.Build(CodeLoggedOff, "alice", request)
	_ = b.Build(CodeLoggedOn, "bob", []byte("LOGIN\tbob\tpw\t10.0.0.6\t5001"))
	second := b.Build(CodeLoggedOff, "alice", request)

	assert.Equal(t, first.Digest, second.Digest, "same request must give same digest regardless of history")
	assert.Len(t, first.Digest, sha256.Size*2)
}

func TestAckBuilder_Concurrent(t *testing.T) {
	b := NewAckBuilder()
	want := Digest([]byte("DATA\t01\talice\t1\t1\tx"))

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack := b.Build(CodeDataReceived, "alice", []byte("DATA\t01\talice\t1\t1\tx"))
			assert.Equal(t, want, ack.Digest)
		}()
	}
	wg.Wait()
}

func TestAck_WireRoundTrip(t *testing.T) {
	request := []byte("LOGIN\talice\tpw1\t10.0.0.5\t5000")
	ack := NewAckBuilderWithClock(fixedClock(99)).Build(CodeLoggedOn, "alice", request)

	parsed, err := Parse(Marshal(ack))
	require.NoError(t, err)

	got, ok := parsed.(Ack)
	require.True(t, ok)
	assert.True(t, got.Matches(request))
}

func TestCode_Text(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeRegistered, "Device alice registered"},
		{CodeAlreadyRegistered, "Device alice previously registered"},
		{CodeEndpointChanged, "Device alice endpoint changed"},
		{CodeIPInUse, "IP address already in use"},
		{CodeMACInUse, "MAC address already in use"},
		{CodeDeregistered, "Device alice deregistered"},
		{CodeDidNotExist, "Device did not exist"},
		{CodeRegisteredElsewhere, "Device alice is already registered with another MAC"},
		{CodeNotRegistered, "Device is not registered"},
		{CodeStatusReceived, "Status received"},
		{CodeDataReceived, "Data received"},
		{CodeDataNotRegistered, "Device is not registered"},
		{CodeLoggedOn, "Device alice is logged on"},
		{CodeLoggedOff, "Device alice is logged off"},
		{Code("77"), `Unknown acknowledgement "77"`},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Text("alice"))
		})
	}

	assert.True(t, CodeLoggedOff.Known())
	assert.False(t, Code("77").Known())
}
