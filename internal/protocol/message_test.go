package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParse(t *testing.T) {
	messages := []Message{
		Register{Name: "alice", Passphrase: "pw1", MAC: "AA:BB:CC:DD:EE:01"},
		Deregister{Name: "alice", Passphrase: "pw1", MAC: "AA:BB:CC:DD:EE:01"},
		Login{Name: "alice", Passphrase: "pw1", IP: "10.0.0.5", Port: 5000},
		Logoff{Name: "alice"},
		Data{Code: DataSensor, Name: "alice", Timestamp: 1767225600, Length: 11, Payload: "Sensor Data"},
		Query{Code: QuerySensor, Requester: "Server", Timestamp: 1767225600, Target: "alice"},
		Status{Code: StatusCheck, Name: "bob", Timestamp: 1767225600, Length: 15, Message: "Checking Status"},
		Ack{Code: CodeLoggedOn, Name: "alice", Timestamp: 1767225600, Digest: Digest([]byte("x"))},
	}

	for _, m := range messages {
		t.Run(string(m.Type()), func(t *testing.T) {
			got, err := Parse(Marshal(m))
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestMarshal_WireLayout(t *testing.T) {
	assert.Equal(t, "LOGIN\talice\tpw1\t10.0.0.5\t5000",
		string(Marshal(Login{Name: "alice", Passphrase: "pw1", IP: "10.0.0.5", Port: 5000})))
	assert.Equal(t, "QUERY\t01\tServer\t42\talice",
		string(Marshal(Query{Code: "01", Requester: "Server", Timestamp: 42, Target: "alice"})))
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "newline only", input: "\n"},
		{name: "unknown tag", input: "HELLO\talice"},
		{name: "lower case tag", input: "register\talice\tpw1\taa:bb:cc:dd:ee:01"},
		{name: "register short", input: "REGISTER\talice\tpw1"},
		{name: "logoff bare tag", input: "LOGOFF"},
		{name: "login bad port", input: "LOGIN\talice\tpw1\t10.0.0.5\tfive"},
		{name: "login port out of range", input: "LOGIN\talice\tpw1\t10.0.0.5\t70000"},
		{name: "data bad timestamp", input: "DATA\t01\talice\tnow\t1\tx"},
		{name: "data bad length", input: "DATA\t01\talice\t1\tone\tx"},
		{name: "status bad length", input: "STATUS\t01\talice\t1\t\tx"},
		{name: "ack bad timestamp", input: "ACK\t00\talice\t\tdigest"},
		{name: "query short", input: "QUERY\t01\tServer\t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.input))
			require.ErrorIs(t, err, ErrMalformedMessage)
			assert.Nil(t, m)
		})
	}
}

func TestParse_Lenient(t *testing.T) {
	t.Run("extra fields ignored", func(t *testing.T) {
		m, err := Parse([]byte("LOGOFF\talice\tsurplus\tfields"))
		require.NoError(t, err)
		assert.Equal(t, Logoff{Name: "alice"}, m)
	})

	t.Run("trailing line ending", func(t *testing.T) {
		m, err := Parse([]byte("REGISTER\talice\tpw1\taa:bb:cc:dd:ee:01\r\n"))
		require.NoError(t, err)
		assert.Equal(t, Register{Name: "alice", Passphrase: "pw1", MAC: "aa:bb:cc:dd:ee:01"}, m)
	})

	t.Run("empty name field", func(t *testing.T) {
		m, err := Parse([]byte("LOGOFF\t"))
		require.NoError(t, err)
		assert.Equal(t, Logoff{}, m)
	})
}
