package client

import (
	"context"
	"io"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/protocol"
	"github.com/nerrad567/devicelink/internal/server"
)

const eventTimeout = 2 * time.Second

type testServer struct {
	srv       *server.Server
	registry  *device.Registry
	directory *RegistryDirectory
}

// startServer runs a server over a memory registry. The directory reads
// the same repository the registry writes.
func startServer(t *testing.T) *testServer {
	t.Helper()

	repo := device.NewMemoryRepository()
	registry := device.NewRegistry(repo)
	logger := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "json"}, "test")

	srv, err := server.New(server.Deps{Registry: registry, Logger: logger})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(context.Background(), ln) //nolint:errcheck // Stopped by Close
	<-srv.Ready()
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	directory := NewRegistryDirectory(repo, time.Millisecond)
	t.Cleanup(func() { directory.Close() }) //nolint:errcheck // Test cleanup

	return &testServer{srv: srv, registry: registry, directory: directory}
}

// start dials and runs a client. Run's result is available on the returned channel.
func (ts *testServer) start(t *testing.T, name, mac string) (*Client, <-chan error) {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		Name:       name,
		Passphrase: "pw-" + name,
		MAC:        mac,
		ServerAddr: ts.srv.Addr().String(),
		Directory:  ts.directory,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- c.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return c, done
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// expectAck waits for an ACK event and checks its code and channel.
func expectAck(t *testing.T, c *Client, ch Channel, code protocol.Code) Event {
	t.Helper()
	ev := nextEvent(t, c)
	ack, ok := ev.Message.(protocol.Ack)
	require.True(t, ok, "expected ACK, got %T (%s)", ev.Message, ev.Text)
	assert.Equal(t, code, ack.Code, ev.Text)
	assert.Equal(t, ch, ev.Channel)
	assert.True(t, ev.Verified, "ACK should echo a sent request")
	return ev
}

func TestGenerateMAC(t *testing.T) {
	mac, err := GenerateMAC()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^00:16:3e:[0-9a-f]{2}:[0-9a-f]{2}:[0-9a-f]{2}$`), mac)

	other, err := GenerateMAC()
	require.NoError(t, err)
	assert.NotEqual(t, mac, other)
}

func TestDial_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Dial(ctx, Config{Passphrase: "pw", ServerAddr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, device.ErrInvalidName)

	_, err = Dial(ctx, Config{Name: "alice", ServerAddr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, device.ErrInvalidDevice)

	_, err = Dial(ctx, Config{Name: "alice", Passphrase: "pw"})
	assert.Error(t, err)

	_, err = Dial(ctx, Config{Name: "alice", Passphrase: "pw", MAC: "aa:bb\ncc", ServerAddr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, device.ErrInvalidMAC)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	_, err = Dial(ctx, Config{Name: "alice", Passphrase: "pw", ServerAddr: addr})
	assert.Error(t, err)
}

func TestClient_Lifecycle(t *testing.T) {
	ts := startServer(t)
	c, _ := ts.start(t, "alice", "AA:BB:CC:DD:EE:01")
	assert.Equal(t, "AA:BB:CC:DD:EE:01", c.MAC())

	require.NoError(t, c.Register())
	ev := expectAck(t, c, ChannelServer, protocol.CodeRegistered)
	assert.Equal(t, "Device alice registered", ev.Text)

	require.NoError(t, c.Register())
	expectAck(t, c, ChannelServer, protocol.CodeAlreadyRegistered)

	require.NoError(t, c.Login())
	ev = expectAck(t, c, ChannelServer, protocol.CodeLoggedOn)
	assert.Equal(t, "Device alice is logged on", ev.Text)

	d, err := ts.registry.LookupByName("alice")
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.Equal(t, c.PeerAddr().IP.String(), d.IP)
	assert.Equal(t, c.PeerAddr().Port, d.Port)

	require.NoError(t, c.SendData(protocol.DataSensor, SensorPayload))
	expectAck(t, c, ChannelServer, protocol.CodeDataReceived)

	require.NoError(t, c.Logoff())
	expectAck(t, c, ChannelServer, protocol.CodeLoggedOff)

	require.NoError(t, c.Deregister())
	expectAck(t, c, ChannelServer, protocol.CodeDeregistered)
	assert.Equal(t, 0, ts.registry.Count())
}

func TestClient_AnswersServerQuery(t *testing.T) {
	ts := startServer(t)
	c, _ := ts.start(t, "alice", "")

	require.NoError(t, c.Register())
	expectAck(t, c, ChannelServer, protocol.CodeRegistered)
	require.NoError(t, c.Login())
	expectAck(t, c, ChannelServer, protocol.CodeLoggedOn)

	require.NoError(t, ts.srv.Query(context.Background(), "alice"))

	ev := nextEvent(t, c)
	q, ok := ev.Message.(protocol.Query)
	require.True(t, ok, "expected QUERY, got %T", ev.Message)
	assert.Equal(t, server.RequesterName, q.Requester)
	assert.Equal(t, "Query 01 from Server", ev.Text)

	// The client answers with sensor data, which the server acknowledges.
	expectAck(t, c, ChannelServer, protocol.CodeDataReceived)
}

func TestClient_PeerExchange(t *testing.T) {
	ts := startServer(t)
	alice, _ := ts.start(t, "alice", "")
	bob, _ := ts.start(t, "bob", "")

	for _, c := range []*Client{alice, bob} {
		require.NoError(t, c.Register())
		expectAck(t, c, ChannelServer, protocol.CodeRegistered)
		require.NoError(t, c.Login())
		expectAck(t, c, ChannelServer, protocol.CodeLoggedOn)
	}

	// STATUS is acknowledged with 40 over the peer channel.
	require.NoError(t, alice.SendStatus(context.Background(), "bob"))
	ev := nextEvent(t, bob)
	status, ok := ev.Message.(protocol.Status)
	require.True(t, ok, "expected STATUS, got %T", ev.Message)
	assert.Equal(t, StatusMessage, status.Message)
	assert.Equal(t, len(StatusMessage), status.Length)
	assert.Equal(t, ChannelPeer, ev.Channel)
	expectAck(t, alice, ChannelPeer, protocol.CodeStatusReceived)

	// A loopback QUERY is answered with DATA over the peer channel, which
	// the requester acknowledges with 50.
	require.NoError(t, alice.QueryPeer(context.Background(), "bob", protocol.QueryLoopback))
	ev = nextEvent(t, bob)
	_, ok = ev.Message.(protocol.Query)
	require.True(t, ok, "expected QUERY, got %T", ev.Message)

	ev = nextEvent(t, alice)
	data, ok := ev.Message.(protocol.Data)
	require.True(t, ok, "expected DATA, got %T", ev.Message)
	assert.Equal(t, LoopbackPayload, data.Payload)
	assert.Equal(t, "Data from bob: Test Data", ev.Text)

	expectAck(t, bob, ChannelPeer, protocol.CodeDataReceived)

	// A sensor QUERY from a peer is answered to the server.
	require.NoError(t, alice.QueryPeer(context.Background(), "bob", protocol.QuerySensor))
	nextEvent(t, bob)
	expectAck(t, bob, ChannelServer, protocol.CodeDataReceived)
}

func TestClient_LoopbackToRequester(t *testing.T) {
	ts := startServer(t)

	requester, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer requester.Close()

	c, err := Dial(context.Background(), Config{
		Name:       "alice",
		Passphrase: "pw",
		ServerAddr: ts.srv.Addr().String(),
		Directory: DirectoryFunc(func(_ context.Context, name string) (string, error) {
			require.Equal(t, "carol", name)
			return requester.LocalAddr().String(), nil
		}),
	})
	require.NoError(t, err)
	defer c.Close()

	c.processQuery(context.Background(), protocol.Query{Code: protocol.QueryLoopback, Requester: "carol", Target: "alice"}, nil)

	require.NoError(t, requester.SetReadDeadline(time.Now().Add(eventTimeout)))
	buf := make([]byte, protocol.DefaultReadBuffer)
	n, _, err := requester.ReadFrom(buf)
	require.NoError(t, err)
	msg, err := protocol.Parse(buf[:n])
	require.NoError(t, err)
	data, ok := msg.(protocol.Data)
	require.True(t, ok)
	assert.Equal(t, "alice", data.Name)
	assert.Equal(t, LoopbackPayload, data.Payload)
	assert.Equal(t, len(LoopbackPayload), data.Length)
}

func TestClient_PeerErrors(t *testing.T) {
	ts := startServer(t)

	c, err := Dial(context.Background(), Config{Name: "alice", Passphrase: "pw", ServerAddr: ts.srv.Addr().String()})
	require.NoError(t, err)
	defer c.Close()
	assert.ErrorIs(t, c.QueryPeer(context.Background(), "bob", protocol.QuerySensor), ErrNoDirectory)

	withDir, _ := ts.start(t, "bob", "")
	assert.ErrorIs(t, withDir.SendStatus(context.Background(), "ghost"), device.ErrNotFound)
}

// cachingDirectory returns a fixed endpoint and records evictions.
type cachingDirectory struct {
	endpoint  string
	forgotten []string
}

func (d *cachingDirectory) Lookup(context.Context, string) (string, error) {
	return d.endpoint, nil
}

func (d *cachingDirectory) Forget(name string) {
	d.forgotten = append(d.forgotten, name)
}

func TestClient_FailedPeerSendForgetsEndpoint(t *testing.T) {
	ts := startServer(t)
	dir := &cachingDirectory{endpoint: "127.0.0.1:70000"}

	c, err := Dial(context.Background(), Config{
		Name:       "alice",
		Passphrase: "pw",
		ServerAddr: ts.srv.Addr().String(),
		Directory:  dir,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.SendStatus(context.Background(), "bob"))
	assert.Equal(t, []string{"bob"}, dir.forgotten)

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()
	dir.endpoint = peer.LocalAddr().String()

	require.NoError(t, c.SendStatus(context.Background(), "bob"))
	assert.Equal(t, []string{"bob"}, dir.forgotten, "a successful send keeps the cached endpoint")
}

func TestClient_RunEndsWhenServerCloses(t *testing.T) {
	ts := startServer(t)
	c, done := ts.start(t, "alice", "")

	require.NoError(t, ts.srv.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, protocol.ErrTransportClosed)
	case <-time.After(eventTimeout):
		t.Fatal("Run did not return after the server closed")
	}

	_, ok := <-c.Events()
	assert.False(t, ok, "events should be closed")
}

func TestClient_CloseStopsRun(t *testing.T) {
	ts := startServer(t)
	c, done := ts.start(t, "alice", "")

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(eventTimeout):
		t.Fatal("Run did not return after Close")
	}
	assert.NoError(t, c.Close())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Device alice is logged off", describe(protocol.Ack{Code: protocol.CodeLoggedOff, Name: "alice"}))
	assert.Equal(t, "Query 99 from bob", describe(protocol.Query{Code: "99", Requester: "bob"}))
	assert.Equal(t, "Status from bob: Checking Status", describe(protocol.Status{Name: "bob", Message: StatusMessage}))
	assert.Equal(t, "REGISTER", describe(protocol.Register{}))

	assert.Equal(t, "server", ChannelServer.String())
	assert.Equal(t, "peer", ChannelPeer.String())
}
