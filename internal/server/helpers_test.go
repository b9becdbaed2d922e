package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicelink/internal/audit"
	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/database"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/protocol"
	_ "github.com/nerrad567/devicelink/migrations"
)

const replyTimeout = 2 * time.Second

// silenceWindow is how long a test waits to conclude no reply is coming.
const silenceWindow = 150 * time.Millisecond

type testEnv struct {
	srv      *Server
	registry *device.Registry
	audit    *audit.SQLiteRepository
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "json"}, "test")
}

// startServer runs a server on 127.0.0.1:0 backed by an in-memory SQLite
// registry and audit log. mutate may adjust the deps before New.
func startServer(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx))

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	require.NoError(t, registry.RefreshCache(ctx))
	auditRepo := audit.NewSQLiteRepository(db.DB)

	deps := Deps{
		Registry: registry,
		Logger:   testLogger(),
		Audit:    auditRepo,
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	<-srv.Ready()

	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		require.NoError(t, <-errCh)
	})
	return &testEnv{srv: srv, registry: registry, audit: auditRepo}
}

// deviceConn is a raw protocol connection standing in for a device.
type deviceConn struct {
	t    *testing.T
	conn net.Conn
}

func (e *testEnv) dial(t *testing.T) *deviceConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", e.srv.Addr().String(), replyTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return &deviceConn{t: t, conn: conn}
}

// send writes one message and returns its exact bytes.
func (c *deviceConn) send(fields ...string) []byte {
	c.t.Helper()
	raw := protocol.Encode(fields...)
	_, err := c.conn.Write(raw)
	require.NoError(c.t, err)
	return raw
}

// recv reads and parses one message.
func (c *deviceConn) recv() protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(replyTimeout)))
	buf := make([]byte, protocol.DefaultReadBuffer)
	n, err := c.conn.Read(buf)
	require.NoError(c.t, err)
	msg, err := protocol.Parse(buf[:n])
	require.NoError(c.t, err)
	return msg
}

// request sends a message and returns the ACK, checking its echo digest.
func (c *deviceConn) request(fields ...string) protocol.Ack {
	c.t.Helper()
	raw := c.send(fields...)
	msg := c.recv()
	ack, ok := msg.(protocol.Ack)
	require.True(c.t, ok, "expected ACK, got %T", msg)
	require.True(c.t, ack.Matches(raw), "ACK digest does not echo the request")
	return ack
}

// expectSilence asserts nothing arrives within silenceWindow.
func (c *deviceConn) expectSilence() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(silenceWindow)))
	buf := make([]byte, protocol.DefaultReadBuffer)
	n, err := c.conn.Read(buf)
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "expected no reply, got %q (err %v)", buf[:n], err)
}

// expectClosed asserts the server closed the connection.
func (c *deviceConn) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(replyTimeout)))
	_, err := c.conn.Read(make([]byte, 16))
	require.Error(c.t, err)
	var netErr net.Error
	require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open")
}

func (c *deviceConn) register(name, pass, mac string) protocol.Ack {
	c.t.Helper()
	return c.request("REGISTER", name, pass, mac)
}

func (c *deviceConn) login(name, pass, ip, port string) protocol.Ack {
	c.t.Helper()
	return c.request("LOGIN", name, pass, ip, port)
}

// recordingWriter captures relayed telemetry.
type recordingWriter struct {
	mu     sync.Mutex
	data   []string
	events []string
}

func (w *recordingWriter) WriteDeviceData(device, code string, _ int, payload string, _ time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, device+"/"+code+"/"+payload)
}

func (w *recordingWriter) WriteDeviceEvent(device, event string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, device+"/"+event)
}

func (w *recordingWriter) snapshot() (data, events []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.data...), append([]string(nil), w.events...)
}
