package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/protocol"
)

const (
	eventBuffer = 64

	// maxPending bounds the digests kept for ACK verification.
	maxPending = 256
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Client.
type Config struct {
	Name       string
	Passphrase string
	// MAC is generated when empty.
	MAC string
	// ServerAddr is the host:port of the server.
	ServerAddr string
	// BindIP is the address of the peer endpoint and the IP sent at login.
	// Defaults to the local address of the server connection.
	BindIP string
	// PeerPort is the UDP port of the peer endpoint. 0 picks a free port.
	PeerPort int
	// ReadBuffer is the size of one receive. Defaults to protocol.DefaultReadBuffer.
	ReadBuffer int
	// Directory resolves peers for QueryPeer and SendStatus. Optional.
	Directory Directory
}

// Client is one device's protocol engine.
type Client struct {
	name       string
	passphrase string
	mac        string
	readBuffer int
	directory  Directory
	acks       *protocol.AckBuilder
	now        func() time.Time

	server  net.Conn
	peer    net.PacketConn
	writeMu sync.Mutex

	events chan Event

	pendingMu sync.Mutex
	pending   map[string]struct{}

	loggerMu sync.RWMutex
	logger   Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the server and opens the peer endpoint.
//
// Parameters:
//   - ctx: Bounds the TCP connect
//   - cfg: Device identity and addresses
//
// Returns:
//   - *Client: Connected client; call Run to start receiving
//   - error: Invalid identity or a failed connect/bind
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := device.ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("%w: passphrase is required", device.ErrInvalidDevice)
	}
	if err := device.ValidatePassphrase(cfg.Passphrase); err != nil {
		return nil, err
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address is required")
	}

	mac := cfg.MAC
	if mac == "" {
		generated, err := GenerateMAC()
		if err != nil {
			return nil, err
		}
		mac = generated
	}
	mac, err := device.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	server, err := dialer.DialContext(ctx, "tcp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to server %s: %w", cfg.ServerAddr, err)
	}

	bindIP := cfg.BindIP
	if bindIP == "" {
		host, _, err := net.SplitHostPort(server.LocalAddr().String())
		if err != nil {
			server.Close()
			return nil, fmt.Errorf("resolving local address: %w", err)
		}
		bindIP = host
	}

	var lc net.ListenConfig
	peer, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(bindIP, strconv.Itoa(cfg.PeerPort)))
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("binding peer endpoint: %w", err)
	}

	readBuffer := cfg.ReadBuffer
	if readBuffer <= 0 {
		readBuffer = protocol.DefaultReadBuffer
	}

	return &Client{
		name:       cfg.Name,
		passphrase: cfg.Passphrase,
		mac:        mac,
		readBuffer: readBuffer,
		directory:  cfg.Directory,
		acks:       protocol.NewAckBuilder(),
		now:        time.Now,
		server:     server,
		peer:       peer,
		events:     make(chan Event, eventBuffer),
		pending:    make(map[string]struct{}),
		logger:     noopLogger{},
		closed:     make(chan struct{}),
	}, nil
}

// Name returns the device name.
func (c *Client) Name() string { return c.name }

// MAC returns the normalized MAC address sent at registration.
func (c *Client) MAC() string { return c.mac }

// PeerAddr returns the local address of the peer endpoint.
func (c *Client) PeerAddr() *net.UDPAddr {
	addr, _ := c.peer.LocalAddr().(*net.UDPAddr)
	return addr
}

// Events delivers everything the client receives. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Run drains the server connection and the peer endpoint until ctx is
// cancelled, Close is called or the server connection fails. A failed
// server connection returns an error wrapping protocol.ErrTransportClosed;
// a deliberate stop returns nil.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { c.Close() }) //nolint:errcheck // Close only closes sockets
	defer stop()

	g.Go(func() error { return c.serverLoop(gctx) })
	g.Go(func() error { return c.peerLoop(gctx) })

	return g.Wait()
}

// Close closes the server connection and the peer endpoint.
// The device stays logged on; call Logoff first to end the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = errors.Join(c.server.Close(), c.peer.Close())
	})
	return err
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// serverLoop handles messages from the server until the connection ends.
func (c *Client) serverLoop(ctx context.Context) error {
	buf := make([]byte, c.readBuffer)
	for {
		n, err := c.server.Read(buf)
		if n > 0 {
			raw := make([]byte, n)
			copy(raw, buf[:n])
			c.handleServer(ctx, raw)
		}
		if err != nil {
			if c.isClosed() {
				return nil
			}
			return fmt.Errorf("%w: server connection: %w", protocol.ErrTransportClosed, err)
		}
	}
}

// peerLoop handles datagrams from peers until the endpoint is closed.
func (c *Client) peerLoop(ctx context.Context) error {
	buf := make([]byte, c.readBuffer)
	for {
		n, from, err := c.peer.ReadFrom(buf)
		if n > 0 {
			raw := make([]byte, n)
			copy(raw, buf[:n])
			c.handlePeer(ctx, raw, from)
		}
		if err != nil {
			if c.isClosed() {
				return nil
			}
			return fmt.Errorf("%w: peer endpoint: %w", protocol.ErrTransportClosed, err)
		}
	}
}

// emit delivers ev unless ctx ends first.
func (c *Client) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// remember records the digest of a sent request for ACK verification.
func (c *Client) remember(raw []byte) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if len(c.pending) >= maxPending {
		clear(c.pending)
	}
	c.pending[protocol.Digest(raw)] = struct{}{}
}

// settle reports whether ack echoes a remembered request and forgets it.
func (c *Client) settle(ack protocol.Ack) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, ok := c.pending[ack.Digest]; !ok {
		return false
	}
	delete(c.pending, ack.Digest)
	return true
}
