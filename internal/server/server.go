package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nerrad567/devicelink/internal/audit"
	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/metrics"
	"github.com/nerrad567/devicelink/internal/protocol"
	"github.com/nerrad567/devicelink/internal/relay"
)

// Accept loop backoff.
const (
	maxConsecutiveAcceptErrors = 10
	acceptBackoffStep          = 100 * time.Millisecond
	maxAcceptBackoff           = 2 * time.Second
)

// Deps holds the dependencies of the server.
type Deps struct {
	Registry *device.Registry // required
	Logger   *logging.Logger  // required

	Audit      audit.Repository     // optional
	Relay      *relay.Relay         // optional
	Metrics    *metrics.Metrics     // optional
	AckBuilder *protocol.AckBuilder // defaults to the wall clock

	// ReadBuffer is the size of one receive. Defaults to protocol.DefaultReadBuffer.
	ReadBuffer int
	// IdleTimeout closes silent connections. 0 disables it.
	IdleTimeout time.Duration
	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int
	// MessagesPerSecond limits dispatch per connection. 0 means unlimited.
	MessagesPerSecond float64
}

// Server accepts device connections and runs the protocol against the registry.
type Server struct {
	registry *device.Registry
	logger   *logging.Logger
	audit    audit.Repository
	relay    *relay.Relay
	metrics  *metrics.Metrics
	acks     *protocol.AckBuilder
	sessions *SessionManager

	readBuffer        int
	idleTimeout       time.Duration
	messagesPerSecond float64
	connLimit         *semaphore.Weighted

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a server. It does not listen until Serve or ListenAndServe.
//
// Parameters:
//   - deps: Registry and Logger are required, everything else is optional
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		registry:          deps.Registry,
		logger:            deps.Logger,
		audit:             deps.Audit,
		relay:             deps.Relay,
		metrics:           deps.Metrics,
		acks:              deps.AckBuilder,
		sessions:          NewSessionManager(),
		readBuffer:        deps.ReadBuffer,
		idleTimeout:       deps.IdleTimeout,
		messagesPerSecond: deps.MessagesPerSecond,
		ready:             make(chan struct{}),
		done:              make(chan struct{}),
	}
	if s.acks == nil {
		s.acks = protocol.NewAckBuilder()
	}
	if s.readBuffer <= 0 {
		s.readBuffer = protocol.DefaultReadBuffer
	}
	if deps.MaxConnections > 0 {
		s.connLimit = semaphore.NewWeighted(int64(deps.MaxConnections))
	}
	return s, nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or Close is called.
// A clean stop returns nil. Ten consecutive accept failures end the loop
// with an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	default:
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())
	s.readyOnce.Do(func() { close(s.ready) })

	stop := context.AfterFunc(ctx, func() { s.Close() }) //nolint:errcheck // Close error is logged
	defer stop()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			consecutiveErrors++
			s.logger.Error("accept error", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= maxConsecutiveAcceptErrors {
				return fmt.Errorf("accept: %d consecutive errors, last: %w", consecutiveErrors, err)
			}
			backoff := time.Duration(consecutiveErrors) * acceptBackoffStep
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			time.Sleep(backoff)
			continue
		}
		consecutiveErrors = 0

		if s.connLimit != nil && !s.connLimit.TryAcquire(1) {
			s.logger.Warn("connection limit reached, rejecting", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		s.mu.Lock()
		if s.isClosed() {
			s.mu.Unlock()
			conn.Close()
			if s.connLimit != nil {
				s.connLimit.Release(1)
			}
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			if s.connLimit != nil {
				defer s.connLimit.Release(1)
			}
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs one session on conn until the peer disconnects, a
// transport error occurs, the idle timeout expires or ctx is cancelled.
// The connection is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	sess := newSession(conn)
	s.sessions.Add(sess)
	if s.isClosed() {
		s.sessions.Remove(sess)
		sess.close()
		return
	}
	s.metrics.ConnectionOpened()
	logger := s.logger.With("session", sess.ID, "remote", sess.RemoteAddr)
	logger.Debug("session opened")

	stop := context.AfterFunc(ctx, sess.close)
	defer func() {
		stop()
		s.sessions.Remove(sess)
		sess.close()
		s.metrics.ConnectionClosed()
		logger.Debug("session closed", "device", sess.Name())
	}()

	var limiter *rate.Limiter
	if s.messagesPerSecond > 0 {
		burst := int(s.messagesPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.messagesPerSecond), burst)
	}

	buf := make([]byte, s.readBuffer)
	for {
		if s.idleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				return
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			raw := make([]byte, n)
			copy(raw, buf[:n])

			if limiter != nil && !limiter.Allow() {
				s.metrics.MessageDropped(metrics.DropRateLimited)
				logger.Warn("rate limit exceeded, message dropped")
			} else {
				s.handle(ctx, sess, raw)
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Info("idle timeout, closing session", "device", sess.Name())
			}
			return
		}
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	return s.sessions.Len()
}

// Close stops accepting, closes every session and waits for the workers.
// Registry state is left untouched: devices stay logged on.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		ln := s.listener
		s.mu.Unlock()

		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = fmt.Errorf("closing listener: %w", cerr)
			}
		}
		s.sessions.CloseAll()
		s.wg.Wait()
		s.logger.Info("server closed")
	})
	return err
}

func (s *Server) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
