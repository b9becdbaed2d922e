// devicelink is the device client: it registers with a devicelinkd
// server, logs on and exchanges messages with peer devices.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/devicelink/internal/client"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/protocol"
)

var version = "dev"

// replyTimeout bounds the wait for the server's ACK after a request.
const replyTimeout = 3 * time.Second

const menu = `
1) Register
2) Deregister
3) Login
4) Logoff
5) Query peer
6) Status peer
0) Quit
> `

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, dials the server and serves the device menu.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - in: Menu input
//   - out: Menu and event output
//
// Returns:
//   - error: nil when the user quits, or error describing failure
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("devicelink", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", os.Getenv("DEVICELINK_CONFIG"), "path to the configuration file")
	name := fs.String("d", "", "device name")
	host := fs.String("s", "", "server host")
	port := fs.Int("p", 0, "server port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	if *host != "" {
		cfg.Client.ServerHost = *host
	}
	if *port != 0 {
		cfg.Client.ServerPort = *port
	}
	if cfg.Client.Name == "" {
		return errors.New("device name is required (-d)")
	}

	log := logging.New(cfg.Logging, version).With("device", cfg.Client.Name)

	var directory client.Directory
	if cfg.Client.RegistryPath != "" {
		dir, err := client.OpenRegistryDirectory(ctx, cfg.Client.RegistryPath, cfg.Client.DirectoryTTL)
		if err != nil {
			return err
		}
		defer dir.Close() //nolint:errcheck // Read-only registry
		directory = dir
	}

	c, err := client.Dial(ctx, client.Config{
		Name:       cfg.Client.Name,
		Passphrase: cfg.Client.Passphrase,
		MAC:        cfg.Client.MAC,
		ServerAddr: cfg.ServerAddress(),
		BindIP:     cfg.Client.BindIP,
		PeerPort:   cfg.Client.PeerPort,
		Directory:  directory,
	})
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck // Run's context stop closes it first
	c.SetLogger(log)

	w := &syncWriter{w: out}
	fmt.Fprintf(w, "Device %s (%s), peer endpoint %s\n", c.Name(), c.MAC(), c.PeerAddr())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(runCtx) }()

	replies := make(chan struct{}, 1)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(w, c.Events(), replies)
	}()

	s := &session{client: c, out: w, replies: replies}
	menuErr := s.serve(runCtx, readLines(in), runErr)

	stop()
	<-printed
	return menuErr
}

// loadConfig reads path when given, otherwise the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// printEvents prints received messages and signals each server ACK on replies.
func printEvents(w io.Writer, events <-chan client.Event, replies chan<- struct{}) {
	for ev := range events {
		mark := ""
		if _, ok := ev.Message.(protocol.Ack); ok && !ev.Verified {
			mark = " (unmatched digest)"
		}
		fmt.Fprintf(w, "[%s] %s%s\n", ev.Channel, ev.Text, mark)

		if _, ok := ev.Message.(protocol.Ack); ok && ev.Channel == client.ChannelServer {
			select {
			case replies <- struct{}{}:
			default:
			}
		}
	}
}

// session is the interactive menu over one client.
type session struct {
	client  *client.Client
	out     io.Writer
	replies chan struct{}
}

// serve runs the menu until quit, end of input or the connection ends.
func (s *session) serve(ctx context.Context, lines <-chan string, runErr <-chan error) error {
	for {
		fmt.Fprint(s.out, menu)

		var choice string
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			choice = line
		}

		switch choice {
		case "1":
			s.request(ctx, "register", s.client.Register)
		case "2":
			s.request(ctx, "deregister", s.client.Deregister)
		case "3":
			s.request(ctx, "login", s.client.Login)
		case "4":
			s.request(ctx, "logoff", s.client.Logoff)
		case "5", "6":
			fmt.Fprint(s.out, "Peer name: ")
			peer, ok := <-lines
			if !ok {
				return nil
			}
			s.peerRequest(ctx, choice, peer)
		case "0":
			s.request(ctx, "logoff", s.client.Logoff)
			return nil
		case "":
		default:
			fmt.Fprintf(s.out, "Unknown option %q\n", choice)
		}
	}
}

// request sends one server request and waits for its ACK.
func (s *session) request(ctx context.Context, what string, send func() error) {
	select {
	case <-s.replies:
	default:
	}

	if err := send(); err != nil {
		fmt.Fprintf(s.out, "%s failed: %v\n", what, err)
		return
	}

	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()
	select {
	case <-s.replies:
	case <-timer.C:
		fmt.Fprintf(s.out, "No reply to %s\n", what)
	case <-ctx.Done():
	}
}

func (s *session) peerRequest(ctx context.Context, choice, peer string) {
	var err error
	if choice == "5" {
		err = s.client.QueryPeer(ctx, peer, protocol.QueryLoopback)
	} else {
		err = s.client.SendStatus(ctx, peer)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Request to %s failed: %v\n", peer, err)
		return
	}
	fmt.Fprintf(s.out, "Sent to %s\n", peer)
}

// readLines delivers trimmed input lines until in is exhausted.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

// syncWriter serialises menu output with the event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
