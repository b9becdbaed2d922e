package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nerrad567/devicelink/internal/audit"
	"github.com/nerrad567/devicelink/internal/server"
)

// recentActivityLimit is how many audit entries the console shows.
const recentActivityLimit = 10

// errOperatorClose ends run when the operator closes the server.
var errOperatorClose = errors.New("server closed by operator")

const menu = `
1) Query device
2) List active devices
3) Recent activity
0) Close server
> `

// console is the operator menu.
type console struct {
	srv   *server.Server
	audit audit.Repository
	out   io.Writer
}

func newConsole(srv *server.Server, auditRepo audit.Repository, out io.Writer) *console {
	return &console{srv: srv, audit: auditRepo, out: out}
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

// run serves the menu until ctx ends, input runs out or the operator
// closes the server. Running out of input leaves the server running.
func (c *console) run(ctx context.Context, lines <-chan string) error {
	for {
		fmt.Fprint(c.out, menu)

		choice, ok := c.next(ctx, lines)
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			if !c.queryDevice(ctx, lines) {
				return nil
			}
		case "2":
			c.listActive()
		case "3":
			c.recentActivity(ctx)
		case "0":
			fmt.Fprintln(c.out, "Closing server")
			return errOperatorClose
		case "":
		default:
			fmt.Fprintf(c.out, "Unknown option %q\n", choice)
		}
	}
}

func (c *console) next(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}

// queryDevice asks the operator for an active device and queries it.
// It reports false when input ran out mid-prompt.
func (c *console) queryDevice(ctx context.Context, lines <-chan string) bool {
	if !c.listActive() {
		return true
	}
	fmt.Fprint(c.out, "Select device: ")

	choice, ok := c.next(ctx, lines)
	if !ok {
		return false
	}

	active := c.srv.ActiveDevices()
	index, err := strconv.Atoi(choice)
	if err != nil || index < 1 || index > len(active) {
		fmt.Fprintf(c.out, "Invalid selection %q\n", choice)
		return true
	}

	name := active[index-1].Name
	if err := c.srv.Query(ctx, name); err != nil {
		fmt.Fprintf(c.out, "Query to %s failed: %v\n", name, err)
		return true
	}
	fmt.Fprintf(c.out, "Query sent to %s\n", name)
	return true
}

// listActive prints the active devices and reports whether there were any.
func (c *console) listActive() bool {
	active := c.srv.ActiveDevices()
	if len(active) == 0 {
		fmt.Fprintln(c.out, "No active devices")
		return false
	}
	for i, d := range active {
		fmt.Fprintf(c.out, "%d) %s %s\n", i+1, d.Name, d.Endpoint())
	}
	return true
}

func (c *console) recentActivity(ctx context.Context) {
	result, err := c.audit.List(ctx, audit.Filter{Limit: recentActivityLimit})
	if err != nil {
		fmt.Fprintf(c.out, "Reading activity failed: %v\n", err)
		return
	}
	if len(result.Entries) == 0 {
		fmt.Fprintln(c.out, "No activity recorded")
		return
	}
	for _, e := range result.Entries {
		fmt.Fprintf(c.out, "%s %-20s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.EntityID)
	}
}
