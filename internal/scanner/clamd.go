package scanner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

const maxResponse = 4096

// Clamd talks the clamd line protocol: it sends "SCAN <path>\n" and reads a
// single reply line. Any reply containing FOUND is an infection.
type Clamd struct {
	network string
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// NewClamd builds a client for socket, which is either a unix socket path or
// "tcp://host:port". timeout bounds the whole round trip.
func NewClamd(socket string, timeout time.Duration) *Clamd {
	network, address := "unix", socket
	if rest, ok := strings.CutPrefix(socket, "tcp://"); ok {
		network, address = "tcp", rest
	}
	return &Clamd{network: network, address: address, timeout: timeout}
}

// Scan asks clamd to scan path. Timeouts, refused connections, empty replies
// and ERROR replies all yield Unavailable.
func (c *Clamd) Scan(ctx context.Context, path string) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return unavailable("dial %s %s: %w", c.network, c.address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// The deadline alone does not observe cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, "SCAN "+path+"\n"); err != nil {
		return unavailable("send scan command: %w", err)
	}

	reply, err := bufio.NewReaderSize(io.LimitReader(conn, maxResponse), maxResponse).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return unavailable("read reply: %w", err)
	}
	return classify(strings.TrimSpace(reply))
}

func classify(reply string) (Result, error) {
	switch {
	case reply == "":
		return unavailable("empty reply")
	case strings.Contains(reply, "FOUND"):
		return Result{Verdict: Infected, Report: reply}, nil
	case strings.HasSuffix(reply, "ERROR"):
		return unavailable("scanner error: %s", reply)
	case strings.HasSuffix(reply, "OK"):
		return Result{Verdict: Clean}, nil
	default:
		return unavailable("unexpected reply: %s", reply)
	}
}
