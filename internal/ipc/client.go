package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// Client is a connection to a running daemon.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one message.
func (c *Client) Send(ctx context.Context, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	c.applyDeadline(ctx)
	_, err = c.conn.Write(b)
	return err
}

// Receive reads one message.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	c.applyDeadline(ctx)
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return Message{}, err
	}
	return Decode(line)
}

// Ping sends a ping and waits for the pong, returning the round trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.Send(ctx, Ping()); err != nil {
		return 0, fmt.Errorf("send ping: %w", err)
	}
	m, err := c.Receive(ctx)
	if err != nil {
		return 0, fmt.Errorf("read pong: %w", err)
	}
	switch m.Type {
	case TypePong:
		return time.Since(start), nil
	case TypeError:
		return 0, fmt.Errorf("daemon error: %s", m.Text)
	}
	return 0, fmt.Errorf("unexpected reply %q", m.Type)
}

func (c *Client) applyDeadline(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
}
