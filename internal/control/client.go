package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is the CLI side of the control socket, following the same
// dial/encode/scan shape as UDSClient.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient builds a Client. A zero timeout defaults to 10s.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Call dials the socket, sends op as a single-line Request, and reads
// back one Response line.
func (c *Client) Call(ctx context.Context, op string) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(Request{Op: op}); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// Status calls the "status" op and decodes the Snapshot result.
func (c *Client) Status(ctx context.Context) (Snapshot, error) {
	resp, err := c.Call(ctx, OpStatus)
	if err != nil {
		return Snapshot{}, err
	}
	if !resp.OK {
		return Snapshot{}, fmt.Errorf("daemon returned error: %s", resp.Error)
	}
	var snap Snapshot
	if err := json.Unmarshal(resp.Result, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return snap, nil
}

// Reload calls the "reload" op.
func (c *Client) Reload(ctx context.Context) error {
	resp, err := c.Call(ctx, OpReload)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon returned error: %s", resp.Error)
	}
	return nil
}

// Stop calls the "stop" op.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.Call(ctx, OpStop)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("daemon returned error: %s", resp.Error)
	}
	return nil
}
