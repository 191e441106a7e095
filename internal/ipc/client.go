package ipc

import (
	"fmt"
	"net"
	"time"
)

// Client issues single control operations against the daemon socket.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient builds a client for the socket path.
func NewClient(path string) *Client {
	return &Client{path: path, timeout: 30 * time.Second}
}

// SetTimeout overrides the per-operation deadline. Stop can legitimately
// take as long as the daemon's capture teardown timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Do sends one request and waits for the response.
func (c *Client) Do(req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.path, 2*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("connect to daemon at %s: %w", c.path, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Response{}, err
	}
	if err := WriteFrame(conn, req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
