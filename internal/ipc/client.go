package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/anthropic/dirwatch/internal/store"
)

// Client communicates with the daemon over a Unix domain socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client that connects to the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    connTimeout,
	}
}

// Ping tests if the daemon is alive.
func (c *Client) Ping() error {
	_, err := c.send(Request{Command: CmdPing})
	return err
}

// Status returns the daemon's status data.
func (c *Client) Status() (*StatusData, error) {
	resp, err := c.send(Request{Command: CmdStatus})
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := decodeData(resp, &status); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &status, nil
}

// Recent returns up to limit journaled events, newest first. A limit of 0
// lets the daemon pick its default.
func (c *Client) Recent(limit int) ([]store.EventRecord, error) {
	req := Request{Command: CmdRecent}
	if limit > 0 {
		req.Args = map[string]string{"limit": strconv.Itoa(limit)}
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var data RecentData
	if err := decodeData(resp, &data); err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	return data.Events, nil
}

// decodeData re-marshals resp.Data, which JSON decoding left as a generic
// map, into v.
func decodeData(resp *Response, v interface{}) error {
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

// RequestStop asks the daemon to shut down gracefully.
func (c *Client) RequestStop() error {
	_, err := c.send(Request{Command: CmdStop})
	return err
}

// send dials the socket, sends a JSON request, reads the JSON response.
func (c *Client) send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	// Send request.
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	// Read response.
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("empty response from daemon")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if !resp.OK {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}
