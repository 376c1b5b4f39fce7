package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/uuid"
)

// Client dials a daemon's Unix-domain socket and issues requests using the
// same length-prefixed JSON framing the Server speaks. It is the transport
// cmd/lsh uses; every method here is a thin wrapper that marshals args,
// writes a frame, and reads one back.
type Client struct {
	conn net.Conn
}

// Dial connects to a daemon listening at sockPath. It does not start the
// daemon; if nothing is listening, Dial returns an
// errkind.DaemonUnavailable error.
func Dial(sockPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", sockPath, timeout)
	if err != nil {
		return nil, errkind.Wrap(errkind.DaemonUnavailable, fmt.Sprintf("connect to %s", sockPath), err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends op with args (marshaled to JSON) and decodes the response's
// value into out (if non-nil). It returns the server's *errkind.Error on a
// failure response.
func (c *Client) Call(op string, args any, out any) error {
	id, err := uuid.V4()
	if err != nil {
		return fmt.Errorf("ipc: generate request id: %w", err)
	}

	var rawArgs json.RawMessage
	if args != nil {
		rawArgs, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("ipc: marshal args: %w", err)
		}
	}

	req := request{ID: id.String(), Op: op, Args: rawArgs}
	if err := writeFrame(c.conn, req); err != nil {
		return errkind.Wrap(errkind.DaemonUnavailable, "write request", err)
	}

	resp, err := readClientFrame(c.conn)
	if err != nil {
		return errkind.Wrap(errkind.DaemonUnavailable, "read response", err)
	}

	if !resp.OK {
		if resp.Error == nil {
			return errkind.New(errkind.StorageFailure, "daemon returned an unspecified error")
		}
		return errkind.New(errkind.Kind(resp.Error.Kind), resp.Error.Message)
	}

	if out == nil || resp.Value == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Value)
	if err != nil {
		return fmt.Errorf("ipc: re-marshal response value: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// readClientFrame reads one length-prefixed response frame, mirroring
// readFrame's request-side framing.
func readClientFrame(r io.Reader) (response, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return response{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return response{}, fmt.Errorf("ipc: frame of %d bytes exceeds limit", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return response{}, err
	}

	var resp response
	if err := json.Unmarshal(buf, &resp); err != nil {
		return response{}, fmt.Errorf("ipc: decode frame: %w", err)
	}
	return resp, nil
}
