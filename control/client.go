package control

import (
	"crypto/tls"
	"net"
)

// replySize bounds a single reply read. The daemon writes each reply
// in one piece, so one read returns at most one TLS record of it. Only
// listings past the record size would come back truncated.
const replySize = 64 * 1024

// Client is the dialing end of the control socket. One connection can
// carry any number of commands.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket and completes the TLS handshake,
// so certificate problems surface here and not on the first command.
func Dial(socketPath string, tlsConfig *tls.Config) (*Client, error) {
	raw, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, tlsConfig)
	if err := conn.Handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send writes one command line and returns the raw reply, newline
// included. The command gets a trailing newline if it is missing one.
func (c *Client) Send(command string) (string, error) {
	if len(command) == 0 || command[len(command)-1] != '\n' {
		command += "\n"
	}
	if _, err := c.conn.Write([]byte(command)); err != nil {
		return "", err
	}

	buf := make([]byte, replySize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
