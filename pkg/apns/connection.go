package apns

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
)

// Connection owns one TCP socket and the TLS session layered on it. It is
// not safe for concurrent use; Gateway serializes access.
type Connection struct {
	addr       string
	serverName string
	tlsConfig  *tls.Config
	dialer     net.Dialer
	logger     *slog.Logger

	sock net.Conn
	ssl  *tls.Conn
}

// NewConnection prepares an unconnected Connection to the gateway in cfg.
func NewConnection(cfg Config, logger *slog.Logger) *Connection {
	return newConnection(cfg.Addr(), cfg.Host, cfg, logger)
}

func newConnection(addr, serverName string, cfg Config, logger *slog.Logger) *Connection {
	return &Connection{
		addr:       addr,
		serverName: serverName,
		tlsConfig:  cfg.tlsConfig(serverName),
		logger:     logger,
	}
}

// Unavailable reports whether the connection must be (re)established. Only
// fully handshaken sessions are ever stored, so an absent handle is the
// whole answer.
func (c *Connection) Unavailable() bool {
	return c.sock == nil || c.ssl == nil
}

// EnsureConnected dials and handshakes when the connection is unavailable.
// Any half-initialized state is discarded first.
func (c *Connection) EnsureConnected(ctx context.Context) error {
	if !c.Unavailable() {
		return nil
	}
	_ = c.Close()

	sock, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &TransportError{Op: "connect", Addr: c.addr, Err: err}
	}

	ssl := tls.Client(sock, c.tlsConfig)
	if err := ssl.HandshakeContext(ctx); err != nil {
		_ = sock.Close()
		return &TransportError{Op: "connect", Addr: c.addr, Err: err}
	}

	c.sock = sock
	c.ssl = ssl
	c.logger.Debug("Connected to gateway", "addr", c.addr)
	return nil
}

// Write sends b over the TLS session. A failed write closes the connection
// so the next attempt reconnects.
func (c *Connection) Write(b []byte) error {
	if c.Unavailable() {
		return &TransportError{Op: "write", Addr: c.addr, Err: net.ErrClosed}
	}
	if _, err := c.ssl.Write(b); err != nil {
		_ = c.Close()
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

// Read reads from the TLS session.
func (c *Connection) Read(b []byte) (int, error) {
	if c.Unavailable() {
		return 0, &TransportError{Op: "read", Addr: c.addr, Err: net.ErrClosed}
	}
	return c.ssl.Read(b)
}

// Close shuts the TLS session and then the socket. Both handles are reset
// even when closing fails.
func (c *Connection) Close() (err error) {
	defer func() {
		c.ssl = nil
		c.sock = nil
	}()

	var sslErr, sockErr error
	if c.ssl != nil {
		sslErr = c.ssl.Close()
	}
	if c.sock != nil {
		// tls.Conn.Close already closed the socket; ignore the repeat.
		if sockErr = c.sock.Close(); errors.Is(sockErr, net.ErrClosed) {
			sockErr = nil
		}
	}
	return errors.Join(sslErr, sockErr)
}
