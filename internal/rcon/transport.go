package rcon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultConnectTimeout is applied by Transport.Connect when the caller's
// context carries no deadline of its own.
const DefaultConnectTimeout = 10 * time.Second

// readBufferSize is the chunk size used for each raw socket read.
const readBufferSize = 4096

// Transport owns a single TCP connection and turns its byte stream into
// whole, decoded packets. It never interprets payload semantics or
// correlates requests/responses; that is the session's job (C3).
type Transport struct {
	host string
	port int

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	onPacket  func(Packet)
	onClosed  func(reason string)
	decodeBuf Decoder
}

// NewTransport returns a Transport targeting host:port. onPacket is invoked
// once per fully-decoded packet, strictly in wire order, from the
// transport's single read-loop goroutine. onClosed fires exactly once, after
// which no further onPacket calls occur.
func NewTransport(host string, port int, onPacket func(Packet), onClosed func(reason string)) *Transport {
	return &Transport{
		host:     host,
		port:     port,
		onPacket: onPacket,
		onClosed: onClosed,
	}
}

// Connect dials the target, applying DefaultConnectTimeout unless ctx
// already carries a deadline, then starts the read loop in a new goroutine.
func (t *Transport) Connect(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", t.host, t.port))
	if err != nil {
		return fmt.Errorf("rcon transport: dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.decodeBuf = Decoder{}
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

// SendPacket writes a fully-encoded frame atomically. It fails if the
// transport is not currently connected.
func (t *Transport) SendPacket(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if conn == nil || closed {
		return fmt.Errorf("rcon transport: %w", ErrTransportClosed)
	}

	_, err := conn.Write(frame)
	if err != nil {
		return fmt.Errorf("rcon transport: write: %w", err)
	}
	return nil
}

// Close tears down the socket. It is idempotent; onClosed still fires (with
// reason "closed locally") if the socket was open.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	already := t.closed
	t.closed = true
	t.mu.Unlock()

	if conn == nil || already {
		return nil
	}
	return conn.Close()
}

func (t *Transport) readLoop(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	reason := "remote closed"

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.decodeBuf.Feed(buf[:n])
			t.mu.Unlock()
			t.drainPackets()
		}
		if err != nil {
			t.mu.Lock()
			wasClosedLocally := t.closed
			t.closed = true
			t.mu.Unlock()

			if wasClosedLocally {
				reason = "closed locally"
			} else {
				reason = err.Error()
			}
			break
		}
	}

	if t.onClosed != nil {
		t.onClosed(reason)
	}
}

func (t *Transport) drainPackets() {
	for {
		t.mu.Lock()
		pkt, err := t.decodeBuf.Next()
		t.mu.Unlock()

		if err == ErrNeedMore {
			return
		}
		if err != nil {
			// A malformed frame desyncs the stream; there is no safe resync
			// point, so treat it as terminal by closing the connection.
			_ = t.Close()
			return
		}
		if t.onPacket != nil {
			t.onPacket(pkt)
		}
	}
}

// ErrTransportClosed is returned by SendPacket when no connection is open.
var ErrTransportClosed = fmt.Errorf("transport not connected")
