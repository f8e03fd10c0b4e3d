package rcon

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"go.fieldops.dev/squadctl/internal/events"
)

// fakeServer answers a single accepted connection with scripted behavior. It
// lets session tests drive the protocol without a real Squad server.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) (*fakeServer, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return &fakeServer{ln: ln}, port
}

func (f *fakeServer) accept(t *testing.T) net.Conn {
	t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return conn
}

func (f *fakeServer) close() { _ = f.ln.Close() }

func readPacket(t *testing.T, conn net.Conn) Packet {
	t.Helper()
	// read exactly one frame so bytes of the next packet stay on the conn
	frame := make([]byte, 4)
	if _, err := io.ReadFull(conn, frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	frame = append(frame, make([]byte, binary.LittleEndian.Uint32(frame))...)
	if _, err := io.ReadFull(conn, frame[4:]); err != nil {
		t.Fatalf("read: %v", err)
	}
	var d Decoder
	d.Feed(frame)
	pkt, err := d.Next()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return pkt
}

func writePacket(t *testing.T, conn net.Conn, id, typ int32, body string) {
	t.Helper()
	frame, err := Encode(id, typ, body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

type capturingPublisher struct {
	ch chan events.Event
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{ch: make(chan events.Event, 64)}
}

func (p *capturingPublisher) Publish(e events.Event) { p.ch <- e }

func (p *capturingPublisher) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-p.ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func TestSessionAuthenticatesAndExecutesCommand(t *testing.T) {
	srv, port := newFakeServer(t)
	defer srv.close()

	pub := newCapturingPublisher()
	sess := NewSession(Config{Host: "127.0.0.1", Port: port, Password: "secret", Publisher: pub})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)
	defer sess.Stop(time.Second)

	conn := srv.accept(t)
	defer conn.Close()

	auth := readPacket(t, conn)
	if auth.Type != PacketTypeAuth || auth.Body != "secret" {
		t.Fatalf("unexpected auth packet: %+v", auth)
	}
	writePacket(t, conn, auth.ID, PacketTypeExecOrAuthOK, "")

	pub.waitFor(t, events.KindRconConnected)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := sess.Execute(context.Background(), "ListPlayers")
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	exec := readPacket(t, conn)
	if exec.Type != PacketTypeExecOrAuthOK || exec.Body != "ListPlayers" {
		t.Fatalf("unexpected exec packet: %+v", exec)
	}
	sentinel := readPacket(t, conn)
	if sentinel.Type != PacketTypeResponseValue || sentinel.Body != "" || sentinel.ID != exec.ID {
		t.Fatalf("unexpected sentinel request: %+v", sentinel)
	}

	writePacket(t, conn, exec.ID, PacketTypeResponseValue, "ID: 1 | ")
	writePacket(t, conn, exec.ID, PacketTypeResponseValue, "Online IDs: EOS: x")
	writePacket(t, conn, exec.ID, PacketTypeResponseValue, "")

	select {
	case v := <-resultCh:
		if v != "ID: 1 | Online IDs: EOS: x" {
			t.Fatalf("unexpected reassembled body: %q", v)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command result")
	}
}

func TestSessionAuthFailurePublishesErrorAndReconnects(t *testing.T) {
	srv, port := newFakeServer(t)
	defer srv.close()

	pub := newCapturingPublisher()
	sess := NewSession(Config{Host: "127.0.0.1", Port: port, Password: "wrong", Publisher: pub})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Start(ctx)
	defer sess.Stop(time.Second)

	conn := srv.accept(t)
	readPacket(t, conn) // the AUTH packet itself
	writePacket(t, conn, -1, PacketTypeExecOrAuthOK, "")
	conn.Close()

	pub.waitFor(t, events.KindRconError)
	pub.waitFor(t, events.KindRconDisconnected)
}

func TestSessionQueueFullRejectsExcessCommands(t *testing.T) {
	// No Start() call: the session stays Disconnected, so submitted commands
	// sit in the queue forever without being dispatched, letting the bound be
	// exercised deterministically.
	sess := NewSession(Config{Host: "127.0.0.1", Port: 1, Password: "x", QueueBound: 1})

	done := make(chan struct{})
	go func() {
		_, _ = sess.Execute(context.Background(), "cmd-1")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond) // let cmd-1 take the only queue slot

	_, err := sess.Execute(context.Background(), "cmd-2")
	if err == nil {
		t.Fatal("expected QueueFull error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindQueueFull {
		t.Fatalf("got %v, want QueueFull", err)
	}

	sess.mu.Lock()
	queued := sess.queue
	sess.queue = nil
	sess.mu.Unlock()
	for _, qc := range queued {
		qc.resultCh <- commandResult{err: newError(KindCancelled, "test cleanup")}
	}
	<-done
}

func TestIsEndOfResponse(t *testing.T) {
	cases := map[string]bool{
		"":                true,
		"\x00\x01\x00":    true,
		"hello":           false,
		"partial\x00tail": false,
	}
	for body, want := range cases {
		if got := isEndOfResponse(body); got != want {
			t.Errorf("isEndOfResponse(%q) = %v, want %v", body, got, want)
		}
	}
}
