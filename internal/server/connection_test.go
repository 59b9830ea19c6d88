package server

import (
	"net"
	"testing"
	"time"

	"github.com/rdnode/rdnode/internal/pubsub"
	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/store"
)

func newPipeServer() (*Server, net.Conn) {
	client, srvConn := net.Pipe()
	s := &Server{
		engine: store.NewEngine(nil, 0),
		broker: pubsub.New(nil),
		cfg:    Config{ClientOutputBufferLimit: 16},
	}
	go func() {
		s.handleClient(srvConn)
		srvConn.Close()
	}()
	return s, client
}

func doCmd(t *testing.T, conn net.Conn, args ...string) resp.Value {
	t.Helper()
	elems := make([]resp.Value, len(args))
	for i, a := range args {
		elems[i] = resp.NewBulkStringFromString(a)
	}
	enc := resp.NewEncoder(conn)
	if err := enc.Encode(resp.NewArray(elems)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := resp.NewDecoder(conn)
	v, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return v
}

func TestHandleClientPing(t *testing.T) {
	_, conn := newPipeServer()
	defer conn.Close()

	v := doCmd(t, conn, "PING")
	if v.Type != resp.SimpleString || string(v.Str) != "PONG" {
		t.Fatalf("PING reply = %+v", v)
	}
}

func TestHandleClientSetGet(t *testing.T) {
	_, conn := newPipeServer()
	defer conn.Close()

	v := doCmd(t, conn, "SET", "k", "v")
	if v.Type != resp.SimpleString || string(v.Str) != "OK" {
		t.Fatalf("SET reply = %+v", v)
	}

	v = doCmd(t, conn, "GET", "k")
	if v.Type != resp.BulkString || string(v.Bulk) != "v" {
		t.Fatalf("GET reply = %+v", v)
	}
}

func TestHandleClientUnknownCommandKeepsConnectionOpen(t *testing.T) {
	_, conn := newPipeServer()
	defer conn.Close()

	v := doCmd(t, conn, "NOSUCHCOMMAND")
	if v.Type != resp.Error {
		t.Fatalf("expected error reply, got %+v", v)
	}

	v = doCmd(t, conn, "PING")
	if v.Type != resp.SimpleString || string(v.Str) != "PONG" {
		t.Fatalf("connection should survive an unknown command, got %+v", v)
	}
}

func TestHandleClientQuitClosesConnection(t *testing.T) {
	_, conn := newPipeServer()
	defer conn.Close()

	v := doCmd(t, conn, "QUIT")
	if v.Type != resp.SimpleString || string(v.Str) != "OK" {
		t.Fatalf("QUIT reply = %+v", v)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := resp.NewDecoder(conn)
	if _, err := dec.Decode(); err == nil {
		t.Fatal("expected connection to be closed after QUIT")
	}
}
