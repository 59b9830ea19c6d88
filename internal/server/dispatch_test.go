package server

import (
	"testing"

	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/store"
)

func newTestServer() *Server {
	return &Server{engine: store.NewEngine(nil, 0)}
}

func TestExecDataSetGet(t *testing.T) {
	s := newTestServer()

	cmd, _ := parseCommand(arrayOfBulk("SET", "k", "v"))
	if _, err := s.execData(cmd); err != nil {
		t.Fatalf("SET: %v", err)
	}

	cmd, _ = parseCommand(arrayOfBulk("GET", "k"))
	reply, err := s.execData(cmd)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if reply.Type != resp.BulkString || string(reply.Bulk) != "v" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestExecDataUnknownCommand(t *testing.T) {
	s := newTestServer()
	cmd, _ := parseCommand(arrayOfBulk("NOPE"))
	if _, err := s.execData(cmd); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestExecDataListRoundTrip(t *testing.T) {
	s := newTestServer()

	push, _ := parseCommand(arrayOfBulk("LPUSH", "mylist", "a", "b"))
	reply, err := s.execData(push)
	if err != nil || reply.Int != 2 {
		t.Fatalf("LPUSH reply = %+v, err = %v", reply, err)
	}

	rng, _ := parseCommand(arrayOfBulk("LRANGE", "mylist", "0", "-1"))
	reply, err = s.execData(rng)
	if err != nil {
		t.Fatalf("LRANGE: %v", err)
	}
	if len(reply.Elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(reply.Elems))
	}
}

func TestExecDataSetOps(t *testing.T) {
	s := newTestServer()
	add, _ := parseCommand(arrayOfBulk("SADD", "s1", "a", "b", "c"))
	if _, err := s.execData(add); err != nil {
		t.Fatalf("SADD: %v", err)
	}

	card, _ := parseCommand(arrayOfBulk("SCARD", "s1"))
	reply, err := s.execData(card)
	if err != nil || reply.Int != 3 {
		t.Fatalf("SCARD reply = %+v, err = %v", reply, err)
	}
}

func TestExecDataSetSurfacesOOM(t *testing.T) {
	s := &Server{engine: store.NewEngine(nil, 4)}

	set, _ := parseCommand(arrayOfBulk("SET", "k", "hello"))
	if _, err := s.execData(set); err != nil {
		t.Fatalf("first SET under budget: %v", err)
	}

	over, _ := parseCommand(arrayOfBulk("SET", "k2", "more"))
	if _, err := s.execData(over); err != store.ErrOOM {
		t.Fatalf("expected ErrOOM once over maxmemory, got %v", err)
	}
}

func TestApplyReplayedAppliesMutations(t *testing.T) {
	engine := store.NewEngine(nil, 0)
	cmds := []resp.Value{
		arrayOfBulk("SET", "x", "1"),
		arrayOfBulk("APPEND", "x", "2"),
	}
	if err := ApplyReplayed(engine, cmds); err != nil {
		t.Fatalf("ApplyReplayed: %v", err)
	}
	v, ok, err := engine.Get("x")
	if err != nil || !ok || string(v) != "12" {
		t.Fatalf("Get after replay = %q, %v, %v", v, ok, err)
	}
}
