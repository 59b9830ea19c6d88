package server

import (
	"testing"

	"github.com/rdnode/rdnode/internal/resp"
)

func arrayOfBulk(parts ...string) resp.Value {
	elems := make([]resp.Value, len(parts))
	for i, p := range parts {
		elems[i] = resp.NewBulkStringFromString(p)
	}
	return resp.NewArray(elems)
}

func TestParseCommandUppercasesName(t *testing.T) {
	cmd, err := parseCommand(arrayOfBulk("set", "foo", "bar"))
	if err != nil {
		t.Fatalf("parseCommand: %v", err)
	}
	if cmd.name != "SET" {
		t.Fatalf("name = %q", cmd.name)
	}
	if len(cmd.args) != 2 || string(cmd.args[0]) != "foo" || string(cmd.args[1]) != "bar" {
		t.Fatalf("args = %+v", cmd.args)
	}
}

func TestParseCommandRejectsEmptyArray(t *testing.T) {
	if _, err := parseCommand(resp.NewArray(nil)); err == nil {
		t.Fatal("expected error for empty command array")
	}
}

func TestParseCommandRejectsNonArray(t *testing.T) {
	if _, err := parseCommand(resp.NewInteger(1)); err == nil {
		t.Fatal("expected error for non-array command")
	}
}

func TestKeysOfSingleKeyCommand(t *testing.T) {
	cmd, _ := parseCommand(arrayOfBulk("GET", "mykey"))
	keys := keysOf(cmd)
	if len(keys) != 1 || string(keys[0]) != "mykey" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestKeysOfAllKeysCommand(t *testing.T) {
	cmd, _ := parseCommand(arrayOfBulk("DEL", "a", "b", "c"))
	keys := keysOf(cmd)
	if len(keys) != 3 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestKeysOfNoKeyCommand(t *testing.T) {
	cmd, _ := parseCommand(arrayOfBulk("PING"))
	if keys := keysOf(cmd); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestIsMutating(t *testing.T) {
	if !isMutating("SET") || !isMutating("DEL") {
		t.Fatal("expected SET/DEL to be mutating")
	}
	if isMutating("GET") || isMutating("PING") {
		t.Fatal("expected GET/PING to not be mutating")
	}
}
