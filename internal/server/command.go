package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rdnode/rdnode/internal/resp"
)

// command is a parsed client request: upper-cased name plus raw byte
// arguments (case preserved).
type command struct {
	name string
	args [][]byte
}

// parseCommand validates that v is a non-empty array of bulk strings (the
// only shape a RESP client command may take) and extracts the command name.
func parseCommand(v resp.Value) (command, error) {
	if v.Type != resp.Array || v.ArrayNull || len(v.Elems) == 0 {
		return command{}, fmt.Errorf("ERR expected a non-empty command array")
	}
	args := make([][]byte, len(v.Elems))
	for i, e := range v.Elems {
		if e.Type != resp.BulkString || e.BulkNull {
			return command{}, fmt.Errorf("ERR command arguments must be bulk strings")
		}
		args[i] = e.Bulk
	}
	return command{name: strings.ToUpper(string(args[0])), args: args[1:]}, nil
}

// keysOf returns the key arguments cmd's routing decision is made against,
// per the per-command-family rules in §4.2/§4.5. A nil, non-empty-checked
// result means "no key argument, always local" (PING, SUBSCRIBE, ...).
func keysOf(cmd command) [][]byte {
	switch cmd.name {
	case "SET", "GET", "APPEND", "STRLEN", "GETRANGE", "SETRANGE",
		"LPUSH", "LRANGE", "LLEN", "LPOP", "LINDEX", "LSET", "LINSERT",
		"SADD", "SMEMBERS", "SISMEMBER", "SCARD", "TYPE":
		if len(cmd.args) == 0 {
			return nil
		}
		return cmd.args[:1]
	case "SINTER", "SUNION", "SDIFF", "DEL", "EXISTS":
		return cmd.args
	default:
		return nil
	}
}

// isMutating reports whether cmd's successful execution must be appended
// to the AOF and counted toward the snapshot dirty counter.
func isMutating(name string) bool {
	switch name {
	case "SET", "APPEND", "SETRANGE", "LPUSH", "LPOP", "LSET", "LINSERT", "SADD", "DEL":
		return true
	default:
		return false
	}
}

func intArg(b []byte) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("ERR value is not an integer or out of range")
	}
	return n, nil
}

func arityErr(name string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}
