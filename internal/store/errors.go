package store

import "errors"

// ErrWrongType is returned when a command is applied to a key holding a
// value of a different type.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrNoSuchKey is returned by operations that require an existing key
// (LSET) when the key is absent.
var ErrNoSuchKey = errors.New("no such key")

// ErrIndexOutOfRange is returned by LSET when the index does not address an
// existing list element.
var ErrIndexOutOfRange = errors.New("ERR index out of range")

// ErrOOM is returned by mutating commands when the engine's approximate
// memory usage is over its configured maxmemory limit. Reads, DEL, and
// anything else that can only shrink the keyspace are never rejected this
// way, so a node over budget can still be brought back under it.
var ErrOOM = errors.New("OOM command not allowed when used memory > 'maxmemory'")
