// Package rdb implements the point-in-time keyspace snapshot format
// (dump.rdb): a magic header, an entry count, the entries themselves, and a
// trailing CRC64 checksum over everything before it.
package rdb

import "hash/crc64"

// Magic is the literal 7-byte header every snapshot file begins with.
const Magic = "RUSTIDB"

// Version is the only snapshot format version this implementation writes
// or understands.
const Version uint16 = 1

// typeTag identifies the Value variant of one entry's payload.
type typeTag uint8

const (
	tagString typeTag = 1
	tagList   typeTag = 2
	tagSet    typeTag = 3
)

// noTTL is the sentinel ttl_ms value meaning "no expiry".
const noTTL = int64(-1)

var crcTable = crc64.MakeTable(crc64.ISO)
