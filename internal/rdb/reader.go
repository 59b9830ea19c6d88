package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/store"
)

// ErrCorrupt is returned when the file fails the magic/version header
// check; the node must refuse to start rather than load a non-snapshot.
var ErrCorrupt = errors.New("rdb: corrupt file (bad header)")

// ErrChecksumMismatch is returned when the trailing CRC64 doesn't match the
// bytes that precede it.
var ErrChecksumMismatch = errors.New("rdb: checksum mismatch")

// Load reads a snapshot file at path. If the file doesn't exist, it
// returns (nil, nil) — there's simply nothing to load yet. A bad
// magic/version header is ErrCorrupt and fatal: the node must refuse to
// start rather than guess at a non-snapshot file. A file truncated
// mid-record (including one missing its trailing checksum) instead has
// its incomplete tail discarded with a logged warning, and the entries
// read up to that point are returned with a nil error. When the full
// entry count and checksum are present, the checksum is verified and a
// mismatch — as opposed to a simple truncation — is reported as
// ErrChecksumMismatch, since that indicates corruption of bytes that
// were actually written, not an incomplete write.
func Load(path string, log *zap.Logger) ([]store.SnapshotEntry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("rdb")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rdb: open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("rdb: read %s: %w", path, err)
	}

	const headerLen = len(Magic) + 2 + 8
	if len(raw) < headerLen {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	if string(raw[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	version := binary.LittleEndian.Uint16(raw[len(Magic):])
	if version != Version {
		return nil, fmt.Errorf("%w: %s (unsupported version %d)", ErrCorrupt, path, version)
	}

	count := binary.LittleEndian.Uint64(raw[len(Magic)+2:])
	r := &byteReader{buf: raw[headerLen:]}

	entries := make([]store.SnapshotEntry, 0, min(count, 1<<20))
	truncated := false
	for i := uint64(0); i < count; i++ {
		e, ok := readEntry(r)
		if !ok {
			truncated = true
			break
		}
		entries = append(entries, e)
	}

	if truncated || r.pos+8 > len(r.buf) {
		log.Warn("discarding truncated trailing rdb record",
			zap.String("path", path), zap.Int("replayed", len(entries)))
		return entries, nil
	}

	// Everything was read cleanly and 8 checksum bytes remain: verify them
	// against the bytes that precede them (header, count, and entries).
	consumed := headerLen + r.pos
	body := raw[:consumed]
	want := binary.LittleEndian.Uint64(raw[consumed : consumed+8])
	if crc64.Checksum(body, crcTable) != want {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	return entries, nil
}

func min(a uint64, b int) int {
	if a < uint64(b) {
		return int(a)
	}
	return b
}

// byteReader is a tiny cursor over an in-memory buffer; snapshot files are
// read whole because the format isn't self-framing enough to stream
// cheaply (a truncated length prefix must be detected before it's used to
// allocate).
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) take(n int) ([]byte, bool) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *byteReader) u32() (uint32, bool) {
	b, ok := r.take(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (r *byteReader) i64() (int64, bool) {
	b, ok := r.take(8)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(b)), true
}

func (r *byteReader) u8() (uint8, bool) {
	b, ok := r.take(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *byteReader) bytesField() ([]byte, bool) {
	n, ok := r.u32()
	if !ok {
		return nil, false
	}
	b, ok := r.take(int(n))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

func readEntry(r *byteReader) (store.SnapshotEntry, bool) {
	key, ok := r.bytesField()
	if !ok {
		return store.SnapshotEntry{}, false
	}
	tag, ok := r.u8()
	if !ok {
		return store.SnapshotEntry{}, false
	}
	ttlMs, ok := r.i64()
	if !ok {
		return store.SnapshotEntry{}, false
	}

	var value store.Value
	switch typeTag(tag) {
	case tagString:
		b, ok := r.bytesField()
		if !ok {
			return store.SnapshotEntry{}, false
		}
		value = store.Value{Kind: store.KindString, Str: b}
	case tagList:
		n, ok := r.u32()
		if !ok {
			return store.SnapshotEntry{}, false
		}
		list := make([][]byte, 0, n)
		for i := uint32(0); i < n; i++ {
			b, ok := r.bytesField()
			if !ok {
				return store.SnapshotEntry{}, false
			}
			list = append(list, b)
		}
		value = store.Value{Kind: store.KindList, List: list}
	case tagSet:
		n, ok := r.u32()
		if !ok {
			return store.SnapshotEntry{}, false
		}
		set := make(map[string]struct{}, n)
		for i := uint32(0); i < n; i++ {
			b, ok := r.bytesField()
			if !ok {
				return store.SnapshotEntry{}, false
			}
			set[string(b)] = struct{}{}
		}
		value = store.Value{Kind: store.KindSet, Set: set}
	default:
		return store.SnapshotEntry{}, false
	}

	var expiresAt *time.Time
	if ttlMs != noTTL {
		t := time.UnixMilli(ttlMs)
		expiresAt = &t
	}
	return store.SnapshotEntry{Key: string(key), Value: value, ExpiresAt: expiresAt}, true
}
