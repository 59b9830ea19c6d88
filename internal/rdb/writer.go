package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"os"
	"path/filepath"

	"github.com/rdnode/rdnode/internal/store"
)

// Save writes a full snapshot of entries to path, via a temporary file in
// the same directory that is atomically renamed into place on success, so
// a reader never observes a partial file.
func Save(path string, entries []store.SnapshotEntry) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rdb-tmp-*")
	if err != nil {
		return fmt.Errorf("rdb: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op once renamed
	}()

	if err := write(tmp, entries); err != nil {
		return fmt.Errorf("rdb: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("rdb: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rdb: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rdb: rename into place: %w", err)
	}
	return nil
}

func write(f *os.File, entries []store.SnapshotEntry) error {
	hasher := crc64.New(crcTable)
	bw := bufio.NewWriter(io.MultiWriter(f, hasher))

	if _, err := bw.WriteString(Magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, Version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeEntry(bw, e); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	checksum := hasher.Sum64()
	return binary.Write(f, binary.LittleEndian, checksum)
}

func writeEntry(w io.Writer, e store.SnapshotEntry) error {
	if err := writeBytesField(w, []byte(e.Key)); err != nil {
		return err
	}

	var tag typeTag
	switch e.Value.Kind {
	case store.KindString:
		tag = tagString
	case store.KindList:
		tag = tagList
	case store.KindSet:
		tag = tagSet
	default:
		return fmt.Errorf("rdb: unknown value kind %v for key %q", e.Value.Kind, e.Key)
	}
	if err := binary.Write(w, binary.LittleEndian, tag); err != nil {
		return err
	}

	ttl := noTTL
	if e.ExpiresAt != nil {
		ttl = e.ExpiresAt.UnixMilli()
	}
	if err := binary.Write(w, binary.LittleEndian, ttl); err != nil {
		return err
	}

	switch tag {
	case tagString:
		return writeBytesField(w, e.Value.Str)
	case tagList:
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Value.List))); err != nil {
			return err
		}
		for _, el := range e.Value.List {
			if err := writeBytesField(w, el); err != nil {
				return err
			}
		}
		return nil
	case tagSet:
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Value.Set))); err != nil {
			return err
		}
		for m := range e.Value.Set {
			if err := writeBytesField(w, []byte(m)); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func writeBytesField(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
