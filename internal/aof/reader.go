package aof

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
)

// ErrCorrupt is returned when the file does not begin with the expected
// header; the node must refuse to start rather than silently replay
// something that isn't an AOF file.
var ErrCorrupt = errors.New("aof: corrupt file (bad header)")

// Replay reads every complete command record from the AOF file at path, in
// execution order. If the file doesn't exist, it returns (nil, nil) — a
// fresh node has nothing to replay. A truncated final record is discarded
// with a warning rather than treated as an error, per the recovery
// contract; only a bad header is fatal.
func Replay(path string, log *zap.Logger) ([]resp.Value, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("aof")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header := make([]byte, len(Header))
	n, err := io.ReadFull(br, header)
	if err != nil || n != len(Header) || string(header) != Header {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}

	dec := resp.NewDecoder(br)
	var cmds []resp.Value
	for {
		v, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return cmds, nil
			}
			log.Warn("discarding truncated/malformed trailing AOF record",
				zap.Error(err), zap.Int("replayed", len(cmds)))
			return cmds, nil
		}
		cmds = append(cmds, v)
	}
}
