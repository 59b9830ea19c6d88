package server

import (
	"fmt"

	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/store"
)

// ApplyReplayed re-applies AOF commands recovered at startup directly
// against engine, bypassing routing, AOF-append and metrics: the engine
// holds only the state loaded from the RDB snapshot and these commands are
// already known-durable, so they only need to land in memory again.
func ApplyReplayed(engine *store.Engine, cmds []resp.Value) error {
	replayer := &Server{engine: engine}
	for i, v := range cmds {
		cmd, err := parseCommand(v)
		if err != nil {
			return fmt.Errorf("server: replay command %d: %w", i, err)
		}
		if _, err := replayer.execData(cmd); err != nil {
			return fmt.Errorf("server: replay command %d (%s): %w", i, cmd.name, err)
		}
	}
	return nil
}
