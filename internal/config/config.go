// Package config loads and validates a node's line-oriented configuration
// file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SavePoint is one repeatable `save <seconds> <writes>` directive: a
// snapshot is triggered once Seconds have passed since the last snapshot
// (or startup) and at least Writes mutations have occurred since it.
type SavePoint struct {
	Seconds int `validate:"required,min=1"`
	Writes  int `validate:"required,min=1"`
}

// Config is the fully-parsed, validated contents of a node's config file.
// Field names mirror the file's keys; unset optional keys take the
// documented default.
type Config struct {
	// Bind is the host other nodes and clients should use to reach this
	// node; it is advertised verbatim in gossip descriptors and MOVED/ASK
	// redirects, so it must be externally reachable, not just a local
	// listen address.
	Bind        string `validate:"required"`
	Port        int    `validate:"required,min=1,max=65535"`
	ClusterPort int    `validate:"required,min=1,max=65535"`
	Dir         string `validate:"required"`
	DBFilename  string `validate:"required"`
	AOFFilename string `validate:"required"`
	AppendFsync string `validate:"required,oneof=always everysec no"`
	Save        []SavePoint

	NodeTimeoutMS int `validate:"required,min=1"`
	// MaxMemory caps the engine's approximate memory usage in bytes; once
	// exceeded, mutating commands are rejected with OOM until enough keys
	// are freed to come back under budget. 0 disables the limit.
	MaxMemory int64 `validate:"min=0"`

	// IdleTimeoutSeconds disconnects a client connection after this many
	// seconds with no traffic; 0 disables the idle check.
	IdleTimeoutSeconds int
	// ClientOutputBufferLimit bounds a pub/sub subscriber's outbound
	// mailbox (in messages); exceeding it forces disconnect so one slow
	// subscriber can't let its backlog grow without bound.
	ClientOutputBufferLimit int `validate:"required,min=1"`
	// MigrationTimeoutMS is parsed and validated but not passed to the
	// cluster package: a key transfer during slot migration is bounded only
	// by the peer dial timeout, with no read deadline. A transfer that does
	// fail rolls the slot back to its source owner.
	MigrationTimeoutMS int `validate:"required,min=1"`
	// MetricsPort serves the Prometheus exporter; 0 disables it.
	MetricsPort int `validate:"min=0,max=65535"`
}

func defaults() Config {
	return Config{
		Bind:                    "127.0.0.1",
		DBFilename:              "dump.rdb",
		AOFFilename:             "appendonly.aof",
		AppendFsync:             "everysec",
		NodeTimeoutMS:           15000,
		IdleTimeoutSeconds:      0,
		ClientOutputBufferLimit: 1000,
		MigrationTimeoutMS:      5000,
		MetricsPort:             0,
	}
}

// Load reads, parses and validates the config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key := fields[0]
		args := fields[1:]
		if err := apply(&cfg, key, args); err != nil {
			return Config{}, fmt.Errorf("config: %s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func apply(cfg *Config, key string, args []string) error {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: expected %d argument(s), got %d", key, n, len(args))
		}
		return nil
	}
	atoi := func(s string) (int, error) { return strconv.Atoi(s) }

	switch key {
	case "bind":
		if err := need(1); err != nil {
			return err
		}
		cfg.Bind = args[0]
	case "port":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = n
	case "cluster-port":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("cluster-port: %w", err)
		}
		cfg.ClusterPort = n
	case "dir":
		if err := need(1); err != nil {
			return err
		}
		cfg.Dir = args[0]
	case "dbfilename":
		if err := need(1); err != nil {
			return err
		}
		cfg.DBFilename = args[0]
	case "appendfilename":
		if err := need(1); err != nil {
			return err
		}
		cfg.AOFFilename = args[0]
	case "appendfsync":
		if err := need(1); err != nil {
			return err
		}
		cfg.AppendFsync = args[0]
	case "save":
		if err := need(2); err != nil {
			return err
		}
		seconds, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("save: seconds: %w", err)
		}
		writes, err := atoi(args[1])
		if err != nil {
			return fmt.Errorf("save: writes: %w", err)
		}
		cfg.Save = append(cfg.Save, SavePoint{Seconds: seconds, Writes: writes})
	case "node-timeout":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("node-timeout: %w", err)
		}
		cfg.NodeTimeoutMS = n
	case "maxmemory":
		if err := need(1); err != nil {
			return err
		}
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("maxmemory: %w", err)
		}
		cfg.MaxMemory = n
	case "idle-timeout":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("idle-timeout: %w", err)
		}
		cfg.IdleTimeoutSeconds = n
	case "client-output-buffer-limit":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("client-output-buffer-limit: %w", err)
		}
		cfg.ClientOutputBufferLimit = n
	case "migration-timeout":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("migration-timeout: %w", err)
		}
		cfg.MigrationTimeoutMS = n
	case "metrics-port":
		if err := need(1); err != nil {
			return err
		}
		n, err := atoi(args[0])
		if err != nil {
			return fmt.Errorf("metrics-port: %w", err)
		}
		cfg.MetricsPort = n
	default:
		return fmt.Errorf("unknown directive %q", key)
	}
	return nil
}
