// Command snapcache operates a persistent LRU cache snapshot.
//
// One-shot commands load the snapshot, apply a single operation and write
// it back; serve exposes the cache over HTTP; bench runs a synthetic load.
//
// Usage:
//
//	snapcache [--config f] [--snapshot f] [--max-size n] <command>
//
// Commands:
//
//	set <key> <json-value> [--ttl 30s]   store a value (--ttl 0 = never expires)
//	get <key>                            print a value (promotes it)
//	has <key>                            print true/false
//	delete <key>                         remove a key
//	keys                                 list live keys, most recent first
//	size                                 print the live entry count
//	clear                                remove every key
//	export [--output f]                  write the snapshot document
//	import [--input f]                   replace contents from a document
//	serve                                HTTP API + /metrics
//	bench                                synthetic workload
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/snapcache/cache"
	"github.com/IvanBrykalov/snapcache/internal/config"
	"github.com/IvanBrykalov/snapcache/internal/logger"
	"github.com/IvanBrykalov/snapcache/snapshot"
)

// Global flags inherited by all subcommands.
var (
	configPath   string
	snapshotPath string
	maxSize      int
	logLevel     string
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "snapcache",
		Short:        "Persistent LRU cache with TTL",
		Long:         "Inspect and operate a snapcache snapshot, or serve it over HTTP.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv("SNAPCACHE_CONFIG"),
		"YAML config file (env: SNAPCACHE_CONFIG)")
	pf.StringVar(&snapshotPath, "snapshot", "", "snapshot file (overrides cache.snapshot_path)")
	pf.IntVar(&maxSize, "max-size", 0, "maximum entries (overrides cache.max_size)")
	pf.StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")

	root.AddCommand(
		buildSetCmd(),
		buildGetCmd(),
		buildHasCmd(),
		buildDeleteCmd(),
		buildKeysCmd(),
		buildSizeCmd(),
		buildClearCmd(),
		buildExportCmd(),
		buildImportCmd(),
		buildServeCmd(),
		buildBenchCmd(),
	)
	return root
}

// app bundles what every command needs after startup.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

// setup loads configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("snapshot") {
		cfg.Cache.SnapshotPath = snapshotPath
	}
	if flags.Changed("max-size") {
		cfg.Cache.MaxSize = maxSize
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

// open builds the file-backed cache described by the configuration.
func (a *app) open(m cache.Metrics) (cache.Cache[json.RawMessage], error) {
	return cache.New[json.RawMessage](cache.Options[json.RawMessage]{
		MaxSize:    a.cfg.Cache.MaxSize,
		DefaultTTL: a.cfg.Cache.DefaultTTL,
		Snapshot:   snapshot.NewFile(a.cfg.Cache.SnapshotPath),
		Metrics:    m,
		Logger:     a.log,
	})
}

// close flushes the cache and logger, logging a failed final snapshot.
func (a *app) close(c cache.Cache[json.RawMessage]) {
	if err := c.Close(); err != nil {
		a.log.Sugar().Warnw("close cache", "err", err)
	}
	_ = a.log.Sync()
}
