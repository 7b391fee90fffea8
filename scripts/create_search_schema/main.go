package main

import (
	"os"

	"github.com/mosaicchat/mosaic/pkg/config"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/search"
)

func main() {
	logger.Init("create-search-schema")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := search.EnsureKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace); err != nil {
		logger.Log.Error("keyspace create failed", "err", err)
		os.Exit(1)
	}

	index, err := search.New(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Log.Error("index connect failed", "err", err)
		os.Exit(1)
	}
	defer index.Close()

	if err := index.EnsureSchema(); err != nil {
		logger.Log.Error("schema create failed", "err", err)
		os.Exit(1)
	}
	logger.Log.Info("search schema ready", "keyspace", cfg.Scylla.Keyspace)
}
