package main

import (
	"os"

	"github.com/mosaicchat/mosaic/pkg/config"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/search"
)

func main() {
	logger.Init("drop-search-schema")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	index, err := search.New(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Log.Error("index connect failed", "err", err)
		os.Exit(1)
	}
	defer index.Close()

	if err := index.DropSchema(); err != nil {
		logger.Log.Error("schema drop failed", "err", err)
		os.Exit(1)
	}
	logger.Log.Info("search schema dropped", "keyspace", cfg.Scylla.Keyspace)
}
