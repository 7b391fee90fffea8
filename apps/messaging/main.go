package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mosaicchat/mosaic/pkg/blob"
	"github.com/mosaicchat/mosaic/pkg/cache"
	"github.com/mosaicchat/mosaic/pkg/config"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/pipeline"
	"github.com/mosaicchat/mosaic/pkg/preview"
	"github.com/mosaicchat/mosaic/pkg/search"
	"github.com/mosaicchat/mosaic/pkg/store"
	"github.com/mosaicchat/mosaic/pkg/stream"
)

const (
	persistGroup = "message-persister"
	previewGroup = "link-previewer"
)

func main() {
	logger.Init("messaging")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Postgres.DSN)
	if err != nil {
		logger.Log.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		logger.Log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	index, err := search.New(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Log.Error("index connect failed", "err", err)
		os.Exit(1)
	}
	defer index.Close()

	caches := cache.New(cfg.Redis.Addr, cfg.Cache.MemberTTL, cfg.Cache.UserTTL)
	defer caches.Close()

	bus := stream.NewBus(cfg.Kafka.Brokers)
	defer bus.Close()

	blobs, err := blob.NewFSStore(cfg.Blob.Dir, cfg.Blob.BaseURL, cfg.Blob.Secret)
	if err != nil {
		logger.Log.Error("blob store init failed", "err", err)
		os.Exit(1)
	}

	signer := func(att model.Attachment) string {
		url, err := blobs.SignDownloadURL(att.FileKey, att.OriginalFileName)
		if err != nil {
			logger.Log.Warn("sign attachment failed", "key", att.FileKey, "err", err)
			return ""
		}
		return url
	}

	persister := pipeline.NewPersister(st, index, bus, caches, signer)
	previewer := pipeline.NewPreviewer(st, index, bus, preview.NewHTTPFetcher(), blobs, signer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumers := []*Consumer{
		NewConsumer(stream.NewGroupReader(cfg.Kafka.Brokers, model.TopicSave, persistGroup), persister, persistGroup),
		NewConsumer(stream.NewGroupReader(cfg.Kafka.Brokers, model.TopicPreview, previewGroup), previewer, previewGroup),
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			c.Run(ctx)
		}(c)
	}

	logger.Log.Info("messaging workers running",
		"topics", []string{model.TopicSave, model.TopicPreview})
	wg.Wait()
}
