package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicchat/mosaic/pkg/blob"
	"github.com/mosaicchat/mosaic/pkg/cache"
	"github.com/mosaicchat/mosaic/pkg/chat"
	"github.com/mosaicchat/mosaic/pkg/config"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/search"
	"github.com/mosaicchat/mosaic/pkg/store"
	"github.com/mosaicchat/mosaic/pkg/stream"
)

func main() {
	logger.Init("gateway")

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

	svc := chat.New(st, caches, bus, index, signer)
	a := &app{
		hub:   NewHub(),
		svc:   svc,
		store: st,
		blobs: blobs,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fanout := stream.NewFanoutReader(cfg.Kafka.Brokers, model.TopicEvents)
	go a.hub.RouteEvents(ctx, fanout)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(a, w, r)
	})
	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/files/", a.handleFiles)
	mux.HandleFunc("/healthz", handleHealthz)

	server := &http.Server{Addr: cfg.Gateway.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	logger.Log.Info("gateway listening", "addr", cfg.Gateway.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Error("server failed", "err", err)
		os.Exit(1)
	}
}
