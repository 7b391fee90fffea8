package main

import (
	"context"
	"os"

	"github.com/mosaicchat/mosaic/pkg/cache"
	"github.com/mosaicchat/mosaic/pkg/config"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// Seeds a development tenant: one application, a few users, one channel
// everyone is a member of, and a starter moderation denylist.
func main() {
	logger.Init("seed-dev")

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

	ctx := context.Background()

	app := &store.Application{
		UUID:        "11111111-1111-1111-1111-111111111111",
		Name:        "dev",
		MasterToken: "dev-master-token",
		Audit:       store.Audit{CreatedBy: "seed", UpdatedBy: "seed"},
	}
	if err := st.EnsureApplication(ctx, app); err != nil {
		logger.Log.Error("seed application failed", "err", err)
		os.Exit(1)
	}

	users := []*store.User{
		{ApplicationID: app.ID, Username: "alice", Nickname: "Alice", Audit: store.Audit{CreatedBy: "seed", UpdatedBy: "seed"}},
		{ApplicationID: app.ID, Username: "bob", Nickname: "Bob", Audit: store.Audit{CreatedBy: "seed", UpdatedBy: "seed"}},
		{ApplicationID: app.ID, Username: "carol", Nickname: "Carol", Audit: store.Audit{CreatedBy: "seed", UpdatedBy: "seed"}},
	}
	for _, u := range users {
		if err := st.EnsureUser(ctx, u); err != nil {
			logger.Log.Error("seed user failed", "user", u.Username, "err", err)
			os.Exit(1)
		}
	}

	channel := &store.Channel{
		ApplicationID: app.ID,
		UUID:          "22222222-2222-2222-2222-222222222222",
		Name:          "general",
		Audit:         store.Audit{CreatedBy: "seed", UpdatedBy: "seed"},
	}
	for _, u := range users {
		channel.Users = append(channel.Users, *u)
	}
	if err := st.EnsureChannel(ctx, channel); err != nil {
		logger.Log.Error("seed channel failed", "err", err)
		os.Exit(1)
	}

	caches := cache.New(cfg.Redis.Addr, cfg.Cache.MemberTTL, cfg.Cache.UserTTL)
	defer caches.Close()
	if err := caches.SeedDenylist(ctx, "heck", "darn", "crud"); err != nil {
		logger.Log.Error("seed denylist failed", "err", err)
		os.Exit(1)
	}

	logger.Log.Info("dev data seeded",
		"application", app.UUID, "channel", channel.UUID, "users", len(users))
}
