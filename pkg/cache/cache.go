package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mosaicchat/mosaic/pkg/model"
)

const (
	denylistKey     = "bad-words"
	typingTTL       = 5 * time.Second
	typingKeyPrefix = "typing-indicator"
	memberKeyPrefix = "channel-member"
	userKeyPrefix   = "user"
)

// Cache is the Redis-backed short-lived state: membership and user lookup
// caches (read-only predicates with a short TTL), the moderation denylist
// set, and the ephemeral typing-indicator sets.
type Cache struct {
	rdb       *redis.Client
	memberTTL time.Duration
	userTTL   time.Duration
}

func New(addr string, memberTTL, userTTL time.Duration) *Cache {
	return &Cache{
		rdb:       redis.NewClient(&redis.Options{Addr: addr}),
		memberTTL: memberTTL,
		userTTL:   userTTL,
	}
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

// --- membership cache ---

func memberKey(appUUID, channelUUID string) string {
	return fmt.Sprintf("%s:%s:%s", memberKeyPrefix, appUUID, channelUUID)
}

// Member reports whether the membership of (channel, user) is cached.
// The second return distinguishes "cached false" from "not cached".
func (c *Cache) Member(ctx context.Context, appUUID, channelUUID, username string) (bool, bool, error) {
	val, err := c.rdb.HGet(ctx, memberKey(appUUID, channelUUID), username).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "true", true, nil
}

func (c *Cache) SetMember(ctx context.Context, appUUID, channelUUID, username string) error {
	key := memberKey(appUUID, channelUUID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, username, "true")
	pipe.Expire(ctx, key, c.memberTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// --- user cache ---

func userKey(appUUID, username string) string {
	return fmt.Sprintf("%s:%s:%s", userKeyPrefix, appUUID, username)
}

// User returns the cached identity of a user, or nil on a miss.
func (c *Cache) User(ctx context.Context, appUUID, username string) (*model.UserRef, error) {
	raw, err := c.rdb.Get(ctx, userKey(appUUID, username)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ref model.UserRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *Cache) SetUser(ctx context.Context, appUUID string, ref model.UserRef) error {
	raw, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, userKey(appUUID, ref.Username), raw, c.userTTL).Err()
}

// --- moderation denylist ---

// Denylisted satisfies moderation.Denylist with one batched round trip.
func (c *Cache) Denylisted(ctx context.Context, words []string) ([]bool, error) {
	if len(words) == 0 {
		return nil, nil
	}
	members := make([]interface{}, len(words))
	for i, w := range words {
		members[i] = w
	}
	return c.rdb.SMIsMember(ctx, denylistKey, members...).Result()
}

// SeedDenylist adds words to the denylist set.
func (c *Cache) SeedDenylist(ctx context.Context, words ...string) error {
	if len(words) == 0 {
		return nil
	}
	members := make([]interface{}, len(words))
	for i, w := range words {
		members[i] = w
	}
	return c.rdb.SAdd(ctx, denylistKey, members...).Err()
}

// --- typing indicators ---

func typingKey(appUUID, channelUUID string) string {
	return fmt.Sprintf("%s:%s:%s", typingKeyPrefix, appUUID, channelUUID)
}

// AddTyping marks a user as typing. The whole set expires after a few
// seconds; a client that keeps typing keeps re-adding itself.
func (c *Cache) AddTyping(ctx context.Context, appUUID, channelUUID string, user model.UserRef) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	key := typingKey(appUUID, channelUUID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, raw)
	pipe.Expire(ctx, key, typingTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) RemoveTyping(ctx context.Context, appUUID, channelUUID string, user model.UserRef) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.rdb.SRem(ctx, typingKey(appUUID, channelUUID), raw).Err()
}

// ListTyping returns the users currently typing in a channel. Unordered;
// purely a presence hint.
func (c *Cache) ListTyping(ctx context.Context, appUUID, channelUUID string) ([]model.UserRef, error) {
	raws, err := c.rdb.SMembers(ctx, typingKey(appUUID, channelUUID)).Result()
	if err != nil {
		return nil, err
	}
	users := make([]model.UserRef, 0, len(raws))
	for _, raw := range raws {
		var u model.UserRef
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}
