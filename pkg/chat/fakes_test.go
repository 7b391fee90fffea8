package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// fakeStore is an in-memory stand-in for the canonical store, good enough
// to exercise pagination, threads and the reaction state machine.
type fakeStore struct {
	mu        sync.Mutex
	apps      map[string]uint64
	users     []*store.User
	channels  []*store.Channel
	members   map[uint64]map[string]bool
	messages  []*store.Message
	reactions []*store.Reaction
	nextID    uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:    map[string]uint64{},
		members: map[uint64]map[string]bool{},
	}
}

func (f *fakeStore) id() uint64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addApp(uuid string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.apps[uuid] = id
	return id
}

func (f *fakeStore) addUser(appUUID, username, nickname string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{
		ID:            f.id(),
		ApplicationID: f.apps[appUUID],
		Username:      username,
		Nickname:      nickname,
	}
	f.users = append(f.users, u)
	return u
}

func (f *fakeStore) addChannel(appUUID, uuid, name string, members ...*store.User) *store.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &store.Channel{
		ID:            f.id(),
		ApplicationID: f.apps[appUUID],
		UUID:          uuid,
		Name:          name,
	}
	f.channels = append(f.channels, ch)
	f.members[ch.ID] = map[string]bool{}
	for _, m := range members {
		f.members[ch.ID][m.Username] = true
	}
	return ch
}

func (f *fakeStore) addMessage(ch *store.Channel, u *store.User, uuid, body string, parent *store.Message, at time.Time) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &store.Message{
		ID:        f.id(),
		UUID:      uuid,
		ChannelID: ch.ID,
		UserID:    u.ID,
		Body:      body,
		Audit: store.Audit{
			CreatedAt: at, CreatedBy: u.Username,
			UpdatedAt: at, UpdatedBy: u.Username,
		},
	}
	if parent != nil {
		pid := parent.ID
		m.ParentMessageID = &pid
	}
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeStore) userByID(id uint64) store.User {
	for _, u := range f.users {
		if u.ID == id {
			return *u
		}
	}
	return store.User{}
}

func (f *fakeStore) messageByID(id uint64) *store.Message {
	for _, m := range f.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// fullCopy denormalizes a message the way the real store's preloads do.
func (f *fakeStore) fullCopy(m *store.Message) store.Message {
	cp := *m
	cp.User = f.userByID(m.UserID)
	cp.Reactions = nil
	for _, r := range f.reactions {
		if r.MessageID == m.ID {
			rc := *r
			rc.User = f.userByID(r.UserID)
			cp.Reactions = append(cp.Reactions, rc)
		}
	}
	cp.Replies = nil
	for _, child := range f.messages {
		if child.ParentMessageID != nil && *child.ParentMessageID == m.ID {
			rc := *child
			rc.User = f.userByID(child.UserID)
			cp.Replies = append(cp.Replies, rc)
		}
	}
	if m.ParentMessageID != nil {
		if parent := f.messageByID(*m.ParentMessageID); parent != nil {
			p := *parent
			cp.ParentMessage = &p
		}
	}
	return cp
}

func (f *fakeStore) FindUser(_ context.Context, appUUID, username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	for _, u := range f.users {
		if u.ApplicationID == appID && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindChannelWithMember(_ context.Context, appUUID, channelUUID, username string) (*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	for _, ch := range f.channels {
		if ch.ApplicationID == appID && ch.UUID == channelUUID && f.members[ch.ID][username] {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindMessageByUUID(_ context.Context, uuid string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.UUID == uuid {
			cp := *m
			cp.User = f.userByID(m.UserID)
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetFullMessage(_ context.Context, appUUID, channelUUID, messageUUID string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	for _, m := range f.messages {
		if m.UUID != messageUUID {
			continue
		}
		for _, ch := range f.channels {
			if ch.ID == m.ChannelID && ch.ApplicationID == appID && ch.UUID == channelUUID {
				cp := f.fullCopy(m)
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListTopLevelBefore(_ context.Context, channelID uint64, limit int, beforeID *uint64, beforeTS *time.Time) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Message
	for _, m := range f.messages {
		if m.ChannelID != channelID || m.ParentMessageID != nil {
			continue
		}
		if beforeID != nil && m.ID >= *beforeID {
			continue
		}
		if beforeTS != nil && !m.CreatedAt.Before(*beforeTS) {
			continue
		}
		out = append(out, f.fullCopy(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListReplies(_ context.Context, parentID uint64) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Message
	for _, m := range f.messages {
		if m.ParentMessageID != nil && *m.ParentMessageID == parentID {
			out = append(out, f.fullCopy(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateMessageBody(_ context.Context, id uint64, body, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messageByID(id)
	if m == nil {
		return store.ErrNotFound
	}
	m.Body = body
	m.UpdatedAt = time.Now()
	m.UpdatedBy = updatedBy
	return nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	keptR := f.reactions[:0]
	for _, r := range f.reactions {
		if r.MessageID != id {
			keptR = append(keptR, r)
		}
	}
	f.reactions = keptR
	return nil
}

func (f *fakeStore) FindReaction(_ context.Context, messageID, userID uint64, symbol string) (*store.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reactions {
		if r.MessageID == messageID && r.UserID == userID && r.Reaction == symbol {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateReaction(_ context.Context, r *store.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	cp := *r
	cp.ID = f.id()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.reactions = append(f.reactions, &cp)
	return nil
}

func (f *fakeStore) TouchReaction(_ context.Context, id uint64, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reactions {
		if r.ID == id {
			r.UpdatedAt = time.Now()
			r.UpdatedBy = updatedBy
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteReaction(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.reactions[:0]
	for _, r := range f.reactions {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.reactions = kept
	return nil
}

func (f *fakeStore) ListReactions(_ context.Context, messageID uint64) ([]store.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Reaction
	for _, r := range f.reactions {
		if r.MessageID == messageID {
			cp := *r
			cp.User = f.userByID(r.UserID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeCache answers membership and identity lookups from plain maps and
// keeps typing sets without expiry.
type fakeCache struct {
	mu      sync.Mutex
	members map[string]bool
	users   map[string]model.UserRef
	typing  map[string][]model.UserRef
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		members: map[string]bool{},
		users:   map[string]model.UserRef{},
		typing:  map[string][]model.UserRef{},
	}
}

func (c *fakeCache) Member(_ context.Context, appUUID, channelUUID, username string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.members[appUUID+"|"+channelUUID+"|"+username]
	return v, ok, nil
}

func (c *fakeCache) SetMember(_ context.Context, appUUID, channelUUID, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[appUUID+"|"+channelUUID+"|"+username] = true
	return nil
}

func (c *fakeCache) User(_ context.Context, appUUID, username string) (*model.UserRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[appUUID+"|"+username]; ok {
		return &u, nil
	}
	return nil, nil
}

func (c *fakeCache) SetUser(_ context.Context, appUUID string, ref model.UserRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[appUUID+"|"+ref.Username] = ref
	return nil
}

func (c *fakeCache) AddTyping(_ context.Context, appUUID, channelUUID string, user model.UserRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := appUUID + "|" + channelUUID
	for _, u := range c.typing[key] {
		if u.Username == user.Username {
			return nil
		}
	}
	c.typing[key] = append(c.typing[key], user)
	return nil
}

func (c *fakeCache) RemoveTyping(_ context.Context, appUUID, channelUUID string, user model.UserRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := appUUID + "|" + channelUUID
	kept := c.typing[key][:0]
	for _, u := range c.typing[key] {
		if u.Username != user.Username {
			kept = append(kept, u)
		}
	}
	c.typing[key] = kept
	return nil
}

func (c *fakeCache) ListTyping(_ context.Context, appUUID, channelUUID string) ([]model.UserRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.UserRef{}, c.typing[appUUID+"|"+channelUUID]...), nil
}

type publishedEvent struct {
	AppUUID     string
	ChannelUUID string
	Event       string
	Payload     json.RawMessage
}

// fakeBus records every publish so tests can assert exactly-once intent.
type fakeBus struct {
	mu     sync.Mutex
	saves  []model.SaveEvent
	events []publishedEvent
}

func (b *fakeBus) PublishSave(_ context.Context, ev model.SaveEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, ev)
	return nil
}

func (b *fakeBus) PublishEvent(_ context.Context, appUUID, channelUUID, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.events = append(b.events, publishedEvent{
		AppUUID: appUUID, ChannelUUID: channelUUID, Event: event, Payload: raw,
	})
	return nil
}

func (b *fakeBus) eventsNamed(name string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, e := range b.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// fakeIndex records index traffic and serves canned search results.
type fakeIndex struct {
	mu         sync.Mutex
	upserts    []model.Document
	tombstones []string
	results    []model.Document
}

func (ix *fakeIndex) Upsert(_ context.Context, doc model.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upserts = append(ix.upserts, doc)
	return nil
}

func (ix *fakeIndex) Tombstone(_ context.Context, _, _, messageUUID, _ string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tombstones = append(ix.tombstones, messageUUID)
	return nil
}

func (ix *fakeIndex) Search(_ context.Context, _, _, _ string, _ int) ([]model.Document, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return append([]model.Document{}, ix.results...), nil
}
