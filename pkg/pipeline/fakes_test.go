package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/preview"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// fakeDB backs both workers in-memory, with the same uniqueness rules the
// real store enforces.
type fakeDB struct {
	mu       sync.Mutex
	apps     map[string]uint64
	users    []*store.User
	channels []*store.Channel
	messages []*store.Message
	previews []*store.LinkPreview
	nextID   uint64
}

func newFakeDB() *fakeDB {
	return &fakeDB{apps: map[string]uint64{}}
}

func (f *fakeDB) id() uint64 {
	f.nextID++
	return f.nextID
}

func (f *fakeDB) addApp(uuid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[uuid] = f.id()
}

func (f *fakeDB) addUser(appUUID, username, nickname string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &store.User{ID: f.id(), ApplicationID: f.apps[appUUID], Username: username, Nickname: nickname}
	f.users = append(f.users, u)
	return u
}

func (f *fakeDB) addChannel(appUUID, uuid, name string) *store.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &store.Channel{ID: f.id(), ApplicationID: f.apps[appUUID], UUID: uuid, Name: name}
	f.channels = append(f.channels, ch)
	return ch
}

func (f *fakeDB) userByID(id uint64) store.User {
	for _, u := range f.users {
		if u.ID == id {
			return *u
		}
	}
	return store.User{}
}

func (f *fakeDB) FindUser(_ context.Context, appUUID, username string) (*store.User, error) {
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

func (f *fakeDB) FindUsersByUsernames(_ context.Context, appUUID string, usernames []string) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	var out []store.User
	for _, name := range usernames {
		for _, u := range f.users {
			if u.ApplicationID == appID && u.Username == name {
				out = append(out, *u)
			}
		}
	}
	return out, nil
}

func (f *fakeDB) FindChannel(_ context.Context, appUUID, channelUUID string) (*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	for _, ch := range f.channels {
		if ch.ApplicationID == appID && ch.UUID == channelUUID {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDB) FindMessageByUUID(_ context.Context, uuid string) (*store.Message, error) {
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

func (f *fakeDB) MessageUUIDExists(_ context.Context, uuid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.UUID == uuid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) GetFullMessage(_ context.Context, appUUID, channelUUID, messageUUID string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appID := f.apps[appUUID]
	for _, m := range f.messages {
		if m.UUID != messageUUID {
			continue
		}
		for _, ch := range f.channels {
			if ch.ID == m.ChannelID && ch.ApplicationID == appID && ch.UUID == channelUUID {
				cp := *m
				cp.User = f.userByID(m.UserID)
				if m.ParentMessageID != nil {
					for _, p := range f.messages {
						if p.ID == *m.ParentMessageID {
							pc := *p
							cp.ParentMessage = &pc
						}
					}
				}
				if m.LinkPreviewID != nil {
					for _, lp := range f.previews {
						if lp.ID == *m.LinkPreviewID {
							lpc := *lp
							cp.LinkPreview = &lpc
						}
					}
				}
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDB) CreateMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.UUID == msg.UUID {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	cp := *msg
	cp.ID = f.id()
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeDB) AttachPreview(_ context.Context, messageUUID string, fresh *store.LinkPreview) (*store.LinkPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var resolved *store.LinkPreview
	for _, lp := range f.previews {
		if lp.URL == fresh.URL {
			resolved = lp
			break
		}
	}
	if resolved == nil {
		cp := *fresh
		cp.ID = f.id()
		f.previews = append(f.previews, &cp)
		resolved = &cp
	}
	for _, m := range f.messages {
		if m.UUID == messageUUID {
			id := resolved.ID
			m.LinkPreviewID = &id
			out := *resolved
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeIndex struct {
	mu        sync.Mutex
	upserts   []model.Document
	ogPatches map[string]model.OGTag
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{ogPatches: map[string]model.OGTag{}}
}

func (ix *fakeIndex) Upsert(_ context.Context, doc model.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upserts = append(ix.upserts, doc)
	return nil
}

func (ix *fakeIndex) UpdateOGTag(_ context.Context, _, _, messageUUID string, og model.OGTag) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ogPatches[messageUUID] = og
	return nil
}

type publishedEvent struct {
	AppUUID     string
	ChannelUUID string
	Event       string
	Payload     json.RawMessage
}

type fakeBus struct {
	mu     sync.Mutex
	jobs   []model.PreviewJob
	events []publishedEvent
}

func (b *fakeBus) PublishPreviewJob(_ context.Context, job model.PreviewJob) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = append(b.jobs, job)
	return nil
}

func (b *fakeBus) PublishEvent(_ context.Context, appUUID, channelUUID, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.events = append(b.events, publishedEvent{AppUUID: appUUID, ChannelUUID: channelUUID, Event: event, Payload: raw})
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

// fakeDeny bans an explicit word list.
type fakeDeny map[string]bool

func (d fakeDeny) Denylisted(_ context.Context, words []string) ([]bool, error) {
	out := make([]bool, len(words))
	for i, w := range words {
		out[i] = d[w]
	}
	return out, nil
}

// fakeFetcher serves canned metadata and image bytes per URL.
type fakeFetcher struct {
	meta    map[string]*preview.Metadata
	images  map[string][]byte
	fetches int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*preview.Metadata, error) {
	f.fetches++
	if m, ok := f.meta[url]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, errors.New("status 404")
}

func (f *fakeFetcher) Download(_ context.Context, url string) ([]byte, string, error) {
	if data, ok := f.images[url]; ok {
		return data, "image/png", nil
	}
	return nil, "", errors.New("status 404")
}

type fakeBlob struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{puts: map[string][]byte{}}
}

func (b *fakeBlob) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts[key] = data
	return "http://blobs.local/files/" + key, nil
}

func (b *fakeBlob) SignDownloadURL(fileKey, _ string) (string, error) {
	return "http://blobs.local/files/" + fileKey + "?sig=test", nil
}
