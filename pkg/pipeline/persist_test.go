package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/mosaic/pkg/model"
)

const (
	testApp     = "a0000000-0000-0000-0000-000000000001"
	testChannel = "c0000000-0000-0000-0000-000000000001"
)

type persistHarness struct {
	db    *fakeDB
	index *fakeIndex
	bus   *fakeBus
	deny  fakeDeny
	p     *Persister
}

func newPersistHarness(t *testing.T) *persistHarness {
	t.Helper()
	h := &persistHarness{
		db:    newFakeDB(),
		index: newFakeIndex(),
		bus:   &fakeBus{},
		deny:  fakeDeny{},
	}
	h.db.addApp(testApp)
	h.db.addUser(testApp, "alice", "Alice")
	h.db.addChannel(testApp, testChannel, "general")
	h.p = NewPersister(h.db, h.index, h.bus, h.deny, nil)
	return h
}

func saveEvent(uuid, body string) model.SaveEvent {
	return model.SaveEvent{
		V:                  model.SchemaVersion,
		UUID:               uuid,
		ApplicationUUID:    testApp,
		ChannelUUID:        testChannel,
		Username:           "alice",
		Nickname:           "Alice",
		Message:            body,
		MentionedUsernames: []string{},
		Attachments:        []model.Attachment{},
		CreatedAt:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestPersistCreatesRowIndexesAndBroadcasts(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-1", "check https://example.com/post out")

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))

	require.Len(t, h.db.messages, 1)
	msg := h.db.messages[0]
	assert.Equal(t, "m-1", msg.UUID)
	assert.Equal(t, ev.CreatedAt, msg.CreatedAt.UnixMilli(), "row keeps the event time, not the consume time")

	require.Len(t, h.index.upserts, 1)
	assert.Equal(t, "m-1", h.index.upserts[0].UUID)
	assert.Equal(t, int64(msg.ID), h.index.upserts[0].ID)

	require.Len(t, h.bus.jobs, 1)
	assert.Equal(t, "https://example.com/post", h.bus.jobs[0].Link)
	assert.Equal(t, "m-1", h.bus.jobs[0].MessageUUID)

	updates := h.bus.eventsNamed(model.EventMessageUpdated)
	require.Len(t, updates, 1)
	var view model.MessageView
	require.NoError(t, json.Unmarshal(updates[0].Payload, &view))
	assert.Equal(t, "m-1", view.UUID)
	assert.Equal(t, "alice", view.User.Username)
}

func TestPersistRedeliveryOnlyHealsIndex(t *testing.T) {
	h := newPersistHarness(t)
	raw := encode(t, saveEvent("m-1", "hello"))

	require.NoError(t, h.p.Handle(context.Background(), raw))
	require.NoError(t, h.p.Handle(context.Background(), raw))

	assert.Len(t, h.db.messages, 1, "redelivery must not duplicate the row")
	assert.Len(t, h.index.upserts, 2, "redelivery re-upserts the document")
	assert.Len(t, h.bus.eventsNamed(model.EventMessageUpdated), 1, "no second broadcast")
	assert.Empty(t, h.bus.jobs, "no link, no preview job")
}

func TestPersistMasksDenylistedWords(t *testing.T) {
	h := newPersistHarness(t)
	h.deny["crud"] = true

	require.NoError(t, h.p.Handle(context.Background(), encode(t, saveEvent("m-1", "what a crud day"))))

	require.Len(t, h.db.messages, 1)
	assert.Equal(t, "what a **** day", h.db.messages[0].Body)
	assert.Equal(t, "what a **** day", h.index.upserts[0].Message)
}

func TestPersistDropsUnknownChannel(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-1", "hello")
	ev.ChannelUUID = "c0000000-dead-dead-dead-000000000000"

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))
	assert.Empty(t, h.db.messages)
	assert.Empty(t, h.index.upserts)
	assert.Empty(t, h.bus.events)
}

func TestPersistDropsUnknownUser(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-1", "hello")
	ev.Username = "ghost"

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))
	assert.Empty(t, h.db.messages)
}

func TestPersistRejectsUnknownSchemaVersion(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-1", "hello")
	ev.V = model.SchemaVersion + 1

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))
	assert.Empty(t, h.db.messages)
}

func TestPersistDropsGarbagePayload(t *testing.T) {
	h := newPersistHarness(t)
	require.NoError(t, h.p.Handle(context.Background(), []byte("{not json")))
	assert.Empty(t, h.db.messages)
}

func TestPersistVanishedParentLandsTopLevel(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-2", "replying into the void")
	gone := "m-never-persisted"
	ev.ParentMessageUUID = &gone

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))

	require.Len(t, h.db.messages, 1)
	assert.Nil(t, h.db.messages[0].ParentMessageID)
	assert.Nil(t, h.index.upserts[0].ParentMessageUUID)
}

func TestPersistResolvesLivingParent(t *testing.T) {
	h := newPersistHarness(t)
	require.NoError(t, h.p.Handle(context.Background(), encode(t, saveEvent("m-parent", "root"))))

	ev := saveEvent("m-child", "a reply")
	parent := "m-parent"
	ev.ParentMessageUUID = &parent
	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))

	require.Len(t, h.db.messages, 2)
	child := h.db.messages[1]
	require.NotNil(t, child.ParentMessageID)
	assert.Equal(t, h.db.messages[0].ID, *child.ParentMessageID)

	childDoc := h.index.upserts[1]
	require.NotNil(t, childDoc.ParentMessageUUID)
	assert.Equal(t, "m-parent", *childDoc.ParentMessageUUID)
}

func TestPersistMentionsResolved(t *testing.T) {
	h := newPersistHarness(t)
	h.db.addUser(testApp, "bob", "Bob")

	ev := saveEvent("m-1", "ping")
	ev.MentionType = model.MentionUsers
	ev.MentionedUsernames = []string{"bob", "ghost"}
	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))

	require.Len(t, h.db.messages, 1)
	require.Len(t, h.db.messages[0].MentionedUsers, 1, "unknown mentions are skipped")
	assert.Equal(t, "bob", h.db.messages[0].MentionedUsers[0].Username)
}

func TestPersistFirstLinkOnlyGetsPreviewJob(t *testing.T) {
	h := newPersistHarness(t)
	ev := saveEvent("m-1", "see https://a.example/1 and https://b.example/2")

	require.NoError(t, h.p.Handle(context.Background(), encode(t, ev)))
	require.Len(t, h.bus.jobs, 1)
	assert.Equal(t, "https://a.example/1", h.bus.jobs[0].Link)
}
