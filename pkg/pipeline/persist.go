package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/moderation"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// PersistStore is the slice of the canonical store the persistence worker
// writes through.
type PersistStore interface {
	FindUser(ctx context.Context, appUUID, username string) (*store.User, error)
	FindUsersByUsernames(ctx context.Context, appUUID string, usernames []string) ([]store.User, error)
	FindChannel(ctx context.Context, appUUID, channelUUID string) (*store.Channel, error)
	FindMessageByUUID(ctx context.Context, uuid string) (*store.Message, error)
	MessageUUIDExists(ctx context.Context, uuid string) (bool, error)
	GetFullMessage(ctx context.Context, appUUID, channelUUID, messageUUID string) (*store.Message, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
}

// Indexer is the index writer side shared by both workers.
type Indexer interface {
	Upsert(ctx context.Context, doc model.Document) error
	UpdateOGTag(ctx context.Context, appUUID, channelUUID, messageUUID string, og model.OGTag) error
}

// Publisher is the producer side the workers use for follow-on jobs and
// fanout broadcasts.
type Publisher interface {
	PublishPreviewJob(ctx context.Context, job model.PreviewJob) error
	PublishEvent(ctx context.Context, appUUID, channelUUID, event string, payload interface{}) error
}

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// Persister consumes creation events off the durable log and turns each
// into exactly one canonical row plus one index document. A returned error
// means "do not commit, redeliver"; a nil return always commits, including
// the drop paths for malformed or unresolvable events.
type Persister struct {
	store PersistStore
	index Indexer
	bus   Publisher
	deny  moderation.Denylist
	sign  model.AttachmentSigner
}

func NewPersister(st PersistStore, ix Indexer, bus Publisher, deny moderation.Denylist, sign model.AttachmentSigner) *Persister {
	return &Persister{store: st, index: ix, bus: bus, deny: deny, sign: sign}
}

func (p *Persister) Handle(ctx context.Context, raw []byte) error {
	var ev model.SaveEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Log.Warn("dropping undecodable creation event", "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		logger.Log.Warn("dropping invalid creation event", "uuid", ev.UUID, "err", err)
		return nil
	}

	// Redelivery check on the UUID the edge minted. The lookup sees
	// soft-deleted rows too, so a deleted message never resurrects. A
	// replayed event only re-heals the index document; no second row, no
	// second broadcast, no second preview job.
	if exists, err := p.store.MessageUUIDExists(ctx, ev.UUID); err != nil {
		return err
	} else if exists {
		return p.reindex(ctx, ev.ApplicationUUID, ev.ChannelUUID, ev.UUID)
	}

	ch, err := p.store.FindChannel(ctx, ev.ApplicationUUID, ev.ChannelUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Log.Warn("dropping event for unknown channel",
				"app", ev.ApplicationUUID, "channel", ev.ChannelUUID, "uuid", ev.UUID)
			return nil
		}
		return err
	}
	author, err := p.store.FindUser(ctx, ev.ApplicationUUID, ev.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Log.Warn("dropping event for unknown user",
				"app", ev.ApplicationUUID, "user", ev.Username, "uuid", ev.UUID)
			return nil
		}
		return err
	}

	masked, err := moderation.Mask(ctx, p.deny, ev.Message)
	if err != nil {
		return fmt.Errorf("moderation: %w", err)
	}

	// Parent resolution is soft: by the time the event is consumed the
	// parent may be gone, and the message then lands top-level rather than
	// being lost.
	var parent *store.Message
	if ev.ParentMessageUUID != nil {
		parent, err = p.store.FindMessageByUUID(ctx, *ev.ParentMessageUUID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	mentioned, err := p.store.FindUsersByUsernames(ctx, ev.ApplicationUUID, ev.MentionedUsernames)
	if err != nil {
		return err
	}

	createdAt := time.UnixMilli(ev.CreatedAt)
	msg := &store.Message{
		UUID:           ev.UUID,
		ChannelID:      ch.ID,
		UserID:         author.ID,
		Body:           masked,
		MentionType:    ev.MentionType,
		MentionedUsers: mentioned,
		Attachments:    ev.Attachments,
		Audit: store.Audit{
			CreatedAt: createdAt, CreatedBy: author.Username,
			UpdatedAt: createdAt, UpdatedBy: author.Username,
		},
	}
	if parent != nil {
		pid := parent.ID
		msg.ParentMessageID = &pid
	}

	if err := p.store.CreateMessage(ctx, msg); err != nil {
		// Two consumers can race on the same redelivered event; the unique
		// index on uuid decides, and the loser degrades to the replay path.
		if exists, findErr := p.store.MessageUUIDExists(ctx, ev.UUID); findErr == nil && exists {
			return p.reindex(ctx, ev.ApplicationUUID, ev.ChannelUUID, ev.UUID)
		}
		return fmt.Errorf("persist message %s: %w", ev.UUID, err)
	}

	if link := linkPattern.FindString(masked); link != "" {
		job := model.PreviewJob{
			V:               model.SchemaVersion,
			ApplicationUUID: ev.ApplicationUUID,
			ChannelUUID:     ev.ChannelUUID,
			MessageUUID:     ev.UUID,
			Link:            link,
		}
		// Enrichment is best effort; a lost job means a message without a
		// preview, not a lost message.
		if err := p.bus.PublishPreviewJob(ctx, job); err != nil {
			logger.Log.Error("preview job publish failed", "uuid", ev.UUID, "err", err)
		}
	}

	full, err := p.store.GetFullMessage(ctx, ev.ApplicationUUID, ev.ChannelUUID, ev.UUID)
	if err != nil {
		return err
	}
	doc := store.DocumentFor(ev.ApplicationUUID, ch, full)
	if err := p.index.Upsert(ctx, doc); err != nil {
		logger.Log.Error("index upsert failed", "uuid", ev.UUID, "err", err)
	}

	view := doc.View(p.sign)
	if err := p.bus.PublishEvent(ctx, ev.ApplicationUUID, ev.ChannelUUID, model.EventMessageUpdated, view); err != nil {
		logger.Log.Error("canonical broadcast failed", "uuid", ev.UUID, "err", err)
	}
	return nil
}

// reindex re-derives and re-upserts the index document of an already
// persisted message. Upserts are idempotent on the index, so healing is
// always safe.
func (p *Persister) reindex(ctx context.Context, appUUID, channelUUID, messageUUID string) error {
	full, err := p.store.GetFullMessage(ctx, appUUID, channelUUID, messageUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Persisted under another channel or since deleted; nothing to
			// heal here.
			return nil
		}
		return err
	}
	ch, err := p.store.FindChannel(ctx, appUUID, channelUUID)
	if err != nil {
		return err
	}
	if err := p.index.Upsert(ctx, store.DocumentFor(appUUID, ch, full)); err != nil {
		logger.Log.Error("index heal failed", "uuid", messageUUID, "err", err)
	}
	return nil
}
