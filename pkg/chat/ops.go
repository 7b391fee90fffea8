package chat

import (
	"context"
	"errors"

	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type EditMessageRequest struct {
	ChannelUUID string
	MessageUUID string
	Message     string
}

// EditMessage rewrites the body of the caller's own message, writes the
// new shape through to the search index and broadcasts the updated view.
// Only the author may edit; anyone else gets not-found.
func (s *Service) EditMessage(ctx context.Context, sess Session, req EditMessageRequest) (*model.MessageView, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	ch, msg, err := s.ownMessage(ctx, sess, req.ChannelUUID, req.MessageUUID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateMessageBody(ctx, msg.ID, req.Message, sess.Username); err != nil {
		return nil, err
	}
	updated, err := s.store.GetFullMessage(ctx, sess.ApplicationUUID, ch.UUID, msg.UUID)
	if err != nil {
		return nil, err
	}

	// Index lag is tolerated: the canonical write already happened, a
	// failed index write only delays searchability.
	if err := s.index.Upsert(ctx, store.DocumentFor(sess.ApplicationUUID, ch, updated)); err != nil {
		logger.Log.Error("index upsert failed", "message", updated.UUID, "err", err)
	}

	view := s.viewOf(ch.UUID, updated)
	if err := s.bus.PublishEvent(ctx, sess.ApplicationUUID, ch.UUID, model.EventMessageUpdated, view); err != nil {
		logger.Log.Error("edit broadcast failed", "message", updated.UUID, "err", err)
	}
	return view, nil
}

type DeleteMessageRequest struct {
	ChannelUUID string
	MessageUUID string
}

// DeleteMessage removes the caller's own message (reactions included),
// tombstones its index document and broadcasts the deletion.
func (s *Service) DeleteMessage(ctx context.Context, sess Session, req DeleteMessageRequest) error {
	ch, msg, err := s.ownMessage(ctx, sess, req.ChannelUUID, req.MessageUUID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMessage(ctx, msg.ID); err != nil {
		return err
	}
	if err := s.index.Tombstone(ctx, sess.ApplicationUUID, ch.UUID, msg.UUID, sess.Username); err != nil {
		logger.Log.Error("index tombstone failed", "message", msg.UUID, "err", err)
	}

	payload := model.MessageDeleted{MessageUUID: msg.UUID}
	if err := s.bus.PublishEvent(ctx, sess.ApplicationUUID, ch.UUID, model.EventMessageDeleted, payload); err != nil {
		logger.Log.Error("delete broadcast failed", "message", msg.UUID, "err", err)
	}
	return nil
}

type GetMessageRequest struct {
	ChannelUUID string
	MessageUUID string
}

// GetMessage loads one message with its full relations.
func (s *Service) GetMessage(ctx context.Context, sess Session, req GetMessageRequest) (*model.MessageView, error) {
	ch, err := s.requireChannel(ctx, sess, req.ChannelUUID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.GetFullMessage(ctx, sess.ApplicationUUID, ch.UUID, req.MessageUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return s.viewOf(ch.UUID, msg), nil
}

type SearchRequest struct {
	ChannelUUID string
	Term        string
	Limit       int
}

// Search runs a substring match over the channel's index documents. The
// index trails the canonical store, so very recent writes may be missing
// from results.
func (s *Service) Search(ctx context.Context, sess Session, req SearchRequest) ([]model.MessageView, error) {
	if err := s.requireMembership(ctx, sess, req.ChannelUUID); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	docs, err := s.index.Search(ctx, sess.ApplicationUUID, req.ChannelUUID, req.Term, limit)
	if err != nil {
		return nil, err
	}
	views := make([]model.MessageView, 0, len(docs))
	for _, d := range docs {
		views = append(views, d.View(s.sign))
	}
	return views, nil
}

// TypingStart marks the caller as typing in a channel and rebroadcasts
// the channel's typing set. Entries expire on their own, so a client that
// crashes mid-keystroke disappears without a stop call.
func (s *Service) TypingStart(ctx context.Context, sess Session, channelUUID string) error {
	return s.typing(ctx, sess, channelUUID, s.cache.AddTyping)
}

// TypingStop removes the caller from the typing set and rebroadcasts it.
func (s *Service) TypingStop(ctx context.Context, sess Session, channelUUID string) error {
	return s.typing(ctx, sess, channelUUID, s.cache.RemoveTyping)
}

func (s *Service) typing(ctx context.Context, sess Session, channelUUID string, op func(context.Context, string, string, model.UserRef) error) error {
	user, err := s.resolveUser(ctx, sess)
	if err != nil {
		return err
	}
	if err := s.requireMembership(ctx, sess, channelUUID); err != nil {
		return err
	}
	if err := op(ctx, sess.ApplicationUUID, channelUUID, *user); err != nil {
		return err
	}
	users, err := s.cache.ListTyping(ctx, sess.ApplicationUUID, channelUUID)
	if err != nil {
		return err
	}
	payload := model.TypingRefresh{ChannelUUID: channelUUID, Users: users}
	if err := s.bus.PublishEvent(ctx, sess.ApplicationUUID, channelUUID, model.EventTypingRefresh, payload); err != nil {
		logger.Log.Error("typing broadcast failed", "channel", channelUUID, "err", err)
	}
	return nil
}

// ownMessage resolves a message in a channel and rejects callers who are
// not its author.
func (s *Service) ownMessage(ctx context.Context, sess Session, channelUUID, messageUUID string) (*store.Channel, *store.Message, error) {
	ch, err := s.requireChannel(ctx, sess, channelUUID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := s.store.GetFullMessage(ctx, sess.ApplicationUUID, ch.UUID, messageUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, err
	}
	if msg.User.Username != sess.Username {
		return nil, nil, ErrMessageNotFound
	}
	return ch, msg, nil
}
