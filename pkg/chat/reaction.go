package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// ReactionOp is the explicit direction of a toggle. The client states
// intent; the server makes redeliveries of the same intent idempotent.
type ReactionOp string

const (
	ReactionAdd    ReactionOp = "add"
	ReactionDelete ReactionOp = "delete"
)

var ErrInvalidReactionOp = errors.New("reaction op must be add or delete")

type ToggleReactionRequest struct {
	ChannelUUID string
	MessageUUID string
	Reaction    string
	Op          ReactionOp
}

// ToggleReaction applies one reaction operation on the natural key
// (message, user, symbol) and rebroadcasts the message's full reaction
// set. Adding an already-present reaction refreshes its audit stamp
// instead of duplicating the row; deleting an absent one is a no-op. Both
// paths still rebroadcast, so a client that missed an update heals.
func (s *Service) ToggleReaction(ctx context.Context, sess Session, req ToggleReactionRequest) ([]model.ReactionView, error) {
	if req.Op != ReactionAdd && req.Op != ReactionDelete {
		return nil, ErrInvalidReactionOp
	}
	if req.Reaction == "" {
		return nil, ErrInvalidReactionOp
	}

	ch, err := s.requireChannel(ctx, sess, req.ChannelUUID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUser(ctx, sess.ApplicationUUID, sess.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	msg, err := s.store.FindMessageByUUID(ctx, req.MessageUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.ChannelID != ch.ID {
		return nil, ErrMessageNotFound
	}

	existing, err := s.store.FindReaction(ctx, msg.ID, user.ID, req.Reaction)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	switch req.Op {
	case ReactionAdd:
		if existing != nil {
			if err := s.store.TouchReaction(ctx, existing.ID, user.Username); err != nil {
				return nil, fmt.Errorf("refresh reaction: %w", err)
			}
		} else {
			r := &store.Reaction{
				MessageID: msg.ID,
				UserID:    user.ID,
				Reaction:  req.Reaction,
				Audit:     store.Audit{CreatedBy: user.Username, UpdatedBy: user.Username},
			}
			if err := s.store.CreateReaction(ctx, r); err != nil {
				return nil, fmt.Errorf("create reaction: %w", err)
			}
		}
	case ReactionDelete:
		if existing != nil {
			if err := s.store.DeleteReaction(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("delete reaction: %w", err)
			}
		}
	}

	set, err := s.store.ListReactions(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	views := reactionViews(set)

	update := model.ReactionsUpdate{MessageUUID: msg.UUID, Reactions: views}
	if err := s.bus.PublishEvent(ctx, sess.ApplicationUUID, ch.UUID, model.EventReactionsUpdated, update); err != nil {
		logger.Log.Error("reaction broadcast failed", "message", msg.UUID, "err", err)
	}
	return views, nil
}
