package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// Validation errors surfaced to the edge as nacks. Anything that fails
// past the durable-log publish never reaches the sender.
var (
	ErrEmptyMessage    = errors.New("message must not be empty")
	ErrUserNotFound    = errors.New("user not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidCursor   = errors.New("invalid cursor")
)

// Store is the slice of the canonical store the chat engine needs.
type Store interface {
	FindUser(ctx context.Context, appUUID, username string) (*store.User, error)
	FindChannelWithMember(ctx context.Context, appUUID, channelUUID, username string) (*store.Channel, error)
	FindMessageByUUID(ctx context.Context, uuid string) (*store.Message, error)
	GetFullMessage(ctx context.Context, appUUID, channelUUID, messageUUID string) (*store.Message, error)
	ListTopLevelBefore(ctx context.Context, channelID uint64, limit int, beforeID *uint64, beforeTS *time.Time) ([]store.Message, error)
	ListReplies(ctx context.Context, parentID uint64) ([]store.Message, error)
	UpdateMessageBody(ctx context.Context, id uint64, body, updatedBy string) error
	DeleteMessage(ctx context.Context, id uint64) error
	FindReaction(ctx context.Context, messageID, userID uint64, symbol string) (*store.Reaction, error)
	CreateReaction(ctx context.Context, r *store.Reaction) error
	TouchReaction(ctx context.Context, id uint64, updatedBy string) error
	DeleteReaction(ctx context.Context, id uint64) error
	ListReactions(ctx context.Context, messageID uint64) ([]store.Reaction, error)
}

// Cache is the short-TTL lookaside for author and membership resolution,
// plus the typing sets.
type Cache interface {
	Member(ctx context.Context, appUUID, channelUUID, username string) (member bool, cached bool, err error)
	SetMember(ctx context.Context, appUUID, channelUUID, username string) error
	User(ctx context.Context, appUUID, username string) (*model.UserRef, error)
	SetUser(ctx context.Context, appUUID string, ref model.UserRef) error
	AddTyping(ctx context.Context, appUUID, channelUUID string, user model.UserRef) error
	RemoveTyping(ctx context.Context, appUUID, channelUUID string, user model.UserRef) error
	ListTyping(ctx context.Context, appUUID, channelUUID string) ([]model.UserRef, error)
}

// Publisher is the durable-log producer side the engine uses.
type Publisher interface {
	PublishSave(ctx context.Context, ev model.SaveEvent) error
	PublishEvent(ctx context.Context, appUUID, channelUUID, event string, payload interface{}) error
}

// Indexer is the slice of the search index the edge writes through to on
// edits/deletes and reads for search.
type Indexer interface {
	Upsert(ctx context.Context, doc model.Document) error
	Tombstone(ctx context.Context, appUUID, channelUUID, messageUUID, deletedBy string) error
	Search(ctx context.Context, appUUID, channelUUID, term string, limit int) ([]model.Document, error)
}

// Session identifies the authenticated caller of every operation.
type Session struct {
	ApplicationUUID string
	Username        string
}

// Service hosts the edge-side operations: message submission, history
// pagination, thread listing, reaction toggling, edit/delete/search and
// typing state.
type Service struct {
	store Store
	cache Cache
	bus   Publisher
	index Indexer
	sign  model.AttachmentSigner

	now     func() time.Time
	newUUID func() string
}

func New(st Store, c Cache, bus Publisher, ix Indexer, sign model.AttachmentSigner) *Service {
	return &Service{
		store:   st,
		cache:   c,
		bus:     bus,
		index:   ix,
		sign:    sign,
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

type CreateMessageRequest struct {
	ChannelUUID        string
	Message            string
	ParentMessageUUID  *string
	MentionType        model.MentionType
	MentionedUsernames []string
	Attachments        []model.Attachment
}

// Submit is the ingestion producer. It validates against cached
// membership, synthesizes the message UUID, publishes exactly one creation
// event to the durable log (keyed by channel, preserving per-channel
// order) and broadcasts exactly one optimistic view without waiting for
// persistence. The view has no canonical numeric id yet and carries the
// pre-moderation body; the persistence consumer supersedes it later.
func (s *Service) Submit(ctx context.Context, sess Session, req CreateMessageRequest) (*model.MessageView, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	user, err := s.resolveUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembership(ctx, sess, req.ChannelUUID); err != nil {
		return nil, err
	}

	// Soft parent check: a dangling reference degrades the message to
	// top-level instead of failing the request.
	parentUUID := req.ParentMessageUUID
	if parentUUID != nil {
		if _, err := s.store.FindMessageByUUID(ctx, *parentUUID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			parentUUID = nil
		}
	}

	msgUUID := s.newUUID()
	createdAt := s.now()

	ev := model.SaveEvent{
		V:                  model.SchemaVersion,
		UUID:               msgUUID,
		ApplicationUUID:    sess.ApplicationUUID,
		ChannelUUID:        req.ChannelUUID,
		Username:           user.Username,
		Nickname:           user.Nickname,
		Message:            req.Message,
		ParentMessageUUID:  parentUUID,
		MentionType:        req.MentionType,
		MentionedUsernames: req.MentionedUsernames,
		Attachments:        req.Attachments,
		CreatedAt:          createdAt.UnixMilli(),
	}
	if ev.MentionedUsernames == nil {
		ev.MentionedUsernames = []string{}
	}
	if ev.Attachments == nil {
		ev.Attachments = []model.Attachment{}
	}
	if err := s.bus.PublishSave(ctx, ev); err != nil {
		return nil, fmt.Errorf("publish creation event: %w", err)
	}

	view := &model.MessageView{
		UUID:              msgUUID,
		Message:           req.Message,
		User:              *user,
		MentionType:       req.MentionType,
		MentionedUsers:    []model.UserRef{},
		Attachments:       s.signAttachments(req.Attachments),
		ChannelUUID:       req.ChannelUUID,
		ParentMessageUUID: parentUUID,
		Reactions:         []model.ReactionView{},
		CreatedAt:         createdAt.UnixMilli(),
		UpdatedAt:         createdAt.UnixMilli(),
	}
	if err := s.bus.PublishEvent(ctx, sess.ApplicationUUID, req.ChannelUUID, model.EventMessageNew, view); err != nil {
		logger.Log.Error("optimistic broadcast failed", "channel", req.ChannelUUID, "err", err)
	}
	return view, nil
}

// VerifyMembership reports whether the caller may subscribe to a channel.
// Used by the edge before it starts routing channel events to a socket.
func (s *Service) VerifyMembership(ctx context.Context, sess Session, channelUUID string) error {
	return s.requireMembership(ctx, sess, channelUUID)
}

// resolveUser loads the caller's identity through the cache.
func (s *Service) resolveUser(ctx context.Context, sess Session) (*model.UserRef, error) {
	cached, err := s.cache.User(ctx, sess.ApplicationUUID, sess.Username)
	if err == nil && cached != nil {
		return cached, nil
	}
	u, err := s.store.FindUser(ctx, sess.ApplicationUUID, sess.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	ref := u.Ref()
	if err := s.cache.SetUser(ctx, sess.ApplicationUUID, ref); err != nil {
		logger.Log.Debug("user cache write failed", "err", err)
	}
	return &ref, nil
}

// requireMembership gates on the (channel, user) membership predicate,
// consulting the cache first.
func (s *Service) requireMembership(ctx context.Context, sess Session, channelUUID string) error {
	member, cached, err := s.cache.Member(ctx, sess.ApplicationUUID, channelUUID, sess.Username)
	if err == nil && cached && member {
		return nil
	}
	if _, err := s.store.FindChannelWithMember(ctx, sess.ApplicationUUID, channelUUID, sess.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChannelNotFound
		}
		return err
	}
	if err := s.cache.SetMember(ctx, sess.ApplicationUUID, channelUUID, sess.Username); err != nil {
		logger.Log.Debug("membership cache write failed", "err", err)
	}
	return nil
}

// requireChannel is requireMembership for operations that also need the
// channel row.
func (s *Service) requireChannel(ctx context.Context, sess Session, channelUUID string) (*store.Channel, error) {
	ch, err := s.store.FindChannelWithMember(ctx, sess.ApplicationUUID, channelUUID, sess.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return ch, nil
}
