package chat

import (
	"context"
	"errors"
	"time"

	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type ListPreviousRequest struct {
	ChannelUUID string
	Count       int
	// At most one cursor may be set. With neither, the page starts at the
	// newest message.
	BeforeUUID *string
	BeforeTS   *int64 // unix millis
}

// HistoryPage is one page of channel history in ascending creation order.
type HistoryPage struct {
	Messages    []model.MessageView `json:"messages"`
	HasPrevious bool                `json:"has_previous"`
}

// ListPrevious pages backwards through the top-level messages of a
// channel. It overfetches by one row to decide has_previous without a
// count query, then returns the page oldest-first so clients can prepend.
func (s *Service) ListPrevious(ctx context.Context, sess Session, req ListPreviousRequest) (*HistoryPage, error) {
	count := req.Count
	if count <= 0 {
		count = defaultPageSize
	}
	if count > maxPageSize {
		count = maxPageSize
	}
	if req.BeforeUUID != nil && req.BeforeTS != nil {
		return nil, ErrInvalidCursor
	}

	ch, err := s.requireChannel(ctx, sess, req.ChannelUUID)
	if err != nil {
		return nil, err
	}

	var (
		beforeID *uint64
		beforeTS *time.Time
	)
	if req.BeforeUUID != nil {
		anchor, err := s.store.FindMessageByUUID(ctx, *req.BeforeUUID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidCursor
			}
			return nil, err
		}
		if anchor.ChannelID != ch.ID {
			return nil, ErrInvalidCursor
		}
		beforeID = &anchor.ID
	} else if req.BeforeTS != nil {
		ts := time.UnixMilli(*req.BeforeTS)
		beforeTS = &ts
	}

	msgs, err := s.store.ListTopLevelBefore(ctx, ch.ID, count+1, beforeID, beforeTS)
	if err != nil {
		return nil, err
	}
	hasPrevious := len(msgs) > count
	if hasPrevious {
		msgs = msgs[:count]
	}

	// The store returns newest-first; the page goes out oldest-first.
	page := &HistoryPage{Messages: make([]model.MessageView, 0, len(msgs)), HasPrevious: hasPrevious}
	for i := len(msgs) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, *s.viewOf(ch.UUID, &msgs[i]))
	}
	return page, nil
}

type ListThreadRequest struct {
	ChannelUUID       string
	ParentMessageUUID string
}

// ListThread returns every reply under a parent in creation order.
func (s *Service) ListThread(ctx context.Context, sess Session, req ListThreadRequest) ([]model.MessageView, error) {
	ch, err := s.requireChannel(ctx, sess, req.ChannelUUID)
	if err != nil {
		return nil, err
	}
	parent, err := s.store.FindMessageByUUID(ctx, req.ParentMessageUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if parent.ChannelID != ch.ID {
		return nil, ErrMessageNotFound
	}

	replies, err := s.store.ListReplies(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	views := make([]model.MessageView, 0, len(replies))
	for i := range replies {
		v := s.viewOf(ch.UUID, &replies[i])
		parentUUID := parent.UUID
		v.ParentMessageUUID = &parentUUID
		views = append(views, *v)
	}
	return views, nil
}
