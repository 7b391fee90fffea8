package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// messagePreloads loads everything a full denormalized view needs.
func messagePreloads(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("User").
		Preload("Reactions").
		Preload("Reactions.User").
		Preload("LinkPreview").
		Preload("MentionedUsers").
		Preload("Replies").
		Preload("Replies.User").
		Preload("ParentMessage")
}

// FindMessageByUUID resolves a message by its idempotency key. Only the
// author is preloaded; this is the cheap lookup used for parent references
// and redelivery checks.
func (s *Store) FindMessageByUUID(ctx context.Context, uuid string) (*Message, error) {
	var msg Message
	err := s.db.WithContext(ctx).Preload("User").Where("uuid = ?", uuid).First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

// GetFullMessage loads one message with all relations, scoped to a tenant
// and channel.
func (s *Store) GetFullMessage(ctx context.Context, appUUID, channelUUID, messageUUID string) (*Message, error) {
	var msg Message
	err := messagePreloads(s.db.WithContext(ctx)).
		Joins("JOIN channels ON channels.id = messages.channel_id AND channels.uuid = ?", channelUUID).
		Joins("JOIN applications ON applications.id = channels.application_id AND applications.uuid = ?", appUUID).
		Where("messages.uuid = ?", messageUUID).
		First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

// CreateMessage inserts one message. The caller provides the UUID and the
// audit timestamps (creation time is the event time from the log, not the
// consume time); the store assigns the numeric key.
func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// ListTopLevelBefore fetches up to limit top-level messages of a channel
// strictly older than the cursor, newest first. Exactly one of beforeID /
// beforeTS may be set; with neither, the page starts at the latest message.
func (s *Store) ListTopLevelBefore(ctx context.Context, channelID uint64, limit int, beforeID *uint64, beforeTS *time.Time) ([]Message, error) {
	q := messagePreloads(s.db.WithContext(ctx)).
		Where("messages.channel_id = ?", channelID).
		Where("messages.parent_message_id IS NULL")
	if beforeID != nil {
		q = q.Where("messages.id < ?", *beforeID)
	} else if beforeTS != nil {
		q = q.Where("messages.created_at < ?", *beforeTS)
	}
	var msgs []Message
	err := q.Order("messages.id DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListReplies returns the replies of a parent in creation order.
func (s *Store) ListReplies(ctx context.Context, parentID uint64) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Reactions").
		Preload("Reactions.User").
		Where("parent_message_id = ?", parentID).
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessageBody rewrites the body of a message and stamps the updater.
func (s *Store) UpdateMessageBody(ctx context.Context, id uint64, body, updatedBy string) error {
	return s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"message":    body,
			"updated_at": time.Now().UTC(),
			"updated_by": updatedBy,
		}).Error
}

// DeleteMessage soft-deletes one message and removes its reactions in a
// single transaction. The row stays behind its deleted_at stamp so the
// uuid can never be reused by a replayed creation event.
func (s *Store) DeleteMessage(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Message{}).Error
	})
}

// MessageUUIDExists reports whether a message row, live or soft-deleted,
// already claimed the uuid. Redelivery checks use this so a deleted
// message does not resurrect.
func (s *Store) MessageUUIDExists(ctx context.Context, uuid string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Unscoped().Model(&Message{}).
		Where("uuid = ?", uuid).Count(&n).Error
	return n > 0, err
}
