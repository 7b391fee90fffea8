package store

import (
	"context"
	"time"
)

// FindReaction looks up a reaction by its natural key.
func (s *Store) FindReaction(ctx context.Context, messageID, userID uint64, symbol string) (*Reaction, error) {
	var r Reaction
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND reaction = ?", messageID, userID, symbol).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) CreateReaction(ctx context.Context, r *Reaction) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// TouchReaction refreshes the updater and timestamp of an existing
// reaction; adding a reaction that is already present is a no-op state
// change but not a silent one.
func (s *Store) TouchReaction(ctx context.Context, id uint64, updatedBy string) error {
	return s.db.WithContext(ctx).Model(&Reaction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"updated_at": time.Now().UTC(),
			"updated_by": updatedBy,
		}).Error
}

func (s *Store) DeleteReaction(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&Reaction{}).Error
}

// ListReactions returns the full live reaction set of a message, with
// reactor identities, in insertion order.
func (s *Store) ListReactions(ctx context.Context, messageID uint64) ([]Reaction, error) {
	var rs []Reaction
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&rs).Error
	if err != nil {
		return nil, err
	}
	return rs, nil
}
