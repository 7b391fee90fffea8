package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// AttachPreview links a message to the preview for a URL inside a single
// transaction. An existing preview row for the same URL is reused, never
// duplicated; only on first sight of the URL is the freshly scraped row
// inserted. Returns ErrNotFound if the target message no longer exists;
// the caller treats that as a terminal job failure.
func (s *Store) AttachPreview(ctx context.Context, messageUUID string, fresh *LinkPreview) (*LinkPreview, error) {
	var resolved *LinkPreview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LinkPreview
		err := tx.Where("url = ?", fresh.URL).First(&existing).Error
		switch {
		case err == nil:
			resolved = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(fresh).Error; err != nil {
				return err
			}
			resolved = fresh
		default:
			return err
		}

		var msg Message
		if err := tx.Where("uuid = ?", messageUUID).First(&msg).Error; err != nil {
			return notFound(err)
		}
		return tx.Model(&msg).Update("link_preview_id", resolved.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
