package store

import (
	"context"
)

// FindUser resolves a user by natural key within a tenant.
func (s *Store) FindUser(ctx context.Context, appUUID, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Joins("JOIN applications ON applications.id = users.application_id AND applications.uuid = ?", appUUID).
		Where("users.username = ?", username).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUsersByUsernames resolves the mentioned users of a message. Unknown
// usernames are silently skipped; a mention of a vanished user is not an
// error.
func (s *Store) FindUsersByUsernames(ctx context.Context, appUUID string, usernames []string) ([]User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	var users []User
	err := s.db.WithContext(ctx).
		Joins("JOIN applications ON applications.id = users.application_id AND applications.uuid = ?", appUUID).
		Where("users.username IN ?", usernames).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// FindChannel resolves a channel by UUID within a tenant.
func (s *Store) FindChannel(ctx context.Context, appUUID, channelUUID string) (*Channel, error) {
	var channel Channel
	err := s.db.WithContext(ctx).
		Joins("JOIN applications ON applications.id = channels.application_id AND applications.uuid = ?", appUUID).
		Where("channels.uuid = ?", channelUUID).
		First(&channel).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &channel, nil
}

// FindChannelWithMember resolves a channel by UUID within a tenant, but
// only if the named user is a member. A nil-free return is the membership
// predicate the producer and consumers gate on.
func (s *Store) FindChannelWithMember(ctx context.Context, appUUID, channelUUID, username string) (*Channel, error) {
	var channel Channel
	err := s.db.WithContext(ctx).
		Joins("JOIN applications ON applications.id = channels.application_id AND applications.uuid = ?", appUUID).
		Joins("JOIN channel_users ON channel_users.channel_id = channels.id").
		Joins("JOIN users ON users.id = channel_users.user_id AND users.username = ?", username).
		Where("channels.uuid = ?", channelUUID).
		First(&channel).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &channel, nil
}
