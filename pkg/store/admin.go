package store

import (
	"context"
)

// Provisioning helpers for tenants, users and channels. The ingestion
// path never writes these tables; they exist for seeding and for the
// tenant-facing admin tooling.

// EnsureApplication creates the application if its uuid is new.
func (s *Store) EnsureApplication(ctx context.Context, app *Application) error {
	return s.db.WithContext(ctx).
		Where(Application{UUID: app.UUID}).
		FirstOrCreate(app).Error
}

// EnsureUser creates the user if (application, username) is new.
func (s *Store) EnsureUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).
		Where(User{ApplicationID: u.ApplicationID, Username: u.Username}).
		FirstOrCreate(u).Error
}

// EnsureChannel creates the channel if (application, uuid) is new and
// replaces its member set with the one given.
func (s *Store) EnsureChannel(ctx context.Context, ch *Channel) error {
	members := ch.Users
	ch.Users = nil
	err := s.db.WithContext(ctx).
		Where(Channel{ApplicationID: ch.ApplicationID, UUID: ch.UUID}).
		FirstOrCreate(ch).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(ch).Association("Users").Replace(members)
}
