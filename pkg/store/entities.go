package store

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mosaicchat/mosaic/pkg/model"
)

// Audit carries the who/when columns every row has.
type Audit struct {
	CreatedAt time.Time `gorm:"not null"`
	CreatedBy string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	UpdatedBy string    `gorm:"not null"`
}

// Application is one tenant. Its master token signs every session token
// issued for its users.
type Application struct {
	ID          uint64 `gorm:"primaryKey"`
	UUID        string `gorm:"type:uuid;uniqueIndex;not null"`
	Name        string `gorm:"not null"`
	MasterToken string `gorm:"not null"`
	Audit       `gorm:"embedded"`
}

type User struct {
	ID            uint64 `gorm:"primaryKey"`
	ApplicationID uint64 `gorm:"uniqueIndex:ux_users_app_username;not null"`
	Username      string `gorm:"uniqueIndex:ux_users_app_username;size:80;not null"`
	Nickname      string `gorm:"size:80;not null"`
	Audit         `gorm:"embedded"`
}

func (u User) Ref() model.UserRef {
	return model.UserRef{Username: u.Username, Nickname: u.Nickname}
}

type Channel struct {
	ID            uint64 `gorm:"primaryKey"`
	ApplicationID uint64 `gorm:"uniqueIndex:ux_channels_app_uuid;not null"`
	UUID          string `gorm:"type:uuid;uniqueIndex:ux_channels_app_uuid;not null"`
	Name          string `gorm:"not null"`
	Users         []User `gorm:"many2many:channel_users"`
	Audit         `gorm:"embedded"`
}

// LinkPreview is the scraped metadata for one URL. The unique index on url
// is what makes previews reusable: at most one live row per URL, shared by
// every message that mentions it.
type LinkPreview struct {
	ID          uint64 `gorm:"primaryKey"`
	URL         string `gorm:"uniqueIndex;size:2048;not null"`
	Title       string `gorm:"not null"`
	Description string
	ImageLink   string
	ImageWidth  int
	ImageHeight int
	ImageAlt    string
	Audit       `gorm:"embedded"`
}

// Message is the canonical record. The numeric ID is assigned here and
// nowhere else; the UUID is synthesized at the edge before the durable-log
// publish and is the idempotency key for redelivered creation events.
type Message struct {
	ID              uint64 `gorm:"primaryKey"`
	UUID            string `gorm:"type:uuid;uniqueIndex;not null"`
	ChannelID       uint64 `gorm:"index;not null"`
	Channel         Channel
	UserID          uint64 `gorm:"not null"`
	User            User
	Body            string `gorm:"column:message;not null"`
	ParentMessageID *uint64 `gorm:"index"`
	ParentMessage   *Message
	Replies         []Message  `gorm:"foreignKey:ParentMessageID"`
	Reactions       []Reaction `gorm:"foreignKey:MessageID"`
	MentionType     model.MentionType
	MentionedUsers  []User `gorm:"many2many:message_user_mentions"`
	LinkPreviewID   *uint64
	LinkPreview     *LinkPreview
	Attachments     datatypes.JSONSlice[model.Attachment]
	DeletedAt       gorm.DeletedAt `gorm:"index"`
	Audit           `gorm:"embedded"`
}

// Reaction rows are unique per (message, user, symbol); that triple is the
// natural key the toggle state machine runs on.
type Reaction struct {
	ID        uint64 `gorm:"primaryKey"`
	MessageID uint64 `gorm:"uniqueIndex:ux_reactions_natural;not null"`
	UserID    uint64 `gorm:"uniqueIndex:ux_reactions_natural;not null"`
	User      User
	Reaction  string `gorm:"uniqueIndex:ux_reactions_natural;size:30;not null"`
	Audit     `gorm:"embedded"`
}
