package model

// MentionType describes who a message calls out.
type MentionType string

const (
	MentionNone    MentionType = ""
	MentionChannel MentionType = "CHANNEL"
	MentionUsers   MentionType = "USERS"
)

// UserRef is the denormalized author shape carried in every payload.
type UserRef struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

// Attachment is the stored descriptor of an uploaded file. The raw file key
// never leaves the backend; clients only ever see signed download URLs.
type Attachment struct {
	BucketName       string `json:"bucket_name"`
	FileKey          string `json:"file_key"`
	OriginalFileName string `json:"original_file_name"`
	ContentType      string `json:"content_type"`
}

// AttachmentView is the client-facing shape of an attachment.
type AttachmentView struct {
	OriginalFileName  string `json:"original_file_name"`
	ContentType       string `json:"content_type"`
	DownloadSignedURL string `json:"download_signed_url"`
}

// AttachmentSigner issues a time-limited download URL for an attachment.
type AttachmentSigner func(a Attachment) string

// ReactionView is one live reaction on a message.
type ReactionView struct {
	Reaction  string  `json:"reaction"`
	User      UserRef `json:"user"`
	CreatedAt int64   `json:"created_at"`
}

// OGTag holds the scraped link-preview metadata attached to a message.
type OGTag struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	ImageAlt    string `json:"image_alt,omitempty"`
}

// ThreadInfo summarizes the replies under a parent message. It is computed
// at read time, never maintained incrementally.
type ThreadInfo struct {
	ReplyCount    int       `json:"reply_count"`
	MostReplies   []UserRef `json:"most_replies"`
	LastRepliedAt int64     `json:"last_replied_at"`
	UpdatedAt     int64     `json:"updated_at"`
}

// MessageView is the full denormalized message every server-initiated event
// and every ack carries. Clients treat views as idempotent replacements
// keyed by UUID; a later view for the same UUID supersedes an earlier one.
type MessageView struct {
	UUID              string           `json:"uuid"`
	Message           string           `json:"message"`
	User              UserRef          `json:"user"`
	MentionType       MentionType      `json:"mention_type,omitempty"`
	MentionedUsers    []UserRef        `json:"mentioned_users"`
	Attachments       []AttachmentView `json:"attachments"`
	ThreadInfo        *ThreadInfo      `json:"thread_info,omitempty"`
	OGTag             *OGTag           `json:"og_tag,omitempty"`
	ChannelUUID       string           `json:"channel_uuid"`
	ParentMessageUUID *string          `json:"parent_message_uuid,omitempty"`
	Reactions         []ReactionView   `json:"reactions"`
	CreatedAt         int64            `json:"created_at"`
	UpdatedAt         int64            `json:"updated_at"`
}

// ReactionsUpdate replaces the full reaction set of one message.
type ReactionsUpdate struct {
	MessageUUID string         `json:"message_uuid"`
	Reactions   []ReactionView `json:"reactions"`
}

// MessageDeleted announces a message removal.
type MessageDeleted struct {
	MessageUUID string `json:"message_uuid"`
}

// TypingRefresh replaces the set of users currently typing in a channel.
type TypingRefresh struct {
	ChannelUUID string    `json:"channel_uuid"`
	Users       []UserRef `json:"users"`
}
