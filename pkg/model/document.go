package model

// Document is the denormalized copy of a message held by the search index.
// It is derived data keyed by (application, channel, message UUID): the
// canonical store owns identity and uniqueness, the index only ever lags
// behind it.
type Document struct {
	ID                int64        `json:"id"`
	UUID              string       `json:"uuid"`
	ApplicationUUID   string       `json:"application_uuid"`
	ChannelUUID       string       `json:"channel_uuid"`
	ChannelName       string       `json:"channel_name"`
	User              UserRef      `json:"user"`
	Message           string       `json:"message"`
	MentionType       MentionType  `json:"mention_type,omitempty"`
	MentionedUsers    []UserRef    `json:"mentioned_users"`
	Attachments       []Attachment `json:"attachments"`
	Reactions         []ReactionView `json:"reactions"`
	ParentMessageUUID *string      `json:"parent_message_uuid,omitempty"`
	OGTag             *OGTag       `json:"og_tag,omitempty"`
	CreatedAt         int64        `json:"created_at"`
	UpdatedAt         int64        `json:"updated_at"`
	DeletedAt         *int64       `json:"deleted_at,omitempty"`
}

// View renders the client-facing shape of a document. Attachment file keys
// are swapped for signed download URLs; sign may be nil when no signer is
// configured.
func (d Document) View(sign AttachmentSigner) MessageView {
	atts := make([]AttachmentView, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		v := AttachmentView{
			OriginalFileName: a.OriginalFileName,
			ContentType:      a.ContentType,
		}
		if sign != nil {
			v.DownloadSignedURL = sign(a)
		}
		atts = append(atts, v)
	}
	mentioned := d.MentionedUsers
	if mentioned == nil {
		mentioned = []UserRef{}
	}
	reactions := d.Reactions
	if reactions == nil {
		reactions = []ReactionView{}
	}
	return MessageView{
		UUID:              d.UUID,
		Message:           d.Message,
		User:              d.User,
		MentionType:       d.MentionType,
		MentionedUsers:    mentioned,
		Attachments:       atts,
		OGTag:             d.OGTag,
		ChannelUUID:       d.ChannelUUID,
		ParentMessageUUID: d.ParentMessageUUID,
		Reactions:         reactions,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
