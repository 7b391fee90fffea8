package store

import (
	"github.com/mosaicchat/mosaic/pkg/model"
)

// DocumentFor flattens a canonical message into the search-index document
// shape. The index copy is derived data; this is the only place the
// flattening happens so the two stores cannot drift in shape.
func DocumentFor(appUUID string, ch *Channel, m *Message) model.Document {
	doc := model.Document{
		ID:              int64(m.ID),
		UUID:            m.UUID,
		ApplicationUUID: appUUID,
		ChannelUUID:     ch.UUID,
		ChannelName:     ch.Name,
		User:            m.User.Ref(),
		Message:         m.Body,
		MentionType:     m.MentionType,
		MentionedUsers:  []model.UserRef{},
		Attachments:     append([]model.Attachment{}, m.Attachments...),
		Reactions:       []model.ReactionView{},
		CreatedAt:       m.CreatedAt.UnixMilli(),
		UpdatedAt:       m.UpdatedAt.UnixMilli(),
	}
	for _, u := range m.MentionedUsers {
		doc.MentionedUsers = append(doc.MentionedUsers, u.Ref())
	}
	for _, r := range m.Reactions {
		doc.Reactions = append(doc.Reactions, model.ReactionView{
			Reaction:  r.Reaction,
			User:      r.User.Ref(),
			CreatedAt: r.CreatedAt.UnixMilli(),
		})
	}
	if m.ParentMessage != nil {
		parentUUID := m.ParentMessage.UUID
		doc.ParentMessageUUID = &parentUUID
	}
	if m.LinkPreview != nil {
		doc.OGTag = &model.OGTag{
			URL:         m.LinkPreview.URL,
			Title:       m.LinkPreview.Title,
			Description: m.LinkPreview.Description,
			Image:       m.LinkPreview.ImageLink,
			ImageWidth:  m.LinkPreview.ImageWidth,
			ImageHeight: m.LinkPreview.ImageHeight,
			ImageAlt:    m.LinkPreview.ImageAlt,
		}
	}
	return doc
}
