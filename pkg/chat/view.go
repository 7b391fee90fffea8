package chat

import (
	"sort"

	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

const topRepliersLimit = 5

// viewOf renders the full client-facing shape of a canonical message,
// thread summary included.
func (s *Service) viewOf(channelUUID string, m *store.Message) *model.MessageView {
	view := &model.MessageView{
		UUID:           m.UUID,
		Message:        m.Body,
		User:           m.User.Ref(),
		MentionType:    m.MentionType,
		MentionedUsers: []model.UserRef{},
		Attachments:    s.signAttachments(m.Attachments),
		ChannelUUID:    channelUUID,
		Reactions:      reactionViews(m.Reactions),
		CreatedAt:      m.CreatedAt.UnixMilli(),
		UpdatedAt:      m.UpdatedAt.UnixMilli(),
	}
	for _, u := range m.MentionedUsers {
		view.MentionedUsers = append(view.MentionedUsers, u.Ref())
	}
	if m.ParentMessage != nil {
		parentUUID := m.ParentMessage.UUID
		view.ParentMessageUUID = &parentUUID
	}
	if m.LinkPreview != nil {
		view.OGTag = &model.OGTag{
			URL:         m.LinkPreview.URL,
			Title:       m.LinkPreview.Title,
			Description: m.LinkPreview.Description,
			Image:       m.LinkPreview.ImageLink,
			ImageWidth:  m.LinkPreview.ImageWidth,
			ImageHeight: m.LinkPreview.ImageHeight,
			ImageAlt:    m.LinkPreview.ImageAlt,
		}
	}
	view.ThreadInfo = aggregateThread(m.Replies, m.UpdatedAt.UnixMilli())
	return view
}

func (s *Service) signAttachments(atts []model.Attachment) []model.AttachmentView {
	views := make([]model.AttachmentView, 0, len(atts))
	for _, a := range atts {
		v := model.AttachmentView{
			OriginalFileName: a.OriginalFileName,
			ContentType:      a.ContentType,
		}
		if s.sign != nil {
			v.DownloadSignedURL = s.sign(a)
		}
		views = append(views, v)
	}
	return views
}

func reactionViews(rs []store.Reaction) []model.ReactionView {
	views := make([]model.ReactionView, 0, len(rs))
	for _, r := range rs {
		views = append(views, model.ReactionView{
			Reaction:  r.Reaction,
			User:      r.User.Ref(),
			CreatedAt: r.CreatedAt.UnixMilli(),
		})
	}
	return views
}

// aggregateThread computes the reply summary at read time: total count,
// the top repliers by reply count (ties broken by first appearance in the
// thread) and the timestamp of the newest reply. Nil when there are no
// replies.
func aggregateThread(replies []store.Message, parentUpdatedAt int64) *model.ThreadInfo {
	if len(replies) == 0 {
		return nil
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].ID < replies[j].ID })

	type replier struct {
		user  model.UserRef
		count int
	}
	byUser := map[string]int{}
	var repliers []replier
	for _, r := range replies {
		if i, ok := byUser[r.User.Username]; ok {
			repliers[i].count++
			continue
		}
		byUser[r.User.Username] = len(repliers)
		repliers = append(repliers, replier{user: r.User.Ref(), count: 1})
	}
	sort.SliceStable(repliers, func(i, j int) bool { return repliers[i].count > repliers[j].count })
	if len(repliers) > topRepliersLimit {
		repliers = repliers[:topRepliersLimit]
	}

	top := make([]model.UserRef, 0, len(repliers))
	for _, r := range repliers {
		top = append(top, r.user)
	}
	return &model.ThreadInfo{
		ReplyCount:    len(replies),
		MostReplies:   top,
		LastRepliedAt: replies[len(replies)-1].CreatedAt.UnixMilli(),
		UpdatedAt:     parentUpdatedAt,
	}
}
