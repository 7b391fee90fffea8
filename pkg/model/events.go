package model

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion is stamped into every log payload. Consumers reject
// payloads carrying any other version instead of guessing at their shape.
const SchemaVersion = 1

// Log topics. chat-message-save is keyed by channel UUID so that one
// channel always lands on one partition; that keying is what turns the
// log's per-partition ordering into per-channel persistence order.
const (
	TopicSave    = "chat-message-save"
	TopicPreview = "chat-message-link-preview"
	TopicEvents  = "chat-events"
)

// Server-initiated event names carried on the chat-events topic and
// delivered to channel subscribers.
const (
	EventMessageNew       = "message:new"
	EventMessageUpdated   = "message:updated"
	EventMessageDeleted   = "message:deleted"
	EventReactionsUpdated = "message:update-reactions"
	EventTypingRefresh    = "message:typing-users-refresh"
)

// SaveEvent is the message-creation record published by the edge and
// consumed by the persistence worker.
type SaveEvent struct {
	V                  int          `json:"v"`
	UUID               string       `json:"uuid"`
	ApplicationUUID    string       `json:"application_uuid"`
	ChannelUUID        string       `json:"channel_uuid"`
	Username           string       `json:"username"`
	Nickname           string       `json:"nickname"`
	Message            string       `json:"message"`
	ParentMessageUUID  *string      `json:"parent_message_uuid,omitempty"`
	MentionType        MentionType  `json:"mention_type,omitempty"`
	MentionedUsernames []string     `json:"mentioned_usernames"`
	Attachments        []Attachment `json:"attachments"`
	CreatedAt          int64        `json:"created_at"`
}

func (e SaveEvent) Validate() error {
	if e.V != SchemaVersion {
		return fmt.Errorf("save event: unsupported schema version %d", e.V)
	}
	if e.UUID == "" || e.ApplicationUUID == "" || e.ChannelUUID == "" || e.Username == "" {
		return fmt.Errorf("save event: missing identity fields")
	}
	if e.Message == "" {
		return fmt.Errorf("save event: empty message body")
	}
	if e.CreatedAt <= 0 {
		return fmt.Errorf("save event: missing created_at")
	}
	return nil
}

// PreviewJob asks the enrichment worker to resolve a link preview for one
// message. Keyed by message UUID on the log.
type PreviewJob struct {
	V               int    `json:"v"`
	ApplicationUUID string `json:"application_uuid"`
	ChannelUUID     string `json:"channel_uuid"`
	MessageUUID     string `json:"message_uuid"`
	Link            string `json:"link"`
}

func (j PreviewJob) Validate() error {
	if j.V != SchemaVersion {
		return fmt.Errorf("preview job: unsupported schema version %d", j.V)
	}
	if j.ApplicationUUID == "" || j.ChannelUUID == "" || j.MessageUUID == "" || j.Link == "" {
		return fmt.Errorf("preview job: missing fields")
	}
	return nil
}

// Event is the fanout envelope every gateway instance consumes and routes
// to its local channel subscribers.
type Event struct {
	V               int             `json:"v"`
	ApplicationUUID string          `json:"application_uuid"`
	ChannelUUID     string          `json:"channel_uuid"`
	Event           string          `json:"event"`
	Payload         json.RawMessage `json:"payload"`
}

func (e Event) Validate() error {
	if e.V != SchemaVersion {
		return fmt.Errorf("event: unsupported schema version %d", e.V)
	}
	if e.ApplicationUUID == "" || e.ChannelUUID == "" || e.Event == "" {
		return fmt.Errorf("event: missing routing fields")
	}
	return nil
}
