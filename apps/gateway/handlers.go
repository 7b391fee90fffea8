package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mosaicchat/mosaic/pkg/auth"
	"github.com/mosaicchat/mosaic/pkg/blob"
	"github.com/mosaicchat/mosaic/pkg/chat"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// app wires the gateway's request surface to the chat engine.
type app struct {
	hub   *Hub
	svc   *chat.Service
	store *store.Store
	blobs *blob.FSStore
}

// request is one client frame: an operation, a correlation id the ack
// echoes back, and an op-specific payload.
type request struct {
	Op   string          `json:"op"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type ack struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func okAck(id string, data interface{}) ack {
	return ack{Type: "ack", ID: id, OK: true, Data: data}
}

func nack(id, code, message string) ack {
	return ack{Type: "ack", ID: id, OK: false, Error: code, Message: message}
}

// errAck maps engine errors onto wire error codes. Unrecognized errors
// surface as internal without leaking detail.
func errAck(id string, err error) ack {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return nack(id, "empty_message", err.Error())
	case errors.Is(err, chat.ErrUserNotFound):
		return nack(id, "user_not_found", err.Error())
	case errors.Is(err, chat.ErrChannelNotFound):
		return nack(id, "channel_not_found", err.Error())
	case errors.Is(err, chat.ErrMessageNotFound):
		return nack(id, "message_not_found", err.Error())
	case errors.Is(err, chat.ErrInvalidCursor):
		return nack(id, "invalid_cursor", err.Error())
	case errors.Is(err, chat.ErrInvalidReactionOp):
		return nack(id, "invalid_reaction_op", err.Error())
	default:
		logger.Log.Error("request failed", "err", err)
		return nack(id, "internal", "internal error")
	}
}

type channelPayload struct {
	ChannelUUID string `json:"channel_uuid"`
}

type createMessagePayload struct {
	ChannelUUID        string             `json:"channel_uuid"`
	Message            string             `json:"message"`
	ParentMessageUUID  *string            `json:"parent_message_uuid,omitempty"`
	MentionType        model.MentionType  `json:"mention_type,omitempty"`
	MentionedUsernames []string           `json:"mentioned_usernames,omitempty"`
	Attachments        []model.Attachment `json:"attachments,omitempty"`
}

type loadPreviousPayload struct {
	ChannelUUID string  `json:"channel_uuid"`
	Count       int     `json:"count"`
	BeforeUUID  *string `json:"before_uuid,omitempty"`
	BeforeTS    *int64  `json:"before_ts,omitempty"`
}

type threadPayload struct {
	ChannelUUID       string `json:"channel_uuid"`
	ParentMessageUUID string `json:"parent_message_uuid"`
}

type messagePayload struct {
	ChannelUUID string `json:"channel_uuid"`
	MessageUUID string `json:"message_uuid"`
}

type editPayload struct {
	ChannelUUID string `json:"channel_uuid"`
	MessageUUID string `json:"message_uuid"`
	Message     string `json:"message"`
}

type searchPayload struct {
	ChannelUUID string `json:"channel_uuid"`
	Term        string `json:"term"`
	Limit       int    `json:"limit"`
}

type reactionPayload struct {
	ChannelUUID string `json:"channel_uuid"`
	MessageUUID string `json:"message_uuid"`
	Reaction    string `json:"reaction"`
	Op          string `json:"op"`
}

func decode(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, into)
}

func (a *app) dispatch(ctx context.Context, c *Client, req request) ack {
	switch req.Op {
	case "channel:join":
		var p channelPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		if err := a.svc.VerifyMembership(ctx, c.sess, p.ChannelUUID); err != nil {
			return errAck(req.ID, err)
		}
		a.hub.Join(c, p.ChannelUUID)
		return okAck(req.ID, nil)

	case "channel:leave":
		var p channelPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		a.hub.Leave(c, p.ChannelUUID)
		return okAck(req.ID, nil)

	case "message:create":
		var p createMessagePayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		view, err := a.svc.Submit(ctx, c.sess, chat.CreateMessageRequest{
			ChannelUUID:        p.ChannelUUID,
			Message:            p.Message,
			ParentMessageUUID:  p.ParentMessageUUID,
			MentionType:        p.MentionType,
			MentionedUsernames: p.MentionedUsernames,
			Attachments:        p.Attachments,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, view)

	case "message:load-previous":
		var p loadPreviousPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		page, err := a.svc.ListPrevious(ctx, c.sess, chat.ListPreviousRequest{
			ChannelUUID: p.ChannelUUID,
			Count:       p.Count,
			BeforeUUID:  p.BeforeUUID,
			BeforeTS:    p.BeforeTS,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, page)

	case "message:list-thread":
		var p threadPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		views, err := a.svc.ListThread(ctx, c.sess, chat.ListThreadRequest{
			ChannelUUID:       p.ChannelUUID,
			ParentMessageUUID: p.ParentMessageUUID,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, views)

	case "message:get":
		var p messagePayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		view, err := a.svc.GetMessage(ctx, c.sess, chat.GetMessageRequest{
			ChannelUUID: p.ChannelUUID,
			MessageUUID: p.MessageUUID,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, view)

	case "message:search":
		var p searchPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		views, err := a.svc.Search(ctx, c.sess, chat.SearchRequest{
			ChannelUUID: p.ChannelUUID,
			Term:        p.Term,
			Limit:       p.Limit,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, views)

	case "message:edit":
		var p editPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		view, err := a.svc.EditMessage(ctx, c.sess, chat.EditMessageRequest{
			ChannelUUID: p.ChannelUUID,
			MessageUUID: p.MessageUUID,
			Message:     p.Message,
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, view)

	case "message:delete":
		var p messagePayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		if err := a.svc.DeleteMessage(ctx, c.sess, chat.DeleteMessageRequest{
			ChannelUUID: p.ChannelUUID,
			MessageUUID: p.MessageUUID,
		}); err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, nil)

	case "reaction:toggle":
		var p reactionPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		set, err := a.svc.ToggleReaction(ctx, c.sess, chat.ToggleReactionRequest{
			ChannelUUID: p.ChannelUUID,
			MessageUUID: p.MessageUUID,
			Reaction:    p.Reaction,
			Op:          chat.ReactionOp(p.Op),
		})
		if err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, model.ReactionsUpdate{MessageUUID: p.MessageUUID, Reactions: set})

	case "typing:start":
		var p channelPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		if err := a.svc.TypingStart(ctx, c.sess, p.ChannelUUID); err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, nil)

	case "typing:stop":
		var p channelPayload
		if err := decode(req.Data, &p); err != nil {
			return nack(req.ID, "bad_request", err.Error())
		}
		if err := a.svc.TypingStop(ctx, c.sess, p.ChannelUUID); err != nil {
			return errAck(req.ID, err)
		}
		return okAck(req.ID, nil)

	default:
		return nack(req.ID, "unknown_op", "unknown operation "+req.Op)
	}
}

const sessionTTL = 24 * time.Hour

// handleLogin issues a session token for a known user of a known
// application. Dev convenience; production token issuance belongs to the
// tenant's own backend holding the master token.
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ApplicationUUID string `json:"application_uuid"`
		Username        string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	secret, err := a.store.MasterToken(r.Context(), body.ApplicationUUID)
	if err != nil {
		http.Error(w, "unknown application", http.StatusUnauthorized)
		return
	}
	if _, err := a.store.FindUser(r.Context(), body.ApplicationUUID, body.Username); err != nil {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	token, err := auth.Issue(secret, body.Username, body.ApplicationUUID, sessionTTL)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// handleFiles serves blob downloads. Attachment keys need the HMAC
// signature minted by SignDownloadURL; link-preview images are public and
// their stored references carry no signature, so that prefix is exempt.
func (a *app) handleFiles(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/files/")
	q := r.URL.Query()
	if !strings.HasPrefix(key, blob.PreviewKeyPrefix) {
		exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
		if err != nil || !a.blobs.VerifyDownloadURL(key, q.Get("name"), exp, q.Get("sig")) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	data, err := a.blobs.Open(key)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if name := q.Get("name"); name != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	w.Write(data)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
