package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mosaicchat/mosaic/pkg/model"
)

type loginResponse struct {
	Token string `json:"token"`
}

func login(baseURL, appUUID, username string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"application_uuid": appUUID,
		"username":         username,
	})
	resp, err := http.Post(baseURL+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.Token, nil
}

type request struct {
	Op   string      `json:"op"`
	ID   string      `json:"id"`
	Data interface{} `json:"data"`
}

type serverFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Event   string          `json:"event,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway address")
	appUUID := flag.String("app", "11111111-1111-1111-1111-111111111111", "application uuid")
	username := flag.String("user", "alice", "username")
	channelUUID := flag.String("channel", "22222222-2222-2222-2222-222222222222", "channel uuid")
	flag.Parse()

	log.Printf("logging in as %s...", *username)
	token, err := login("http://"+*serverAddr, *appUUID, *username)
	if err != nil {
		log.Fatal("login: ", err)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial: ", err)
	}
	defer c.Close()

	seq := 0
	send := func(op string, data interface{}) {
		seq++
		frame, _ := json.Marshal(request{Op: op, ID: fmt.Sprintf("req-%d", seq), Data: data})
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Println("write: ", err)
		}
	}

	send("channel:join", map[string]string{"channel_uuid": *channelUUID})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read: ", err)
				return
			}
			var frame serverFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				fmt.Printf("\rraw: %s\n> ", raw)
				continue
			}
			switch frame.Type {
			case "ack":
				if frame.OK {
					fmt.Printf("\r[%s ok] %s\n> ", frame.ID, frame.Data)
				} else {
					fmt.Printf("\r[%s %s] %s\n> ", frame.ID, frame.Error, frame.Message)
				}
			case "event":
				renderEvent(frame)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			switch {
			case text == "":
			case text == "/quit":
				close(interrupt)
				return
			case text == "/history":
				send("message:load-previous", map[string]interface{}{
					"channel_uuid": *channelUUID, "count": 20,
				})
			case text == "/typing":
				send("typing:start", map[string]string{"channel_uuid": *channelUUID})
			case strings.HasPrefix(text, "/search "):
				send("message:search", map[string]interface{}{
					"channel_uuid": *channelUUID,
					"term":         strings.TrimPrefix(text, "/search "),
				})
			case strings.HasPrefix(text, "/react "):
				// /react <message-uuid> <symbol>
				parts := strings.Fields(text)
				if len(parts) == 3 {
					send("reaction:toggle", map[string]string{
						"channel_uuid": *channelUUID,
						"message_uuid": parts[1],
						"reaction":     parts[2],
						"op":           "add",
					})
				}
			default:
				send("message:create", map[string]string{
					"channel_uuid": *channelUUID,
					"message":      text,
				})
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			err := c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

func renderEvent(frame serverFrame) {
	switch frame.Event {
	case model.EventMessageNew, model.EventMessageUpdated:
		var view model.MessageView
		if err := json.Unmarshal(frame.Payload, &view); err == nil {
			fmt.Printf("\r%s: %s  (%s)\n> ", view.User.Username, view.Message, view.UUID)
			return
		}
	case model.EventReactionsUpdated:
		var upd model.ReactionsUpdate
		if err := json.Unmarshal(frame.Payload, &upd); err == nil {
			fmt.Printf("\rreactions on %s: %d\n> ", upd.MessageUUID, len(upd.Reactions))
			return
		}
	case model.EventTypingRefresh:
		var tr model.TypingRefresh
		if err := json.Unmarshal(frame.Payload, &tr); err == nil && len(tr.Users) > 0 {
			fmt.Printf("\r%s typing...\n> ", tr.Users[0].Username)
			return
		}
	case model.EventMessageDeleted:
		var del model.MessageDeleted
		if err := json.Unmarshal(frame.Payload, &del); err == nil {
			fmt.Printf("\rmessage %s deleted\n> ", del.MessageUUID)
			return
		}
	}
	fmt.Printf("\r[%s] %s\n> ", frame.Event, frame.Payload)
}
