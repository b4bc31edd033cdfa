// Copyright 2024-2026 Aiku AI

package skypeweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/coder/websocket"
)

// wireFrame is one gateway notification as sent on the websocket.
type wireFrame struct {
	ResourceType string          `json:"resourceType"`
	Resource     json.RawMessage `json:"resource"`
}

// Listen opens the websocket gateway subscription and starts delivering
// notifications on Events(). Calling it while already listening is a no-op.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}
	token := c.session.RegistrationToken
	c.mu.Unlock()

	header := http.Header{}
	header.Set("RegistrationToken", token)
	conn, _, err := websocket.Dial(ctx, c.gatewayURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to dial event gateway: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	stop := make(chan struct{})
	c.mu.Lock()
	c.listening = true
	c.stopChan = stop
	c.mu.Unlock()

	go c.readLoop(ctx, conn, stop)
	c.log.Debug().Str("gateway", c.gatewayURL).Msg("Event gateway subscribed")
	return nil
}

// StopListening tears down the gateway subscription. Idempotent.
func (c *Client) StopListening() {
	c.mu.Lock()
	c.listening = false
	stop := c.stopChan
	c.stopChan = nil
	c.mu.Unlock()
	// stop is closed even when the read loop already died: it may still be
	// parked on an undelivered error event.
	if stop != nil {
		close(stop)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Close the connection when asked to stop so the blocked Read returns.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			c.mu.Lock()
			c.listening = false
			c.mu.Unlock()
			// Nobody drains the channel after StopListening.
			select {
			case c.events <- Event{Type: EventError, Err: classifyStreamError(err)}:
			case <-stop:
			}
			return
		}
		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("Failed to parse gateway frame")
			continue
		}
		evt := parseWireFrame(&frame)
		if evt == nil {
			continue
		}
		select {
		case c.events <- *evt:
		case <-stop:
			return
		}
	}
}

// classifyStreamError converts a websocket read failure into the bridge's
// error taxonomy. Protocol-level close codes are fatal, everything else is
// treated as a transient network hiccup.
func classifyStreamError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusProtocolError, websocket.StatusUnsupportedData, websocket.StatusPolicyViolation:
		return &FatalProtocolError{Reason: err.Error()}
	case websocket.StatusNormalClosure:
		return fmt.Errorf("gateway closed the stream: %w", err)
	default:
		return fmt.Errorf("gateway stream failed: %w", err)
	}
}

var (
	uriAttrRe  = regexp.MustCompile(`uri="([^"]+)"`)
	nameAttrRe = regexp.MustCompile(`original_name="([^"]+)"`)
)

// ParseURIObject extracts the download URL and original filename from a
// URIObject payload embedded in message content. Stickers and some media
// arrive this way inside plain text notifications.
func ParseURIObject(content string) (url, filename string, ok bool) {
	if !strings.Contains(content, "<URIObject") {
		return "", "", false
	}
	return firstSubmatch(uriAttrRe, content), firstSubmatch(nameAttrRe, content), true
}

// parseWireFrame maps a raw gateway frame to a typed Event. Unknown resource
// and message types return nil and are skipped.
func parseWireFrame(frame *wireFrame) *Event {
	switch frame.ResourceType {
	case "NewMessage", "MessageUpdate":
		var msg MessageResource
		if err := json.Unmarshal(frame.Resource, &msg); err != nil {
			return nil
		}
		msg.SenderID = NormalizeUserID(msg.SenderID)
		switch msg.MessageType {
		case "Control/Typing":
			return &Event{Type: EventTyping, Typing: &TypingResource{
				ConversationID: msg.ConversationID,
				SenderID:       msg.SenderID,
				Active:         true,
			}}
		case "Control/ClearTyping":
			return &Event{Type: EventTyping, Typing: &TypingResource{
				ConversationID: msg.ConversationID,
				SenderID:       msg.SenderID,
				Active:         false,
			}}
		case "RichText/UriObject":
			return &Event{Type: EventFile, File: &FileResource{
				ID:             msg.ID,
				ConversationID: msg.ConversationID,
				SenderID:       msg.SenderID,
				URL:            firstSubmatch(uriAttrRe, msg.Content),
				Filename:       firstSubmatch(nameAttrRe, msg.Content),
				ComposeTime:    msg.ComposeTime,
			}}
		case "RichText", "Text", "":
			if frame.ResourceType == "MessageUpdate" && msg.EditedID == "" {
				msg.EditedID = msg.ID
			}
			if msg.EditedID != "" {
				return &Event{Type: EventMessageEdit, Message: &msg}
			}
			return &Event{Type: EventMessage, Message: &msg}
		default:
			return nil
		}
	case "UserPresence":
		var p PresenceResource
		if err := json.Unmarshal(frame.Resource, &p); err != nil {
			return nil
		}
		p.SenderID = NormalizeUserID(p.SenderID)
		return &Event{Type: EventPresence, Presence: &p}
	default:
		return nil
	}
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) >= 2 {
		return m[1]
	}
	return ""
}
