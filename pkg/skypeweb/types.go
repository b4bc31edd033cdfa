// Copyright 2024-2026 Aiku AI

// Package skypeweb implements a client for the Skype web API: credential
// login, resumable sessions, the REST messaging surface and the websocket
// event gateway.
package skypeweb

import (
	"time"
)

// Credentials is a username/password pair for the login endpoint.
type Credentials struct {
	Username string
	Password string
}

// Contact is a remote user profile.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Conversation is a remote chat. Direct chats have exactly one other member.
type Conversation struct {
	ID        string   `json:"id"`
	IsDirect  bool     `json:"is_direct"`
	Topic     string   `json:"topic,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	MemberIDs []string `json:"member_ids"`
}

// SendResponse carries both ids produced by a send: the client-generated
// correlation id and the id the server assigned to the message.
type SendResponse struct {
	ClientMessageID string `json:"clientmessageid"`
	ServerMessageID string `json:"id"`
}

// EventType tags events delivered on the client's event channel.
type EventType string

const (
	EventMessage     EventType = "message"
	EventMessageEdit EventType = "message_edit"
	EventFile        EventType = "file"
	EventTyping      EventType = "typing"
	EventPresence    EventType = "presence"
	EventError       EventType = "error"
)

// Event is one gateway notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type     EventType
	Message  *MessageResource
	File     *FileResource
	Typing   *TypingResource
	Presence *PresenceResource
	Err      error
}

// MessageResource is a text message notification. For edits, EditedID names
// the message being replaced; empty Content on an edit means the message was
// removed server-side.
type MessageResource struct {
	ID              string    `json:"id"`
	ClientMessageID string    `json:"clientmessageid,omitempty"`
	EditedID        string    `json:"skypeeditedid,omitempty"`
	ConversationID  string    `json:"conversationid"`
	SenderID        string    `json:"from"`
	MessageType     string    `json:"messagetype"`
	Content         string    `json:"content"`
	ComposeTime     time.Time `json:"composetime"`
}

// FileResource is a file/media transfer notification.
type FileResource struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationid"`
	SenderID       string    `json:"from"`
	URL            string    `json:"uri"`
	Filename       string    `json:"original_name"`
	ComposeTime    time.Time `json:"composetime"`
}

// TypingResource is a typing start/stop notification.
type TypingResource struct {
	ConversationID string `json:"conversationid"`
	SenderID       string `json:"from"`
	Active         bool   `json:"active"`
}

// PresenceResource is a contact presence change.
type PresenceResource struct {
	SenderID string `json:"from"`
	Status   string `json:"status"`
}
