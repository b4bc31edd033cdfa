// Copyright 2024-2026 Aiku AI

package connector

import (
	"time"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// EventKind tags the session event sum type. Every remote notification is
// translated into exactly one of these and handed to the per-account
// dispatch function in arrival order.
type EventKind int

const (
	EventText EventKind = iota
	EventFile
	EventEdit
	EventTyping
	EventPresence
	EventContactUpdate
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventFile:
		return "file"
	case EventEdit:
		return "edit"
	case EventTyping:
		return "typing"
	case EventPresence:
		return "presence"
	case EventContactUpdate:
		return "update_contact"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionEvent is one typed event from a RemoteSession. The payload field
// matching Kind is set; all others are nil.
type SessionEvent struct {
	Kind          EventKind
	Text          *TextEvent
	File          *FileEvent
	Edit          *EditEvent
	Typing        *TypingEvent
	Presence      *PresenceEvent
	ContactUpdate *ContactUpdateEvent
	Err           error
}

// TextEvent is an incoming rich-text message.
type TextEvent struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
}

// FileEvent is an incoming file or media transfer.
type FileEvent struct {
	MessageID      string
	ConversationID string
	SenderID       string
	URL            string
	Filename       string
	Timestamp      time.Time
}

// EditEvent is a replacement (or, with empty content, a removal) of an
// earlier message.
type EditEvent struct {
	MessageID      string
	TargetID       string
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
}

// TypingEvent is a typing start/stop notification.
type TypingEvent struct {
	ConversationID string
	SenderID       string
	Active         bool
}

// PresenceEvent is a contact presence change.
type PresenceEvent struct {
	SenderID string
	Status   string
}

// ContactUpdateEvent carries both snapshots of a contact that changed
// during a background refresh, so the consumer can decide whether the
// change is user-visible. Old is nil for contacts seen for the first time.
type ContactUpdateEvent struct {
	Old *skypeweb.Contact
	New *skypeweb.Contact
}
