// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// HomeNetwork is the bridging framework the relay drives. It owns the home
// protocol, room/ghost bookkeeping and storage; the relay only calls it.
// senderID is always a remote-network user id; the framework maps it to the
// corresponding ghost identity.
type HomeNetwork interface {
	SendMessage(ctx context.Context, accountID, roomSpec, senderID string, content *event.MessageEventContent) (id.EventID, error)
	SendEdit(ctx context.Context, accountID, roomSpec, senderID string, target id.EventID, content *event.MessageEventContent) (id.EventID, error)
	SendRedact(ctx context.Context, accountID, roomSpec, senderID string, target id.EventID) error
	SendReadReceipt(ctx context.Context, accountID, roomSpec, senderID string) error
	SetUserTyping(ctx context.Context, accountID, roomSpec, senderID string, typing bool) error
	// SendFileDetect uploads raw bytes, detects the message type from the
	// content and sends the resulting file message.
	SendFileDetect(ctx context.Context, accountID, roomSpec, senderID string, data []byte, filename string) (id.EventID, error)
	// SendStatusMessage posts a user-visible notice in the account's
	// management context. Never returns an error; failures are the
	// framework's problem.
	SendStatusMessage(ctx context.Context, accountID, message string)
	// SetUserID records the account's own remote identity once known.
	SetUserID(ctx context.Context, accountID, remoteUserID string)
	// SetPuppetData persists the (possibly refreshed) account record.
	SetPuppetData(ctx context.Context, accountID string, account *AccountConfig)
	// UpdateGhostProfile pushes a changed contact name/avatar to the
	// ghost identity.
	UpdateGhostProfile(ctx context.Context, accountID, remoteUserID, displayName, avatarURL string)
}

// EventStore correlates home event ids with remote message ids, in both
// directions. One home event may map to one remote message; one remote
// message may have produced several home events.
type EventStore interface {
	Insert(accountID string, homeID id.EventID, remoteID string)
	GetRemote(accountID string, homeID id.EventID) (string, bool)
	GetHome(accountID, remoteID string) ([]id.EventID, bool)
}

// RemoteClient is the remote network client a session drives. skypeweb
// provides the production implementation; tests inject fakes.
type RemoteClient interface {
	Connect(ctx context.Context, creds *skypeweb.Credentials, state []byte) error
	Listen(ctx context.Context) error
	StopListening()
	Events() <-chan skypeweb.Event
	SelfID() string
	GetState() []byte
	SetStatus(ctx context.Context, status string) error
	GetContact(ctx context.Context, id string) (*skypeweb.Contact, error)
	GetContacts(ctx context.Context, diffOnly bool) ([]*skypeweb.Contact, error)
	GetConversation(ctx context.Context, id string) (*skypeweb.Conversation, error)
	SendMessage(ctx context.Context, convID, content string) (*skypeweb.SendResponse, error)
	SendEdit(ctx context.Context, convID, msgID, content string) (*skypeweb.SendResponse, error)
	SendDelete(ctx context.Context, convID, msgID string) error
	SendImage(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error)
	SendAudio(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error)
	SendDocument(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error)
	AuthorizedFetch(ctx context.Context, url string) ([]byte, error)
}

var _ RemoteClient = (*skypeweb.Client)(nil)

// RemoteClientFactory builds the remote client for one account.
type RemoteClientFactory func(account *AccountConfig) RemoteClient
