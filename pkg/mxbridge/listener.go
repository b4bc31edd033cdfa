// Copyright 2024-2026 Aiku AI

package mxbridge

import (
	"context"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/connector"
)

// EventSink is the connector surface the Matrix listener drives.
type EventSink interface {
	HandleMatrixMessage(ctx context.Context, msg *connector.MatrixMessage) (string, error)
	HandleMatrixEdit(ctx context.Context, edit *connector.MatrixEdit) error
	HandleMatrixRedact(ctx context.Context, redact *connector.MatrixRedact) error
	HandleMatrixFile(ctx context.Context, file *connector.MatrixFileMessage) error
	LinkAccount(ctx context.Context, account *connector.AccountConfig) error
	UnlinkAccount(accountID string)
	ListUsers(ctx context.Context, accountID string) ([]*connector.UserInfo, error)
}

// AttachEventProcessor registers the bridge's Matrix event handlers.
func (br *Bridge) AttachEventProcessor(ep *appservice.EventProcessor, sink EventSink) {
	ep.On(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		br.handleMessage(ctx, sink, evt)
	})
	ep.On(event.EventRedaction, func(ctx context.Context, evt *event.Event) {
		br.handleRedaction(ctx, sink, evt)
	})
	ep.On(event.StateMember, func(ctx context.Context, evt *event.Event) {
		br.handleMembership(ctx, evt)
	})
}

// isOwnUser reports whether an mxid belongs to the bridge itself: the bot
// or any ghost.
func (br *Bridge) isOwnUser(userID id.UserID) bool {
	if userID == br.as.BotMXID() {
		return true
	}
	localpart, _, err := userID.Parse()
	return err == nil && strings.HasPrefix(localpart, br.cfg.prefix())
}

func (br *Bridge) portalFor(roomID id.RoomID) (accountID, roomSpec string, ok bool) {
	br.mu.Lock()
	defer br.mu.Unlock()
	portal, ok := br.portals[roomID]
	return portal.accountID, portal.roomSpec, ok
}

func (br *Bridge) handleMembership(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsMember()
	if content.Membership != event.MembershipInvite || id.UserID(evt.GetStateKey()) != br.as.BotMXID() {
		return
	}
	if err := br.as.BotIntent().EnsureJoined(ctx, evt.RoomID); err != nil {
		br.log.Err(err).Str("room_id", evt.RoomID.String()).Msg("Failed to accept invite")
	}
}

func (br *Bridge) handleMessage(ctx context.Context, sink EventSink, evt *event.Event) {
	if br.isOwnUser(evt.Sender) {
		return
	}
	accountID, roomSpec, isPortal := br.portalFor(evt.RoomID)
	if !isPortal {
		br.handleCommand(ctx, sink, evt)
		return
	}

	content := evt.Content.AsMessage()
	if content == nil {
		return
	}

	if rel := content.RelatesTo; rel != nil && rel.Type == event.RelReplace {
		edited := content
		if content.NewContent != nil {
			edited = content.NewContent
		}
		err := sink.HandleMatrixEdit(ctx, &connector.MatrixEdit{
			AccountID: accountID,
			RoomSpec:  roomSpec,
			EventID:   evt.ID,
			TargetID:  rel.EventID,
			Content:   edited,
		})
		if err != nil {
			br.log.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to relay edit to Skype")
		}
		return
	}

	switch content.MsgType {
	case event.MsgImage, event.MsgAudio, event.MsgVideo, event.MsgFile:
		br.relayFile(ctx, sink, evt, accountID, roomSpec, content)
	default:
		_, err := sink.HandleMatrixMessage(ctx, &connector.MatrixMessage{
			AccountID: accountID,
			RoomSpec:  roomSpec,
			EventID:   evt.ID,
			Content:   content,
		})
		if err != nil {
			br.log.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to relay message to Skype")
		}
	}
}

func (br *Bridge) relayFile(ctx context.Context, sink EventSink, evt *event.Event, accountID, roomSpec string, content *event.MessageEventContent) {
	uri := content.URL.ParseOrIgnore()
	if uri.IsEmpty() {
		br.log.Warn().Str("event_id", evt.ID.String()).Msg("File message without a plain mxc URL")
		return
	}
	data, err := br.as.BotClient().DownloadBytes(ctx, uri)
	if err != nil {
		br.log.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to download file from homeserver")
		return
	}
	err = sink.HandleMatrixFile(ctx, &connector.MatrixFileMessage{
		AccountID: accountID,
		RoomSpec:  roomSpec,
		EventID:   evt.ID,
		Filename:  content.Body,
		MsgType:   content.MsgType,
		Data:      data,
	})
	if err != nil {
		br.log.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to relay file to Skype")
	}
}

func (br *Bridge) handleRedaction(ctx context.Context, sink EventSink, evt *event.Event) {
	if br.isOwnUser(evt.Sender) {
		return
	}
	accountID, roomSpec, isPortal := br.portalFor(evt.RoomID)
	if !isPortal {
		return
	}
	err := sink.HandleMatrixRedact(ctx, &connector.MatrixRedact{
		AccountID: accountID,
		RoomSpec:  roomSpec,
		TargetID:  evt.Redacts,
	})
	if err != nil {
		br.log.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to relay redaction to Skype")
	}
}

// handleCommand processes management commands sent in any non-portal room
// the bot shares with a user.
func (br *Bridge) handleCommand(ctx context.Context, sink EventSink, evt *event.Event) {
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}
	fields := strings.Fields(content.Body)
	if len(fields) == 0 {
		return
	}
	reply := func(format string, args ...any) {
		if _, err := br.as.BotIntent().SendNotice(ctx, evt.RoomID, fmt.Sprintf(format, args...)); err != nil {
			br.log.Err(err).Str("room_id", evt.RoomID.String()).Msg("Failed to send command reply")
		}
	}

	switch fields[0] {
	case "link":
		if len(fields) != 3 {
			reply("Usage: link <username> <password>")
			return
		}
		account := &connector.AccountConfig{
			ID:       fields[1],
			Username: fields[1],
			Password: fields[2],
		}
		br.RegisterAccount(account.ID, evt.Sender)
		br.mu.Lock()
		br.mgmtRooms[account.ID] = evt.RoomID
		br.mu.Unlock()
		if err := sink.LinkAccount(ctx, account); err != nil {
			reply("Failed to link %s: %v", account.ID, err)
			return
		}
		reply("Linked account %s", account.ID)
	case "unlink":
		if len(fields) != 2 {
			reply("Usage: unlink <account id>")
			return
		}
		sink.UnlinkAccount(fields[1])
		reply("Unlinked account %s", fields[1])
	case "contacts":
		if len(fields) != 2 {
			reply("Usage: contacts <account id>")
			return
		}
		users, err := sink.ListUsers(ctx, fields[1])
		if err != nil {
			reply("Failed to list contacts: %v", err)
			return
		}
		var sb strings.Builder
		sb.WriteString("Contacts:")
		for _, user := range users {
			fmt.Fprintf(&sb, "\n%s (%s)", user.Name, user.UserID)
		}
		reply("%s", sb.String())
	case "ping":
		reply("Pong")
	case "help":
		reply("Commands: link <username> <password>, unlink <account id>, contacts <account id>, ping")
	}
}
