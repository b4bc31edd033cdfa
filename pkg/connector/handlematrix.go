// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/connector/matrixfmt"
	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// MatrixMessage is a home-network text message to relay out.
type MatrixMessage struct {
	AccountID string
	RoomSpec  string
	EventID   id.EventID
	Content   *event.MessageEventContent
}

// MatrixEdit replaces the content of an earlier relayed message.
type MatrixEdit struct {
	AccountID string
	RoomSpec  string
	EventID   id.EventID
	TargetID  id.EventID
	Content   *event.MessageEventContent
}

// MatrixRedact removes an earlier relayed message.
type MatrixRedact struct {
	AccountID string
	RoomSpec  string
	TargetID  id.EventID
}

// MatrixFileMessage is a home-network file upload to relay out.
type MatrixFileMessage struct {
	AccountID string
	RoomSpec  string
	EventID   id.EventID
	Filename  string
	MsgType   event.MessageType
	Data      []byte
}

// connectedPuppet resolves an account id to its puppet, requiring a live
// connection.
func (sc *SkypeConnector) connectedPuppet(accountID string) (*puppet, error) {
	p := sc.getPuppet(accountID)
	if p == nil {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	if p.machine.Current() != StateConnected {
		return nil, fmt.Errorf("account %s is not connected (state %s)", accountID, p.machine.Current())
	}
	return p, nil
}

// resolveOutbound maps a room spec to the remote conversation id, verifying
// the conversation exists. Unknown rooms are a warn-and-drop, reported to
// the caller as an error.
func (sc *SkypeConnector) resolveOutbound(ctx context.Context, p *puppet, roomSpec string) (string, error) {
	conv, _ := p.session.GetConversation(ctx, roomSpec)
	if conv == nil {
		sc.log.Warn().
			Str("account_id", p.account.ID).
			Str("room_spec", roomSpec).
			Msg("Dropping outbound event for unknown conversation")
		return "", fmt.Errorf("unknown conversation for room %s", roomSpec)
	}
	return conv.ID, nil
}

// HandleMatrixMessage relays a home text message to the remote network. The
// rendered content is locked in the deduplicator before the send so the
// echo notification is swallowed, and the lock is rebound to the
// server-assigned id once the send returns.
func (sc *SkypeConnector) HandleMatrixMessage(ctx context.Context, msg *MatrixMessage) (string, error) {
	p, err := sc.connectedPuppet(msg.AccountID)
	if err != nil {
		return "", err
	}
	convID, err := sc.resolveOutbound(ctx, p, msg.RoomSpec)
	if err != nil {
		return "", err
	}

	rendered := matrixfmt.Parse(msg.Content)
	key := dedupKey(p.account.ID, convID)
	self := p.session.SelfID()

	p.dedup.Lock(key, self, rendered)
	resp, err := p.session.SendMessage(ctx, convID, rendered)
	if err != nil {
		p.dedup.Discard(key, self)
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToRemote).Inc()
		return "", fmt.Errorf("send failed: %w", err)
	}
	p.dedup.Unlock(key, self, resp.ServerMessageID)

	sc.store.Insert(p.account.ID, msg.EventID, resp.ServerMessageID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToRemote).Inc()
	return resp.ServerMessageID, nil
}

// HandleMatrixEdit relays a home message edit to the remote network.
func (sc *SkypeConnector) HandleMatrixEdit(ctx context.Context, edit *MatrixEdit) error {
	p, err := sc.connectedPuppet(edit.AccountID)
	if err != nil {
		return err
	}
	convID, err := sc.resolveOutbound(ctx, p, edit.RoomSpec)
	if err != nil {
		return err
	}
	remoteID, ok := sc.store.GetRemote(edit.AccountID, edit.TargetID)
	if !ok {
		return fmt.Errorf("edit target %s was not bridged", edit.TargetID)
	}

	rendered := matrixfmt.Parse(edit.Content)
	key := dedupKey(p.account.ID, convID)
	self := p.session.SelfID()

	p.dedup.Lock(key, self, rendered)
	resp, err := p.session.SendEdit(ctx, convID, remoteID, rendered)
	if err != nil {
		p.dedup.Discard(key, self)
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToRemote).Inc()
		return fmt.Errorf("edit failed: %w", err)
	}
	p.dedup.Unlock(key, self, resp.ServerMessageID)

	sc.store.Insert(p.account.ID, edit.EventID, remoteID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToRemote).Inc()
	return nil
}

// HandleMatrixRedact deletes a relayed message remotely. The remote id is
// recorded in the deleted set so the network's edited-to-empty confirmation
// does not bounce back as a redundant redaction.
func (sc *SkypeConnector) HandleMatrixRedact(ctx context.Context, redact *MatrixRedact) error {
	p, err := sc.connectedPuppet(redact.AccountID)
	if err != nil {
		return err
	}
	convID, err := sc.resolveOutbound(ctx, p, redact.RoomSpec)
	if err != nil {
		return err
	}
	remoteID, ok := sc.store.GetRemote(redact.AccountID, redact.TargetID)
	if !ok {
		return fmt.Errorf("redaction target %s was not bridged", redact.TargetID)
	}

	p.deletedIDs.Add(remoteID)
	if err := p.session.SendDelete(ctx, convID, remoteID); err != nil {
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToRemote).Inc()
		return fmt.Errorf("delete failed: %w", err)
	}
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToRemote).Inc()
	return nil
}

// HandleMatrixFile relays a home file upload, choosing the remote transfer
// type from the message type and filename.
func (sc *SkypeConnector) HandleMatrixFile(ctx context.Context, file *MatrixFileMessage) error {
	p, err := sc.connectedPuppet(file.AccountID)
	if err != nil {
		return err
	}
	convID, err := sc.resolveOutbound(ctx, p, file.RoomSpec)
	if err != nil {
		return err
	}

	key := dedupKey(p.account.ID, convID)
	self := p.session.SelfID()
	p.dedup.Lock(key, self, "file:"+file.Filename)

	var resp *skypeweb.SendResponse
	switch {
	case file.MsgType == event.MsgImage || isImageFilename(file.Filename):
		resp, err = p.session.SendImage(ctx, convID, file.Filename, file.Data)
	case file.MsgType == event.MsgAudio:
		resp, err = p.session.SendAudio(ctx, convID, file.Filename, file.Data)
	default:
		resp, err = p.session.SendDocument(ctx, convID, file.Filename, file.Data)
	}
	if err != nil {
		p.dedup.Discard(key, self)
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToRemote).Inc()
		return fmt.Errorf("file send failed: %w", err)
	}
	p.dedup.Unlock(key, self, resp.ServerMessageID)

	sc.store.Insert(p.account.ID, file.EventID, resp.ServerMessageID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToRemote).Inc()
	return nil
}

func isImageFilename(filename string) bool {
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	return strings.HasPrefix(mimeType, "image/")
}
