// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"strings"

	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-skype/pkg/connector/skypefmt"
	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// handleSkypeEvent is the per-account dispatch point for all remote events.
// It runs on the session's single drain goroutine, so handlers for one
// account never race each other.
func (sc *SkypeConnector) handleSkypeEvent(p *puppet, ev *SessionEvent) {
	ctx := context.Background()
	switch ev.Kind {
	case EventText:
		sc.handleSkypeText(ctx, p, ev.Text)
	case EventFile:
		sc.handleSkypeFile(ctx, p, ev.File)
	case EventEdit:
		sc.handleSkypeEdit(ctx, p, ev.Edit)
	case EventTyping:
		sc.handleSkypeTyping(ctx, p, ev.Typing)
	case EventPresence:
		sc.log.Debug().
			Str("account_id", p.account.ID).
			Str("user_id", ev.Presence.SenderID).
			Str("status", ev.Presence.Status).
			Msg("Presence update")
	case EventContactUpdate:
		sc.handleSkypeContactUpdate(ctx, p, ev.ContactUpdate)
	case EventError:
		sc.handleConnectionError(p, ev.Err)
	}
}

// roomSpecFor maps a remote conversation to the home-side room spec: group
// threads pass through as-is, direct chats become the account-scoped DM key.
func (p *puppet) roomSpecFor(conv *skypeweb.Conversation, senderID string) string {
	if skypeweb.IsGroupConversation(conv.ID) {
		return conv.ID
	}
	return MakeDMRoomID(p.account.ID, senderID)
}

// resolve looks up the sender and conversation for an inbound event. Either
// missing means the event is dropped with a warning; lookups use the
// session's caches, so a known-absent pair costs nothing.
func (sc *SkypeConnector) resolve(ctx context.Context, p *puppet, convID, senderID string) (*skypeweb.Contact, *skypeweb.Conversation, bool) {
	contact, _ := p.session.GetContact(ctx, senderID)
	conv, _ := p.session.GetConversation(ctx, convID)
	if contact == nil || conv == nil {
		sc.log.Warn().
			Str("account_id", p.account.ID).
			Str("conversation_id", convID).
			Str("sender_id", senderID).
			Bool("contact_found", contact != nil).
			Bool("conversation_found", conv != nil).
			Msg("Dropping event for unresolvable contact or conversation")
		return nil, nil, false
	}
	return contact, conv, true
}

// markEchoRead marks the portal read as the account's own ghost. A
// suppressed echo proves the remote service accepted the send, so the last
// bridged event is as far as the account has seen.
func (sc *SkypeConnector) markEchoRead(ctx context.Context, p *puppet, convID string) {
	roomSpec := convID
	if !skypeweb.IsGroupConversation(convID) {
		roomSpec = MakeDMRoomID(p.account.ID, convID)
	}
	if err := sc.home.SendReadReceipt(ctx, p.account.ID, roomSpec, p.session.SelfID()); err != nil {
		sc.log.Debug().Err(err).Str("account_id", p.account.ID).Msg("Failed to mark own send read")
	}
}

func (sc *SkypeConnector) handleSkypeText(ctx context.Context, p *puppet, ev *TextEvent) {
	key := dedupKey(p.account.ID, ev.ConversationID)
	if p.dedup.Dedup(key, ev.SenderID, ev.MessageID, ev.Content) {
		// Mark the id as handled too: the network sends a second
		// confirmation notification for the same message.
		p.handledIDs.Add(ev.MessageID)
		sc.metrics.EchoesSuppressed.WithLabelValues(p.account.ID).Inc()
		sc.log.Debug().Str("account_id", p.account.ID).Str("message_id", ev.MessageID).Msg("Suppressed echo of local send")
		sc.markEchoRead(ctx, p, ev.ConversationID)
		return
	}
	if p.handledIDs.Has(ev.MessageID) {
		sc.metrics.DuplicatesDropped.WithLabelValues(p.account.ID).Inc()
		return
	}
	p.handledIDs.Add(ev.MessageID)

	// Stickers arrive as text notifications with an embedded URIObject.
	if url, filename, ok := skypeweb.ParseURIObject(ev.Content); ok {
		sc.relaySkypeFile(ctx, p, &FileEvent{
			MessageID:      ev.MessageID,
			ConversationID: ev.ConversationID,
			SenderID:       ev.SenderID,
			URL:            url,
			Filename:       filename,
			Timestamp:      ev.Timestamp,
		})
		return
	}

	_, conv, ok := sc.resolve(ctx, p, ev.ConversationID, ev.SenderID)
	if !ok {
		return
	}
	roomSpec := p.roomSpecFor(conv, ev.SenderID)

	content := decodeSkypeMessage(ev.Content, sc.cfg.SuppressQuotes)
	eventID, err := sc.home.SendMessage(ctx, p.account.ID, roomSpec, ev.SenderID, content)
	if err != nil {
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToHome).Inc()
		sc.log.Err(err).Str("account_id", p.account.ID).Str("message_id", ev.MessageID).Msg("Failed to relay message")
		return
	}
	sc.store.Insert(p.account.ID, eventID, ev.MessageID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToHome).Inc()
}

func (sc *SkypeConnector) handleSkypeFile(ctx context.Context, p *puppet, ev *FileEvent) {
	key := dedupKey(p.account.ID, ev.ConversationID)
	if p.dedup.Dedup(key, ev.SenderID, ev.MessageID, "file:"+ev.Filename) {
		p.handledIDs.Add(ev.MessageID)
		sc.metrics.EchoesSuppressed.WithLabelValues(p.account.ID).Inc()
		sc.markEchoRead(ctx, p, ev.ConversationID)
		return
	}
	if p.handledIDs.Has(ev.MessageID) {
		sc.metrics.DuplicatesDropped.WithLabelValues(p.account.ID).Inc()
		return
	}
	p.handledIDs.Add(ev.MessageID)
	sc.relaySkypeFile(ctx, p, ev)
}

func (sc *SkypeConnector) relaySkypeFile(ctx context.Context, p *puppet, ev *FileEvent) {
	_, conv, ok := sc.resolve(ctx, p, ev.ConversationID, ev.SenderID)
	if !ok {
		return
	}
	roomSpec := p.roomSpecFor(conv, ev.SenderID)

	data, err := p.session.DownloadFile(ctx, ev.URL)
	if err != nil {
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToHome).Inc()
		sc.log.Err(err).Str("account_id", p.account.ID).Str("url", ev.URL).Msg("Failed to download attachment")
		return
	}
	eventID, err := sc.home.SendFileDetect(ctx, p.account.ID, roomSpec, ev.SenderID, data, ev.Filename)
	if err != nil {
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToHome).Inc()
		sc.log.Err(err).Str("account_id", p.account.ID).Str("message_id", ev.MessageID).Msg("Failed to relay file")
		return
	}
	sc.store.Insert(p.account.ID, eventID, ev.MessageID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToHome).Inc()
}

// handleSkypeEdit relays a message replacement. An edit whose decoded body
// is empty is the remote network's deletion notification: if we deleted the
// message ourselves it is swallowed, otherwise every home event bridged
// from the target is redacted.
func (sc *SkypeConnector) handleSkypeEdit(ctx context.Context, p *puppet, ev *EditEvent) {
	key := dedupKey(p.account.ID, ev.ConversationID)
	if p.dedup.Dedup(key, ev.SenderID, ev.TargetID, ev.Content) {
		p.handledIDs.Add("edit;" + ev.TargetID + ";" + ev.Content)
		sc.metrics.EchoesSuppressed.WithLabelValues(p.account.ID).Inc()
		return
	}
	// Edit notifications repeat with the same target and content. Key on
	// both so a genuine second edit of the same message still relays.
	handledKey := "edit;" + ev.TargetID + ";" + ev.Content
	if p.handledIDs.Has(handledKey) {
		sc.metrics.DuplicatesDropped.WithLabelValues(p.account.ID).Inc()
		return
	}
	p.handledIDs.Add(handledKey)

	_, conv, ok := sc.resolve(ctx, p, ev.ConversationID, ev.SenderID)
	if !ok {
		return
	}
	roomSpec := p.roomSpecFor(conv, ev.SenderID)

	body, formatted := skypefmt.Parse(ev.Content, skypefmt.Options{SuppressQuotes: sc.cfg.SuppressQuotes})
	if strings.TrimSpace(body) == "" {
		sc.redactSkypeMessage(ctx, p, roomSpec, ev)
		return
	}

	homeIDs, found := sc.store.GetHome(p.account.ID, ev.TargetID)
	if !found || len(homeIDs) == 0 {
		sc.log.Warn().Str("account_id", p.account.ID).Str("target_id", ev.TargetID).Msg("Edit for unbridged message, relaying as new")
		sc.handleSkypeText(ctx, p, &TextEvent{
			MessageID:      ev.MessageID,
			ConversationID: ev.ConversationID,
			SenderID:       ev.SenderID,
			Content:        ev.Content,
			Timestamp:      ev.Timestamp,
		})
		return
	}

	content := makeMessageContent(body, formatted)
	eventID, err := sc.home.SendEdit(ctx, p.account.ID, roomSpec, ev.SenderID, homeIDs[len(homeIDs)-1], content)
	if err != nil {
		sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToHome).Inc()
		sc.log.Err(err).Str("account_id", p.account.ID).Str("target_id", ev.TargetID).Msg("Failed to relay edit")
		return
	}
	sc.store.Insert(p.account.ID, eventID, ev.MessageID)
	sc.metrics.MessagesRelayed.WithLabelValues(p.account.ID, directionToHome).Inc()
}

func (sc *SkypeConnector) redactSkypeMessage(ctx context.Context, p *puppet, roomSpec string, ev *EditEvent) {
	if p.deletedIDs.Has(ev.TargetID) {
		// Confirmation of our own deletion.
		sc.metrics.EchoesSuppressed.WithLabelValues(p.account.ID).Inc()
		return
	}
	homeIDs, found := sc.store.GetHome(p.account.ID, ev.TargetID)
	if !found {
		sc.log.Warn().Str("account_id", p.account.ID).Str("target_id", ev.TargetID).Msg("Deletion of unbridged message, ignoring")
		return
	}
	for _, homeID := range homeIDs {
		if err := sc.home.SendRedact(ctx, p.account.ID, roomSpec, ev.SenderID, homeID); err != nil {
			sc.metrics.DeliveryFailures.WithLabelValues(p.account.ID, directionToHome).Inc()
			sc.log.Err(err).Str("account_id", p.account.ID).Str("target_id", ev.TargetID).Msg("Failed to relay deletion")
		}
	}
}

func (sc *SkypeConnector) handleSkypeTyping(ctx context.Context, p *puppet, ev *TypingEvent) {
	_, conv, ok := sc.resolve(ctx, p, ev.ConversationID, ev.SenderID)
	if !ok {
		return
	}
	roomSpec := p.roomSpecFor(conv, ev.SenderID)
	if err := sc.home.SetUserTyping(ctx, p.account.ID, roomSpec, ev.SenderID, ev.Active); err != nil {
		sc.log.Debug().Err(err).Str("account_id", p.account.ID).Msg("Failed to relay typing")
	}
}

func (sc *SkypeConnector) handleSkypeContactUpdate(ctx context.Context, p *puppet, ev *ContactUpdateEvent) {
	// Only push changes the home side can see.
	if ev.Old != nil && ev.Old.DisplayName == ev.New.DisplayName && ev.Old.AvatarURL == ev.New.AvatarURL {
		return
	}
	sc.home.UpdateGhostProfile(ctx, p.account.ID, ev.New.ID, ev.New.DisplayName, ev.New.AvatarURL)
}

// decodeSkypeMessage translates remote markup into a home message content
// pair. The formatted body is attached only when it differs from the plain
// rendering.
func decodeSkypeMessage(content string, suppressQuotes bool) *event.MessageEventContent {
	body, formatted := skypefmt.Parse(content, skypefmt.Options{SuppressQuotes: suppressQuotes})
	return makeMessageContent(body, formatted)
}

func makeMessageContent(body, formatted string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	if formatted != "" && formatted != body {
		content.Format = event.FormatHTML
		content.FormattedBody = formatted
	}
	return content
}
