// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// contactEntry is a contact cache slot. A present entry with a nil contact
// is a tombstone: looked up, known absent. Distinct from no entry at all.
type contactEntry struct {
	contact *skypeweb.Contact
}

type conversationEntry struct {
	conv *skypeweb.Conversation
}

// SkypeClient owns one authenticated connection to the remote network for
// one account: connect/reconnect, the event subscription, contact and
// conversation caches, and the outbound send operations.
type SkypeClient struct {
	account         *AccountConfig
	remote          RemoteClient
	log             zerolog.Logger
	handler         func(*SessionEvent)
	grace           time.Duration
	refreshInterval time.Duration

	mu            sync.Mutex
	contacts      map[string]*contactEntry
	conversations map[string]*conversationEntry
	running       bool
	stopChan      chan struct{}
	pending       []skypeweb.Event
}

// NewSkypeClient creates a session for one account. SetHandler must be
// called before Connect.
func NewSkypeClient(account *AccountConfig, remote RemoteClient, grace, refreshInterval time.Duration, log zerolog.Logger) *SkypeClient {
	return &SkypeClient{
		account:         account,
		remote:          remote,
		log:             log.With().Str("component", "skype_client").Str("account_id", account.ID).Logger(),
		grace:           grace,
		refreshInterval: refreshInterval,
		contacts:        make(map[string]*contactEntry),
		conversations:   make(map[string]*conversationEntry),
	}
}

// SetHandler installs the dispatch function that receives all session
// events. Events for one session are delivered by a single goroutine in
// arrival order.
func (s *SkypeClient) SetHandler(handler func(*SessionEvent)) {
	s.handler = handler
}

// SelfID returns the account's own remote user id once connected.
func (s *SkypeClient) SelfID() string {
	return s.remote.SelfID()
}

// Connect establishes the remote connection. A stored session blob is
// tried first; if its login or post-connect validation fails, the whole
// sequence is retried once with credentials. Credential rejection surfaces
// as an *skypeweb.AuthError.
func (s *SkypeClient) Connect(ctx context.Context) error {
	if len(s.account.Session) > 0 {
		err := s.connectAndValidate(ctx, nil, s.account.Session)
		if err == nil {
			s.finishConnect(ctx)
			return nil
		}
		s.log.Warn().Err(err).Msg("Stored session failed, retrying with credentials")
	}
	return s.ConnectWithCredentials(ctx)
}

// ConnectWithCredentials skips session reuse. Used for the reconnect path,
// where a prior stored session has already proven stale.
func (s *SkypeClient) ConnectWithCredentials(ctx context.Context) error {
	creds := &skypeweb.Credentials{Username: s.account.Username, Password: s.account.Password}
	if err := s.connectAndValidate(ctx, creds, nil); err != nil {
		return err
	}
	s.finishConnect(ctx)
	return nil
}

// connectAndValidate runs one full connect attempt: remote login, event
// subscription, then a bounded grace period watching the stream for an
// early error. Non-error events arriving during the grace window are kept
// and replayed once dispatch starts.
func (s *SkypeClient) connectAndValidate(ctx context.Context, creds *skypeweb.Credentials, state []byte) error {
	if err := s.remote.Connect(ctx, creds, state); err != nil {
		return err
	}
	if err := s.remote.Listen(ctx); err != nil {
		return fmt.Errorf("event subscription failed: %w", err)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	var pending []skypeweb.Event
	for {
		select {
		case <-ctx.Done():
			s.remote.StopListening()
			return ctx.Err()
		case ev := <-s.remote.Events():
			if ev.Type == skypeweb.EventError {
				s.remote.StopListening()
				return fmt.Errorf("connection validation failed: %w", ev.Err)
			}
			pending = append(pending, ev)
		case <-timer.C:
			s.mu.Lock()
			s.pending = pending
			s.mu.Unlock()
			return nil
		}
	}
}

func (s *SkypeClient) finishConnect(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	// Keep the resumable state fresh for the next restart.
	s.account.Session = s.remote.GetState()

	go s.drainLoop(stop, pending)
	go s.refreshLoop(stop)
	s.log.Info().Str("self_id", s.remote.SelfID()).Msg("Session connected")
}

// Disconnect tears down the event subscription and the contact refresh
// timer. Idempotent.
func (s *SkypeClient) Disconnect() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stopChan
	s.mu.Unlock()
	close(stop)
	s.remote.StopListening()
	s.log.Debug().Msg("Session disconnected")
}

// drainLoop is the single dispatcher for this session: events buffered
// during validation first, then the live stream, in order.
func (s *SkypeClient) drainLoop(stop <-chan struct{}, pending []skypeweb.Event) {
	for i := range pending {
		s.dispatch(&pending[i])
	}
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-s.remote.Events():
			if !ok {
				return
			}
			s.dispatch(&ev)
		}
	}
}

func (s *SkypeClient) dispatch(ev *skypeweb.Event) {
	translated := translateEvent(ev)
	if translated == nil {
		return
	}
	s.handler(translated)
}

// translateEvent maps a wire event to the session's typed sum. Unknown
// wire events translate to nil and are skipped.
func translateEvent(ev *skypeweb.Event) *SessionEvent {
	switch ev.Type {
	case skypeweb.EventMessage:
		return &SessionEvent{Kind: EventText, Text: &TextEvent{
			MessageID:      ev.Message.ID,
			ConversationID: ev.Message.ConversationID,
			SenderID:       ev.Message.SenderID,
			Content:        ev.Message.Content,
			Timestamp:      ev.Message.ComposeTime,
		}}
	case skypeweb.EventMessageEdit:
		return &SessionEvent{Kind: EventEdit, Edit: &EditEvent{
			MessageID:      ev.Message.ID,
			TargetID:       ev.Message.EditedID,
			ConversationID: ev.Message.ConversationID,
			SenderID:       ev.Message.SenderID,
			Content:        ev.Message.Content,
			Timestamp:      ev.Message.ComposeTime,
		}}
	case skypeweb.EventFile:
		return &SessionEvent{Kind: EventFile, File: &FileEvent{
			MessageID:      ev.File.ID,
			ConversationID: ev.File.ConversationID,
			SenderID:       ev.File.SenderID,
			URL:            ev.File.URL,
			Filename:       ev.File.Filename,
			Timestamp:      ev.File.ComposeTime,
		}}
	case skypeweb.EventTyping:
		return &SessionEvent{Kind: EventTyping, Typing: &TypingEvent{
			ConversationID: ev.Typing.ConversationID,
			SenderID:       ev.Typing.SenderID,
			Active:         ev.Typing.Active,
		}}
	case skypeweb.EventPresence:
		return &SessionEvent{Kind: EventPresence, Presence: &PresenceEvent{
			SenderID: ev.Presence.SenderID,
			Status:   ev.Presence.Status,
		}}
	case skypeweb.EventError:
		return &SessionEvent{Kind: EventError, Err: ev.Err}
	default:
		return nil
	}
}

// GetContact returns a contact by id, consulting the cache first. A cached
// negative result short-circuits without a remote lookup. Lookup failures
// are cached as absent and returned as (nil, nil), never as an error.
func (s *SkypeClient) GetContact(ctx context.Context, userID string) (*skypeweb.Contact, error) {
	userID = skypeweb.NormalizeUserID(userID)

	s.mu.Lock()
	if entry, ok := s.contacts[userID]; ok {
		s.mu.Unlock()
		return entry.contact, nil
	}
	s.mu.Unlock()

	contact, err := s.remote.GetContact(ctx, userID)
	if err != nil {
		s.log.Debug().Err(err).Str("user_id", userID).Msg("Contact lookup failed, caching as absent")
		contact = nil
	}
	s.mu.Lock()
	s.contacts[userID] = &contactEntry{contact: contact}
	s.mu.Unlock()
	return contact, nil
}

// GetConversation resolves a room spec to a remote conversation. Direct
// room specs must carry this session's own account id; mismatches resolve
// to absent. Negative results are cached like contacts.
func (s *SkypeClient) GetConversation(ctx context.Context, roomSpec string) (*skypeweb.Conversation, error) {
	convID := roomSpec
	if acctID, remoteID, ok := ParseDMRoomID(roomSpec); ok {
		if acctID != s.account.ID {
			s.log.Warn().Str("room_spec", roomSpec).Msg("DM room spec belongs to a different account")
			return nil, nil
		}
		convID = remoteID
	}

	s.mu.Lock()
	if entry, ok := s.conversations[convID]; ok {
		s.mu.Unlock()
		return entry.conv, nil
	}
	s.mu.Unlock()

	conv, err := s.remote.GetConversation(ctx, convID)
	if err != nil {
		s.log.Debug().Err(err).Str("conversation_id", convID).Msg("Conversation lookup failed, caching as absent")
		conv = nil
	}
	s.mu.Lock()
	s.conversations[convID] = &conversationEntry{conv: conv}
	s.mu.Unlock()
	return conv, nil
}

// refreshLoop periodically re-fetches the full contact list and diffs it
// against the cache. Failures surface as error events but never stop the
// timer.
func (s *SkypeClient) refreshLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.refreshContacts(context.Background())
		}
	}
}

func (s *SkypeClient) refreshContacts(ctx context.Context) {
	contacts, err := s.remote.GetContacts(ctx, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Contact refresh failed")
		s.handler(&SessionEvent{Kind: EventError, Err: fmt.Errorf("contact refresh failed: %w", err)})
		return
	}

	for _, contact := range contacts {
		s.mu.Lock()
		var old *skypeweb.Contact
		if entry, ok := s.contacts[contact.ID]; ok {
			old = entry.contact
		}
		changed := old == nil || old.DisplayName != contact.DisplayName || old.AvatarURL != contact.AvatarURL
		if changed {
			s.contacts[contact.ID] = &contactEntry{contact: contact}
		}
		s.mu.Unlock()
		if changed {
			s.handler(&SessionEvent{Kind: EventContactUpdate, ContactUpdate: &ContactUpdateEvent{
				Old: old,
				New: contact,
			}})
		}
	}
}

// SetStatus publishes the account's remote presence.
func (s *SkypeClient) SetStatus(ctx context.Context, status string) error {
	return s.remote.SetStatus(ctx, status)
}

// SendMessage relays rendered markup to a conversation.
func (s *SkypeClient) SendMessage(ctx context.Context, convID, content string) (*skypeweb.SendResponse, error) {
	return s.remote.SendMessage(ctx, convID, content)
}

// SendEdit replaces an earlier message's content.
func (s *SkypeClient) SendEdit(ctx context.Context, convID, msgID, content string) (*skypeweb.SendResponse, error) {
	return s.remote.SendEdit(ctx, convID, msgID, content)
}

// SendDelete removes an earlier message.
func (s *SkypeClient) SendDelete(ctx context.Context, convID, msgID string) error {
	return s.remote.SendDelete(ctx, convID, msgID)
}

// SendImage sends image bytes to a conversation.
func (s *SkypeClient) SendImage(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error) {
	return s.remote.SendImage(ctx, convID, filename, data)
}

// SendAudio sends audio bytes to a conversation.
func (s *SkypeClient) SendAudio(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error) {
	return s.remote.SendAudio(ctx, convID, filename, data)
}

// SendDocument sends an arbitrary file to a conversation.
func (s *SkypeClient) SendDocument(ctx context.Context, convID, filename string, data []byte) (*skypeweb.SendResponse, error) {
	return s.remote.SendDocument(ctx, convID, filename, data)
}

// DownloadFile fetches an attachment, normalizing known CDN rendition
// variants to the full-size path and attaching the session's auth headers.
func (s *SkypeClient) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	return s.remote.AuthorizedFetch(ctx, skypeweb.NormalizeFileURL(url))
}

// InvalidateCaches drops all cached contacts and conversations. Called on
// account deletion.
func (s *SkypeClient) InvalidateCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = make(map[string]*contactEntry)
	s.conversations = make(map[string]*conversationEntry)
}
