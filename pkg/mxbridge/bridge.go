// Copyright 2024-2026 Aiku AI

// Package mxbridge drives the Matrix side of the bridge through an
// appservice registration: ghost identities for remote users, portal rooms
// for remote conversations and a management room per account.
package mxbridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/connector"
)

// Config tells the bridge how to mint ghost identities.
type Config struct {
	// HomeserverDomain is the server_name part of every ghost mxid.
	HomeserverDomain string `yaml:"homeserver_domain"`
	// GhostPrefix is prepended to the encoded remote user id in ghost
	// localparts.
	GhostPrefix string `yaml:"ghost_prefix"`
}

func (c *Config) prefix() string {
	if c.GhostPrefix == "" {
		return "_skype_"
	}
	return c.GhostPrefix
}

// RoomInfoResolver supplies name/topic/avatar for a portal room that is
// about to be created. Nil info creates a bare room.
type RoomInfoResolver func(ctx context.Context, accountID, roomSpec string) (*connector.RoomInfo, error)

type ghostProfile struct {
	displayName string
	avatarURL   string
}

type portalKey struct {
	accountID string
	roomSpec  string
}

// Bridge implements connector.HomeNetwork on a Matrix appservice.
type Bridge struct {
	as  *appservice.AppService
	log zerolog.Logger
	cfg Config

	resolveRoom RoomInfoResolver

	mu         sync.Mutex
	users      map[string]id.UserID     // accountID -> the human user's mxid
	rooms      map[string]id.RoomID     // accountID\x00roomSpec -> portal room
	portals    map[id.RoomID]portalKey  // reverse of rooms
	mgmtRooms  map[string]id.RoomID     // accountID -> management room
	lastEvents map[id.RoomID]id.EventID // per room, for read receipts
	remoteIDs  map[string]string        // accountID -> own remote user id
	profiles   map[id.UserID]ghostProfile
}

var _ connector.HomeNetwork = (*Bridge)(nil)

// NewBridge wraps a started appservice.
func NewBridge(as *appservice.AppService, cfg Config, log zerolog.Logger) *Bridge {
	return &Bridge{
		as:         as,
		log:        log.With().Str("component", "mxbridge").Logger(),
		cfg:        cfg,
		users:      make(map[string]id.UserID),
		rooms:      make(map[string]id.RoomID),
		portals:    make(map[id.RoomID]portalKey),
		mgmtRooms:  make(map[string]id.RoomID),
		lastEvents: make(map[id.RoomID]id.EventID),
		remoteIDs:  make(map[string]string),
		profiles:   make(map[id.UserID]ghostProfile),
	}
}

// SetRoomInfoResolver installs the portal room metadata source. Must be
// called before events flow.
func (br *Bridge) SetRoomInfoResolver(resolve RoomInfoResolver) {
	br.resolveRoom = resolve
}

// RegisterAccount binds an account id to the Matrix user who owns it. Portal
// and management rooms for the account invite this user.
func (br *Bridge) RegisterAccount(accountID string, userMXID id.UserID) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.users[accountID] = userMXID
}

// GhostMXID returns the ghost identity for a remote user id.
func (br *Bridge) GhostMXID(remoteUserID string) id.UserID {
	return id.NewUserID(br.cfg.prefix()+id.EncodeUserLocalpart(remoteUserID), br.cfg.HomeserverDomain)
}

func (br *Bridge) ghostIntent(ctx context.Context, remoteUserID string) (*appservice.IntentAPI, error) {
	intent := br.as.Intent(br.GhostMXID(remoteUserID))
	if err := intent.EnsureRegistered(ctx); err != nil {
		return nil, fmt.Errorf("failed to register ghost: %w", err)
	}
	return intent, nil
}

func roomKey(accountID, roomSpec string) string {
	return accountID + "\x00" + roomSpec
}

// ensureRoom returns the portal room for a room spec, creating it on first
// use. The creating ghost invites the account's own Matrix user.
func (br *Bridge) ensureRoom(ctx context.Context, intent *appservice.IntentAPI, accountID, roomSpec string) (id.RoomID, error) {
	key := roomKey(accountID, roomSpec)
	br.mu.Lock()
	roomID, ok := br.rooms[key]
	userMXID := br.users[accountID]
	br.mu.Unlock()
	if ok {
		if err := intent.EnsureJoined(ctx, roomID); err != nil {
			return "", err
		}
		return roomID, nil
	}

	req := &mautrix.ReqCreateRoom{
		Visibility: "private",
		Preset:     "private_chat",
		IsDirect:   true,
	}
	if userMXID != "" {
		req.Invite = []id.UserID{userMXID}
	}
	if br.resolveRoom != nil {
		info, err := br.resolveRoom(ctx, accountID, roomSpec)
		if err != nil {
			br.log.Warn().Err(err).Str("room_spec", roomSpec).Msg("Portal metadata lookup failed")
		} else if info != nil {
			req.Name = info.Name
			req.Topic = info.Topic
			req.IsDirect = info.IsDirect
		}
	}
	resp, err := intent.CreateRoom(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create portal room: %w", err)
	}

	br.mu.Lock()
	br.rooms[key] = resp.RoomID
	br.portals[resp.RoomID] = portalKey{accountID: accountID, roomSpec: roomSpec}
	br.mu.Unlock()
	br.log.Info().
		Str("account_id", accountID).
		Str("room_spec", roomSpec).
		Str("room_id", resp.RoomID.String()).
		Msg("Created portal room")
	return resp.RoomID, nil
}

func (br *Bridge) send(ctx context.Context, accountID, roomSpec, senderID string, content *event.MessageEventContent) (id.EventID, error) {
	intent, err := br.ghostIntent(ctx, senderID)
	if err != nil {
		return "", err
	}
	roomID, err := br.ensureRoom(ctx, intent, accountID, roomSpec)
	if err != nil {
		return "", err
	}
	resp, err := intent.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		return "", err
	}
	br.mu.Lock()
	br.lastEvents[roomID] = resp.EventID
	br.mu.Unlock()
	return resp.EventID, nil
}

// SendMessage relays a remote message into the portal room as the sender's
// ghost.
func (br *Bridge) SendMessage(ctx context.Context, accountID, roomSpec, senderID string, content *event.MessageEventContent) (id.EventID, error) {
	return br.send(ctx, accountID, roomSpec, senderID, content)
}

// SendEdit relays a remote edit as a Matrix replacement event.
func (br *Bridge) SendEdit(ctx context.Context, accountID, roomSpec, senderID string, target id.EventID, content *event.MessageEventContent) (id.EventID, error) {
	content.SetEdit(target)
	return br.send(ctx, accountID, roomSpec, senderID, content)
}

// SendRedact redacts a previously bridged event.
func (br *Bridge) SendRedact(ctx context.Context, accountID, roomSpec, senderID string, target id.EventID) error {
	intent, err := br.ghostIntent(ctx, senderID)
	if err != nil {
		return err
	}
	roomID, err := br.ensureRoom(ctx, intent, accountID, roomSpec)
	if err != nil {
		return err
	}
	_, err = intent.RedactEvent(ctx, roomID, target)
	return err
}

// SendReadReceipt marks the portal room read up to the last bridged event.
func (br *Bridge) SendReadReceipt(ctx context.Context, accountID, roomSpec, senderID string) error {
	intent, err := br.ghostIntent(ctx, senderID)
	if err != nil {
		return err
	}
	roomID, err := br.ensureRoom(ctx, intent, accountID, roomSpec)
	if err != nil {
		return err
	}
	br.mu.Lock()
	lastEvent, ok := br.lastEvents[roomID]
	br.mu.Unlock()
	if !ok {
		return nil
	}
	return intent.MarkRead(ctx, roomID, lastEvent)
}

// SetUserTyping relays a remote typing notification.
func (br *Bridge) SetUserTyping(ctx context.Context, accountID, roomSpec, senderID string, typing bool) error {
	intent, err := br.ghostIntent(ctx, senderID)
	if err != nil {
		return err
	}
	roomID, err := br.ensureRoom(ctx, intent, accountID, roomSpec)
	if err != nil {
		return err
	}
	timeout := time.Duration(0)
	if typing {
		timeout = 30 * time.Second
	}
	_, err = intent.UserTyping(ctx, roomID, typing, timeout)
	return err
}

// SendFileDetect uploads raw bytes, sniffs the content type and sends the
// matching file message.
func (br *Bridge) SendFileDetect(ctx context.Context, accountID, roomSpec, senderID string, data []byte, filename string) (id.EventID, error) {
	intent, err := br.ghostIntent(ctx, senderID)
	if err != nil {
		return "", err
	}
	roomID, err := br.ensureRoom(ctx, intent, accountID, roomSpec)
	if err != nil {
		return "", err
	}

	mimeType := http.DetectContentType(data)
	upload, err := intent.UploadBytes(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if filename == "" {
		filename = "file"
	}
	content := &event.MessageEventContent{
		MsgType: msgTypeForMime(mimeType),
		Body:    filename,
		URL:     upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: mimeType,
			Size:     len(data),
		},
	}
	resp, err := intent.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		return "", err
	}
	br.mu.Lock()
	br.lastEvents[roomID] = resp.EventID
	br.mu.Unlock()
	return resp.EventID, nil
}

func msgTypeForMime(mimeType string) event.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return event.MsgImage
	case strings.HasPrefix(mimeType, "audio/"):
		return event.MsgAudio
	case strings.HasPrefix(mimeType, "video/"):
		return event.MsgVideo
	default:
		return event.MsgFile
	}
}

// SendStatusMessage posts a notice in the account's management room.
// Failures are logged and swallowed.
func (br *Bridge) SendStatusMessage(ctx context.Context, accountID, message string) {
	roomID, err := br.ensureManagementRoom(ctx, accountID)
	if err != nil {
		br.log.Err(err).Str("account_id", accountID).Msg("No management room for status message")
		return
	}
	if _, err := br.as.BotIntent().SendNotice(ctx, roomID, message); err != nil {
		br.log.Err(err).Str("account_id", accountID).Msg("Failed to send status message")
	}
}

func (br *Bridge) ensureManagementRoom(ctx context.Context, accountID string) (id.RoomID, error) {
	br.mu.Lock()
	roomID, ok := br.mgmtRooms[accountID]
	userMXID := br.users[accountID]
	br.mu.Unlock()
	if ok {
		return roomID, nil
	}

	req := &mautrix.ReqCreateRoom{
		Visibility: "private",
		Preset:     "private_chat",
		IsDirect:   true,
		Name:       "Skype bridge notices",
	}
	if userMXID != "" {
		req.Invite = []id.UserID{userMXID}
	}
	resp, err := br.as.BotIntent().CreateRoom(ctx, req)
	if err != nil {
		return "", err
	}
	br.mu.Lock()
	br.mgmtRooms[accountID] = resp.RoomID
	br.mu.Unlock()
	return resp.RoomID, nil
}

// SetUserID records the account's own remote identity.
func (br *Bridge) SetUserID(ctx context.Context, accountID, remoteUserID string) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.remoteIDs[accountID] = remoteUserID
}

// RemoteUserID returns the recorded remote identity for an account.
func (br *Bridge) RemoteUserID(accountID string) string {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.remoteIDs[accountID]
}

// SetPuppetData is a persistence hook for refreshed account records. This
// bridge keeps accounts in the config file, so the refreshed session blob
// only survives until restart.
func (br *Bridge) SetPuppetData(ctx context.Context, accountID string, account *connector.AccountConfig) {
	br.log.Debug().Str("account_id", accountID).Int("session_bytes", len(account.Session)).Msg("Account record refreshed")
}

// UpdateGhostProfile pushes a changed display name or avatar to the ghost.
// Unchanged values are skipped to avoid profile churn.
func (br *Bridge) UpdateGhostProfile(ctx context.Context, accountID, remoteUserID, displayName, avatarURL string) {
	mxid := br.GhostMXID(remoteUserID)
	br.mu.Lock()
	prev := br.profiles[mxid]
	br.mu.Unlock()
	if prev.displayName == displayName && prev.avatarURL == avatarURL {
		return
	}

	intent, err := br.ghostIntent(ctx, remoteUserID)
	if err != nil {
		br.log.Err(err).Str("user_id", remoteUserID).Msg("Failed to get ghost for profile update")
		return
	}
	if displayName != "" && displayName != prev.displayName {
		if err := intent.SetDisplayName(ctx, displayName); err != nil {
			br.log.Err(err).Str("user_id", remoteUserID).Msg("Failed to set ghost display name")
		}
	}
	if avatarURL != "" && avatarURL != prev.avatarURL {
		if upload, err := intent.UploadLink(ctx, avatarURL); err != nil {
			br.log.Err(err).Str("user_id", remoteUserID).Msg("Failed to reupload ghost avatar")
		} else if err := intent.SetAvatarURL(ctx, upload.ContentURI); err != nil {
			br.log.Err(err).Str("user_id", remoteUserID).Msg("Failed to set ghost avatar")
		}
	}

	br.mu.Lock()
	br.profiles[mxid] = ghostProfile{displayName: displayName, avatarURL: avatarURL}
	br.mu.Unlock()
}
